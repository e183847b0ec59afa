package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/crucible-ai/crucible/internal/types"
)

// Validator validates configuration values.
type Validator interface {
	Validate(cfg *Config) error
}

// validatorImpl implements Validator using go-playground/validator.
type validatorImpl struct {
	validate *validator.Validate
}

// NewValidator creates a Validator instance.
func NewValidator() Validator {
	return &validatorImpl{validate: validator.New()}
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express, and returns one error listing every violation.
func (v *validatorImpl) Validate(cfg *Config) error {
	if cfg == nil {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "configuration is nil")
	}

	var messages []string
	if err := v.validate.Struct(cfg); err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return types.WrapError(types.CONFIG_VALIDATION_FAILED, "validation error", err)
		}
		for _, e := range validationErrs {
			messages = append(messages, formatValidationError(e))
		}
	}

	if cfg.Router.RetryMaxDelay < cfg.Router.RetryBaseDelay {
		messages = append(messages, fmt.Sprintf(
			"router.retry_max_delay (%s) must be at least router.retry_base_delay (%s)",
			cfg.Router.RetryMaxDelay, cfg.Router.RetryBaseDelay))
	}
	if cfg.Breaker.HalfOpenMaxProbes < cfg.Breaker.SuccessThreshold {
		messages = append(messages, fmt.Sprintf(
			"circuit_breaker.half_open_max_probes (%d) must be at least circuit_breaker.success_threshold (%d)",
			cfg.Breaker.HalfOpenMaxProbes, cfg.Breaker.SuccessThreshold))
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		messages = append(messages, "tracing.endpoint must be set when tracing is enabled")
	}

	if len(messages) > 0 {
		return types.NewErrorf(types.CONFIG_VALIDATION_FAILED,
			"configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}
	return nil
}

// formatValidationError formats a single violation with its field path.
func formatValidationError(e validator.FieldError) string {
	fieldPath := formatFieldPath(e.Namespace())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldPath)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", fieldPath, e.Param(), e.Value())
	default:
		return fmt.Sprintf("%s failed %s validation (got: %v)", fieldPath, e.Tag(), e.Value())
	}
}

// formatFieldPath turns a struct namespace like Config.Router.DeliveryTimeout
// into router.delivery_timeout.
func formatFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, part := range parts {
		parts[i] = toSnakeCase(part)
	}
	return strings.Join(parts, ".")
}

func toSnakeCase(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] >= 'a' && s[i-1] <= 'z' {
				sb.WriteByte('_')
			}
			sb.WriteRune(r - 'A' + 'a')
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
