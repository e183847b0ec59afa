package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for Crucible event bus errors.
type ErrorCode string

// Event validation error codes
const (
	EVENT_VALIDATION_FAILED ErrorCode = "EVENT_VALIDATION_FAILED"
	EVENT_TOO_LARGE         ErrorCode = "EVENT_TOO_LARGE"
	EVENT_INVALID_PRIORITY  ErrorCode = "EVENT_INVALID_PRIORITY"
	EVENT_DUPLICATE         ErrorCode = "EVENT_DUPLICATE"
)

// Filter engine error codes
const (
	FILTER_COMPILE_FAILED ErrorCode = "FILTER_COMPILE_FAILED"
	FILTER_NOT_FOUND      ErrorCode = "FILTER_NOT_FOUND"
	FILTER_EVAL_FAILED    ErrorCode = "FILTER_EVAL_FAILED"
	ENGINE_NOT_RUNNING    ErrorCode = "ENGINE_NOT_RUNNING"
)

// Routing error codes
const (
	SERVICE_NOT_FOUND            ErrorCode = "SERVICE_NOT_FOUND"
	SERVICE_REGISTRATION_INVALID ErrorCode = "SERVICE_REGISTRATION_INVALID"
	NO_HEALTHY_INSTANCE          ErrorCode = "NO_HEALTHY_INSTANCE"
	CIRCUIT_BREAKER_OPEN         ErrorCode = "CIRCUIT_BREAKER_OPEN"
	SERVICE_EXECUTION_ERROR      ErrorCode = "SERVICE_EXECUTION_ERROR"
	DELIVERY_TIMEOUT             ErrorCode = "DELIVERY_TIMEOUT"
	ROUTER_STOPPED               ErrorCode = "ROUTER_STOPPED"
)

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Daemon lifecycle error codes
const (
	DAEMON_ALREADY_RUNNING ErrorCode = "DAEMON_ALREADY_RUNNING"
	DAEMON_NOT_RUNNING     ErrorCode = "DAEMON_NOT_RUNNING"
)

// CrucibleError is a structured error carrying an error code, message, and
// optional cause. Retryable hints whether the router may re-attempt the
// operation that produced it.
type CrucibleError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error formats as "[CODE] message" or "[CODE] message: cause".
func (e *CrucibleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As chains.
func (e *CrucibleError) Unwrap() error {
	return e.Cause
}

// Is matches another CrucibleError by code.
func (e *CrucibleError) Is(target error) bool {
	var ce *CrucibleError
	if errors.As(target, &ce) {
		return e.Code == ce.Code
	}
	return false
}

// NewError creates a non-retryable CrucibleError.
func NewError(code ErrorCode, message string) *CrucibleError {
	return &CrucibleError{Code: code, Message: message}
}

// NewErrorf creates a non-retryable CrucibleError with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *CrucibleError {
	return &CrucibleError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewRetryableError creates a CrucibleError that the router may retry.
// Use for transient delivery failures such as handler timeouts.
func NewRetryableError(code ErrorCode, message string) *CrucibleError {
	return &CrucibleError{Code: code, Message: message, Retryable: true}
}

// WrapError creates a non-retryable CrucibleError wrapping an existing error.
func WrapError(code ErrorCode, message string, cause error) *CrucibleError {
	return &CrucibleError{Code: code, Message: message, Cause: cause}
}

// WrapRetryableError creates a retryable CrucibleError wrapping an existing error.
func WrapRetryableError(code ErrorCode, message string, cause error) *CrucibleError {
	return &CrucibleError{Code: code, Message: message, Retryable: true, Cause: cause}
}

// IsRetryable reports whether err (or anything it wraps) is a retryable
// CrucibleError.
func IsRetryable(err error) bool {
	var ce *CrucibleError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// CodeOf extracts the error code from err, or empty when err is not a
// CrucibleError.
func CodeOf(err error) ErrorCode {
	var ce *CrucibleError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
