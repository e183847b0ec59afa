// Package config loads and validates the daemon configuration from YAML
// files with ${VAR_NAME} environment variable interpolation.
package config

import (
	"time"
)

// Config is the root configuration for the Crucible event bus daemon.
type Config struct {
	Core     CoreConfig     `mapstructure:"core" yaml:"core" validate:"required"`
	Events   EventsConfig   `mapstructure:"events" yaml:"events"`
	Filter   FilterConfig   `mapstructure:"filter" yaml:"filter"`
	Router   RouterConfig   `mapstructure:"router" yaml:"router"`
	Breaker  BreakerConfig  `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
}

// CoreConfig contains daemon-wide settings.
type CoreConfig struct {
	// DataDir is where the daemon keeps runtime state. Supports ${VAR}
	// interpolation.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=1s"`

	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// EventsConfig contains event model limits.
type EventsConfig struct {
	// MaxEventSize is the serialized event size ceiling in bytes.
	MaxEventSize int `mapstructure:"max_event_size" yaml:"max_event_size" validate:"min=1024"`

	// DefaultMaxRetries is applied to events whose producer set no bound.
	DefaultMaxRetries int `mapstructure:"default_max_retries" yaml:"default_max_retries" validate:"min=0,max=100"`
}

// FilterConfig contains filter engine cache tunables.
type FilterConfig struct {
	// CacheSize bounds the number of compiled filters retained.
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size" validate:"min=1"`

	// CacheTTL is how long an unused compiled filter stays cached.
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl" validate:"min=1s"`
}

// RouterConfig contains delivery pipeline tunables.
type RouterConfig struct {
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout" yaml:"delivery_timeout" validate:"min=1ms"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay" validate:"min=1ms"`
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay" yaml:"retry_max_delay" validate:"min=1ms"`

	// DedupWindow rejects republished event ids inside the window.
	// Zero disables deduplication.
	DedupWindow time.Duration `mapstructure:"dedup_window" yaml:"dedup_window"`

	// LoadBalanceStrategy is round_robin, random, or least_recently_used.
	LoadBalanceStrategy string `mapstructure:"load_balance_strategy" yaml:"load_balance_strategy" validate:"oneof=round_robin random least_recently_used"`

	SynthesizeResponses   bool `mapstructure:"synthesize_responses" yaml:"synthesize_responses"`
	PublishServiceEvents  bool `mapstructure:"publish_service_events" yaml:"publish_service_events"`
}

// BreakerConfig contains circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold  int           `mapstructure:"failure_threshold" yaml:"failure_threshold" validate:"min=1"`
	OpenTimeout       time.Duration `mapstructure:"open_timeout" yaml:"open_timeout" validate:"min=1ms"`
	SuccessThreshold  int           `mapstructure:"success_threshold" yaml:"success_threshold" validate:"min=1"`
	HalfOpenMaxProbes int           `mapstructure:"half_open_max_probes" yaml:"half_open_max_probes" validate:"min=1"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`

	// Format is json or text.
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json text"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ServiceName identifies this process in traces.
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`

	// Endpoint is the OTLP collector address. Supports ${VAR}
	// interpolation.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}
