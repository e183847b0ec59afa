package config

import "time"

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			DataDir:         "${HOME}/.crucible",
			ShutdownTimeout: 30 * time.Second,
		},
		Events: EventsConfig{
			MaxEventSize:      10 * 1024 * 1024,
			DefaultMaxRetries: 3,
		},
		Filter: FilterConfig{
			CacheSize: 1000,
			CacheTTL:  30 * time.Minute,
		},
		Router: RouterConfig{
			DeliveryTimeout:      30 * time.Second,
			RetryBaseDelay:       100 * time.Millisecond,
			RetryMaxDelay:        5 * time.Second,
			DedupWindow:          time.Minute,
			LoadBalanceStrategy:  "round_robin",
			SynthesizeResponses:  true,
			PublishServiceEvents: true,
		},
		Breaker: BreakerConfig{
			FailureThreshold:  5,
			OpenTimeout:       30 * time.Second,
			SuccessThreshold:  2,
			HalfOpenMaxProbes: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "crucible",
		},
	}
}
