// Package daemon assembles the Crucible event bus from its parts and
// manages their shared lifecycle.
//
// The daemon owns the filter engine, the service registry, and the event
// router. Start brings them up in dependency order and Stop tears them down
// in reverse, bounded by the configured shutdown timeout.
package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/crucible-ai/crucible/internal/config"
	"github.com/crucible-ai/crucible/internal/events"
	"github.com/crucible-ai/crucible/internal/filter"
	"github.com/crucible-ai/crucible/internal/observability"
	"github.com/crucible-ai/crucible/internal/registry"
	"github.com/crucible-ai/crucible/internal/router"
	"github.com/crucible-ai/crucible/internal/types"
)

// Daemon is the assembled Crucible event bus process.
type Daemon struct {
	config *config.Config
	logger *slog.Logger
	tracer trace.Tracer

	engine   *filter.Engine
	registry *registry.Registry
	router   *router.Router

	mu        sync.Mutex
	running   bool
	startTime time.Time

	pidFile  string
	infoFile string
}

// Option customizes a Daemon before Start.
type Option func(*Daemon)

// WithLogger overrides the logger built from the logging configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Daemon) { d.logger = logger }
}

// WithTracer overrides the tracer built from the tracing configuration.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Daemon) { d.tracer = tracer }
}

// New wires a Daemon from configuration. Nothing runs until Start.
func New(cfg *config.Config, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	d := &Daemon{config: cfg}
	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		logger, err := observability.BuildLogger(cfg.Logging)
		if err != nil {
			return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to build logger", err)
		}
		d.logger = logger
	}
	if d.tracer == nil {
		d.tracer = observability.Tracer(cfg.Tracing)
	}

	d.engine = filter.NewEngine(
		filter.WithLogger(d.logger),
		filter.WithCacheSize(cfg.Filter.CacheSize),
		filter.WithCacheTTL(cfg.Filter.CacheTTL),
	)
	d.registry = registry.NewRegistry(d.logger)
	d.router = router.NewRouter(d.engine, d.registry, routerConfig(cfg),
		router.WithLogger(d.logger),
		router.WithTracer(d.tracer),
	)

	if cfg.Core.DataDir != "" {
		d.pidFile = filepath.Join(cfg.Core.DataDir, "daemon.pid")
		d.infoFile = filepath.Join(cfg.Core.DataDir, "daemon.json")
	}
	return d, nil
}

// routerConfig maps the file configuration onto the router's knobs.
func routerConfig(cfg *config.Config) router.Config {
	return router.Config{
		DeliveryTimeout:        cfg.Router.DeliveryTimeout,
		RetryBaseDelay:         cfg.Router.RetryBaseDelay,
		RetryMaxDelay:          cfg.Router.RetryMaxDelay,
		DedupWindow:            cfg.Router.DedupWindow,
		MaxEventSize:           cfg.Events.MaxEventSize,
		LoadBalanceStrategy:    registry.LoadBalanceStrategy(cfg.Router.LoadBalanceStrategy),
		SynthesizeResponses:    cfg.Router.SynthesizeResponses,
		PublishLifecycleEvents: cfg.Router.PublishServiceEvents,
		CircuitBreaker: registry.CircuitBreakerConfig{
			FailureThreshold:  cfg.Breaker.FailureThreshold,
			OpenTimeout:       cfg.Breaker.OpenTimeout,
			SuccessThreshold:  cfg.Breaker.SuccessThreshold,
			HalfOpenMaxProbes: cfg.Breaker.HalfOpenMaxProbes,
		},
	}
}

// Start brings up the filter engine and router and records the PID and
// info files for client discovery. It returns an error if the daemon is
// already running, or if another process holds the PID file.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return types.NewError(types.DAEMON_ALREADY_RUNNING, "daemon is already running")
	}
	if d.pidFile != "" {
		if pid, err := ReadPIDFile(d.pidFile); err == nil && IsProcessRunning(pid) && pid != os.Getpid() {
			return types.NewErrorf(types.DAEMON_ALREADY_RUNNING,
				"another daemon is running with pid %d", pid)
		}
	}

	d.engine.Start()
	d.router.Start()
	d.startTime = time.Now().UTC()
	d.running = true

	if d.pidFile != "" {
		if err := WritePIDFile(d.pidFile, os.Getpid()); err != nil {
			d.logger.Warn("failed to write pid file", "path", d.pidFile, "error", err)
		}
		info := Info{
			PID:       os.Getpid(),
			StartedAt: d.startTime,
			Version:   Version,
		}
		if err := WriteInfoFile(d.infoFile, info); err != nil {
			d.logger.Warn("failed to write info file", "path", d.infoFile, "error", err)
		}
	}

	d.logger.InfoContext(ctx, "daemon started",
		"strategy", d.config.Router.LoadBalanceStrategy,
		"filter_cache_size", d.config.Filter.CacheSize,
	)
	return nil
}

// Stop shuts the daemon down, draining in-flight deliveries for up to the
// configured shutdown timeout before returning.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return types.NewError(types.DAEMON_NOT_RUNNING, "daemon is not running")
	}

	done := make(chan struct{})
	go func() {
		d.router.Stop()
		d.engine.Stop()
		close(done)
	}()

	timeout := d.config.Core.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		d.logger.Warn("shutdown timeout elapsed with deliveries in flight", "timeout", timeout)
	case <-ctx.Done():
		d.logger.Warn("shutdown interrupted", "error", ctx.Err())
	}

	d.running = false
	if d.pidFile != "" {
		RemovePIDFile(d.pidFile)
		os.Remove(d.infoFile)
	}
	d.logger.Info("daemon stopped", "uptime", time.Since(d.startTime).Round(time.Second))
	return nil
}

// Run starts the daemon and blocks until the context is cancelled, then
// performs a graceful stop.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return d.Stop(context.Background())
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Publish routes an event through the bus.
func (d *Daemon) Publish(ctx context.Context, event events.DaemonEvent) error {
	return d.router.Publish(ctx, event)
}

// RegisterService registers a service instance and its handler with the bus.
func (d *Daemon) RegisterService(reg registry.ServiceRegistration, handler router.Handler) error {
	return d.router.RegisterService(reg, handler)
}

// UnregisterService removes a service instance from the bus.
func (d *Daemon) UnregisterService(serviceID string) error {
	return d.router.UnregisterService(serviceID)
}

// Services lists the currently registered service instances.
func (d *Daemon) Services() []registry.ServiceRegistration {
	return d.router.Services()
}

// SetServiceHealth updates a service's health status.
func (d *Daemon) SetServiceHealth(serviceID string, health types.HealthStatus) error {
	return d.registry.SetHealth(serviceID, health)
}

// CompileFilter compiles a filter expression and returns its cached id.
func (d *Daemon) CompileFilter(expression string) (filter.FilterID, error) {
	return d.engine.Compile(expression)
}

// Status reports a point-in-time snapshot of the daemon's state.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	running := d.running
	startTime := d.startTime
	d.mu.Unlock()

	status := Status{
		Running:  running,
		Services: d.registry.Len(),
		Filter:   d.engine.Metrics(),
		Routing:  d.router.Stats(),
	}
	if running {
		status.Uptime = time.Since(startTime)
	}
	return status
}

// Status is a point-in-time view of the daemon for status commands.
type Status struct {
	Running  bool                `json:"running"`
	Uptime   time.Duration       `json:"uptime"`
	Services int                 `json:"services"`
	Filter   filter.Metrics      `json:"filter"`
	Routing  router.RoutingStats `json:"routing"`
}
