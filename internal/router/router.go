// Package router delivers events to registered services with load
// balancing, circuit breaking, per-target filtering, and bounded retries.
//
// Delivery semantics are at-least-once: a publish either reaches every
// matching target, is silently skipped by a filter, or surfaces a terminal
// error carrying the last underlying failure. Events from one producer to
// one service are delivered in publish order.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/crucible-ai/crucible/internal/events"
	"github.com/crucible-ai/crucible/internal/filter"
	"github.com/crucible-ai/crucible/internal/registry"
	"github.com/crucible-ai/crucible/internal/types"
)

// Config holds router tunables. Zero-valued fields fall back to defaults.
type Config struct {
	// DeliveryTimeout bounds one handler invocation. A timeout counts as a
	// delivery failure for circuit-breaker and retry purposes.
	DeliveryTimeout time.Duration

	// RetryBaseDelay and RetryMaxDelay bound the exponential backoff
	// between delivery attempts.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// DedupWindow rejects republished event ids inside the window.
	// Zero disables deduplication.
	DedupWindow time.Duration

	// MaxEventSize is the serialized event size ceiling.
	MaxEventSize int

	// LoadBalanceStrategy selects among instances of a service type.
	LoadBalanceStrategy registry.LoadBalanceStrategy

	// CircuitBreaker configures the per-service breaker bank.
	CircuitBreaker registry.CircuitBreakerConfig

	// SynthesizeResponses publishes a response event back to the producer
	// when a handler returns a response payload.
	SynthesizeResponses bool

	// PublishLifecycleEvents broadcasts service registration, removal, and
	// health changes as service events.
	PublishLifecycleEvents bool
}

// DefaultConfig returns the router defaults.
func DefaultConfig() Config {
	return Config{
		DeliveryTimeout:        30 * time.Second,
		RetryBaseDelay:         100 * time.Millisecond,
		RetryMaxDelay:          5 * time.Second,
		DedupWindow:            time.Minute,
		MaxEventSize:           events.DefaultMaxEventSize,
		LoadBalanceStrategy:    registry.StrategyRoundRobin,
		CircuitBreaker:         registry.DefaultCircuitBreakerConfig(),
		SynthesizeResponses:    true,
		PublishLifecycleEvents: true,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = def.DeliveryTimeout
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		c.RetryMaxDelay = def.RetryMaxDelay
	}
	if c.MaxEventSize <= 0 {
		c.MaxEventSize = def.MaxEventSize
	}
	if !registry.ValidStrategy(c.LoadBalanceStrategy) {
		c.LoadBalanceStrategy = def.LoadBalanceStrategy
	}
	return c
}

// Router routes published events to service handlers.
//
// All methods are safe for concurrent use. The registry, breaker bank, and
// filter engine each carry their own locking, so deliveries to unrelated
// services proceed independently.
type Router struct {
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	engine   *filter.Engine
	registry *registry.Registry
	balancer *registry.LoadBalancer
	breaker  *registry.CircuitBreaker

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	pairs *pairLocks
	dedup *dedupWindow

	timersMu sync.Mutex
	timers   map[types.ID]*time.Timer

	mu      sync.Mutex
	running bool
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	stats statsCounters
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithTracer sets the router's tracer for delivery spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Router) { r.tracer = tracer }
}

// NewRouter creates a stopped router over a filter engine and registry.
// Call Start before publishing.
func NewRouter(engine *filter.Engine, reg *registry.Registry, cfg Config, opts ...Option) *Router {
	cfg = cfg.withDefaults()
	r := &Router{
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer("router"),
		engine:   engine,
		registry: reg,
		breaker:  registry.NewCircuitBreaker(cfg.CircuitBreaker),
		handlers: make(map[string]Handler),
		pairs:    newPairLocks(),
		dedup:    newDedupWindow(cfg.DedupWindow),
		timers:   make(map[types.ID]*time.Timer),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "router")
	r.balancer = registry.NewLoadBalancer(reg, r.breaker, cfg.LoadBalanceStrategy)

	if cfg.PublishLifecycleEvents {
		reg.Watch(r.onRegistryChange)
	}
	return r
}

// Start transitions the router to running. Starting a running router is a
// no-op.
func (r *Router) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.baseCtx, r.cancel = context.WithCancel(context.Background())
	r.running = true
	r.logger.Info("router started",
		"delivery_timeout", r.cfg.DeliveryTimeout,
		"strategy", r.cfg.LoadBalanceStrategy)
}

// Stop cancels pending scheduled events, waits for in-flight deliveries,
// and transitions the router to stopped.
func (r *Router) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.timersMu.Lock()
	for id, timer := range r.timers {
		if timer.Stop() {
			r.wg.Done()
		}
		delete(r.timers, id)
	}
	r.timersMu.Unlock()

	r.cancel()
	r.wg.Wait()
	r.logger.Info("router stopped")
}

// Running reports whether the router is started.
func (r *Router) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// RegisterService registers a service and the handler that receives its
// events. Re-registering a service id replaces both.
func (r *Router) RegisterService(reg registry.ServiceRegistration, handler Handler) error {
	if handler == nil {
		return types.NewErrorf(types.SERVICE_REGISTRATION_INVALID,
			"registration for %s requires a handler", reg.ServiceID)
	}
	r.handlersMu.Lock()
	r.handlers[reg.ServiceID] = handler
	r.handlersMu.Unlock()

	if err := r.registry.Register(reg); err != nil {
		r.handlersMu.Lock()
		delete(r.handlers, reg.ServiceID)
		r.handlersMu.Unlock()
		return err
	}
	return nil
}

// UnregisterService removes a service, its handler, and its breaker state.
func (r *Router) UnregisterService(serviceID string) error {
	if err := r.registry.Unregister(serviceID); err != nil {
		return err
	}
	r.handlersMu.Lock()
	delete(r.handlers, serviceID)
	r.handlersMu.Unlock()
	r.breaker.Remove(serviceID)
	return nil
}

// Services returns all current registrations.
func (r *Router) Services() []registry.ServiceRegistration {
	return r.registry.List()
}

// ServiceHealth returns the health of a registered service.
func (r *Router) ServiceHealth(serviceID string) (types.HealthStatus, error) {
	return r.registry.Health(serviceID)
}

// BreakerState exposes a service's circuit state for monitoring.
func (r *Router) BreakerState(serviceID string) registry.CircuitState {
	return r.breaker.State(serviceID)
}

// Stats returns a snapshot of routing counters.
func (r *Router) Stats() RoutingStats {
	return r.stats.snapshot()
}

// Publish validates and routes an event.
//
// Scheduled events are accepted immediately and dispatched when due.
// Publish returns once every resolved target has been delivered, skipped by
// a filter, or terminally failed; the first terminal error is returned.
func (r *Router) Publish(ctx context.Context, event events.DaemonEvent) error {
	if !r.Running() {
		return types.NewError(types.ROUTER_STOPPED, "router is not running")
	}
	if err := event.ValidateWithLimit(r.cfg.MaxEventSize); err != nil {
		return err
	}
	if r.dedup.observe(event.ID) {
		r.stats.duplicates.Add(1)
		return types.NewErrorf(types.EVENT_DUPLICATE,
			"event %s was already published", event.ID.Short())
	}
	r.stats.published.Add(1)

	if event.IsScheduled() {
		r.schedule(event)
		return nil
	}
	return r.deliver(ctx, event)
}

// schedule defers an event until its ScheduledAt time.
func (r *Router) schedule(event events.DaemonEvent) {
	delay := time.Until(*event.ScheduledAt)
	r.stats.scheduled.Add(1)
	r.wg.Add(1)

	r.timersMu.Lock()
	r.timers[event.ID] = time.AfterFunc(delay, func() {
		defer r.wg.Done()
		r.timersMu.Lock()
		delete(r.timers, event.ID)
		r.timersMu.Unlock()

		if !r.Running() {
			return
		}
		if err := r.deliver(r.baseCtx, event); err != nil {
			r.logger.Warn("scheduled event delivery failed",
				"event_id", event.ID.Short(),
				"error", err)
		}
	})
	r.timersMu.Unlock()

	r.logger.Debug("event scheduled",
		"event_id", event.ID.Short(),
		"delay", delay)
}

// deliver fans an event out to its resolved targets.
func (r *Router) deliver(ctx context.Context, event events.DaemonEvent) error {
	ctx, span := r.tracer.Start(ctx, "router.deliver",
		trace.WithAttributes(
			attribute.String("event.id", event.ID.String()),
			attribute.String("event.category", string(event.Kind.Category())),
			attribute.String("event.priority", event.Priority.String()),
		))
	defer span.End()

	targets := r.resolveTargets(&event)
	if len(targets) == 0 {
		// Broadcast with nobody listening.
		return nil
	}
	if len(targets) == 1 {
		return r.deliverToTarget(ctx, event, targets[0])
	}

	g := new(errgroup.Group)
	for _, target := range targets {
		g.Go(func() error {
			return r.deliverToTarget(ctx, event, target)
		})
	}
	return g.Wait()
}

// resolveTargets expands an empty target list into a broadcast to every
// registered service except the event's own source.
func (r *Router) resolveTargets(event *events.DaemonEvent) []events.ServiceTarget {
	if len(event.Targets) > 0 {
		return event.Targets
	}
	var targets []events.ServiceTarget
	for _, reg := range r.registry.List() {
		if reg.ServiceID == event.Source.ID {
			continue
		}
		targets = append(targets, events.NewServiceTarget(reg.ServiceID))
	}
	return targets
}

// deliverToTarget resolves the concrete service instance for one target and
// runs the delivery attempt loop under the source→target pair lock.
func (r *Router) deliverToTarget(ctx context.Context, event events.DaemonEvent, target events.ServiceTarget) error {
	serviceID := target.ServiceID
	if serviceID == "" {
		selected, err := r.balancer.Select(target.ServiceType)
		if err != nil {
			r.stats.failed.Add(1)
			return err
		}
		serviceID = selected.ServiceID
	} else if _, err := r.registry.Get(serviceID); err != nil {
		r.stats.failed.Add(1)
		return err
	}

	unlock := r.pairs.lock(event.Source.ID, serviceID)
	defer unlock()
	return r.attemptLoop(ctx, event, target, serviceID)
}

// attemptLoop delivers with bounded exponential backoff. Circuit rejections
// are never retried here; retrying into an Open circuit would defeat it.
func (r *Router) attemptLoop(ctx context.Context, event events.DaemonEvent, target events.ServiceTarget, serviceID string) error {
	var lastErr error
	for {
		// Cancellation before the handler runs has no side effect.
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.breaker.Allow(serviceID); err != nil {
			r.stats.circuitRejections.Add(1)
			var openErr *registry.CircuitOpenError
			if errors.As(err, &openErr) {
				return types.WrapError(types.CIRCUIT_BREAKER_OPEN,
					fmt.Sprintf("delivery to %s rejected", serviceID), err)
			}
			return err
		}

		match, err := r.targetMatches(&event, target)
		if err != nil {
			r.stats.failed.Add(1)
			return err
		}
		if !match {
			r.stats.filteredOut.Add(1)
			r.logger.Debug("event filtered out",
				"event_id", event.ID.Short(),
				"service_id", serviceID)
			return nil
		}

		err = r.invoke(ctx, &event, serviceID)
		if err == nil {
			r.stats.delivered.Add(1)
			r.breaker.RecordSuccess(serviceID)
			return nil
		}
		r.breaker.RecordFailure(serviceID)
		lastErr = err

		if !event.CanRetry() {
			break
		}
		event.IncrementRetry()
		r.stats.retried.Add(1)
		r.logger.Debug("delivery retry",
			"event_id", event.ID.Short(),
			"service_id", serviceID,
			"attempt", event.RetryCount,
			"error", err)

		select {
		case <-time.After(r.backoff(event.RetryCount)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.stats.failed.Add(1)
	event.Metadata.Metrics.AddFailure(serviceID)
	r.logger.Error("delivery terminally failed",
		"event_id", event.ID.Short(),
		"service_id", serviceID,
		"attempts", event.RetryCount+1,
		"error", lastErr)
	return types.WrapError(types.SERVICE_EXECUTION_ERROR,
		fmt.Sprintf("delivery to %s failed after %d attempts", serviceID, event.RetryCount+1), lastErr)
}

// backoff returns the delay before the given retry attempt, doubling from
// RetryBaseDelay and capped at RetryMaxDelay.
func (r *Router) backoff(attempt int) time.Duration {
	delay := r.cfg.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= r.cfg.RetryMaxDelay {
			return r.cfg.RetryMaxDelay
		}
	}
	return delay
}

// targetMatches evaluates a target's declarative filters and any attached
// filter-language expressions against the event.
func (r *Router) targetMatches(event *events.DaemonEvent, target events.ServiceTarget) (bool, error) {
	for i := range target.Filters {
		f := &target.Filters[i]
		if !f.Matches(event) {
			return false, nil
		}
		if f.Expression == "" {
			continue
		}
		id, err := r.engine.Compile(f.Expression)
		if err != nil {
			return false, types.WrapError(types.FILTER_COMPILE_FAILED,
				fmt.Sprintf("target filter for %s", target.ServiceID), err)
		}
		matched, err := r.engine.Evaluate(id, event)
		if err != nil {
			return false, types.WrapError(types.FILTER_EVAL_FAILED,
				fmt.Sprintf("target filter for %s", target.ServiceID), err)
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// invoke runs the handler for one delivery attempt. Once the handler has
// been invoked the attempt runs to completion even if the caller's context
// is cancelled, so breaker and retry bookkeeping stay consistent.
func (r *Router) invoke(ctx context.Context, event *events.DaemonEvent, serviceID string) error {
	r.handlersMu.RLock()
	handler := r.handlers[serviceID]
	r.handlersMu.RUnlock()
	if handler == nil {
		return types.NewErrorf(types.SERVICE_NOT_FOUND,
			"service %s has no handler", serviceID)
	}

	event.Metadata.Metrics.StartProcessing()

	attemptCtx, cancelAttempt := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.DeliveryTimeout)
	defer cancelAttempt()

	type result struct {
		outcome EventOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := handler.Receive(attemptCtx, event)
		done <- result{outcome: outcome, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return types.WrapRetryableError(types.SERVICE_EXECUTION_ERROR,
				fmt.Sprintf("handler for %s failed", serviceID), res.err)
		}
		event.Metadata.Metrics.CompleteProcessing()
		event.Metadata.Metrics.AddSuccess(serviceID)
		r.handleOutcome(event, serviceID, res.outcome)
		return nil
	case <-attemptCtx.Done():
		return types.NewRetryableError(types.DELIVERY_TIMEOUT,
			fmt.Sprintf("delivery to %s exceeded %s", serviceID, r.cfg.DeliveryTimeout))
	}
}

// handleOutcome merges handler diagnostics and synthesizes a response event
// when the handler returned a response payload and the producer is itself a
// registered service.
func (r *Router) handleOutcome(event *events.DaemonEvent, serviceID string, outcome EventOutcome) {
	for k, v := range outcome.Metadata {
		event.Metadata.Debug.AddInfo(k, v)
	}
	if !r.cfg.SynthesizeResponses || outcome.Response == nil {
		return
	}
	if event.Source.Type != events.SourceService {
		return
	}
	if _, err := r.registry.Get(event.Source.ID); err != nil {
		return
	}

	response := events.AsResponse(
		events.ServiceEvent{Op: events.ResponseSent, ServiceID: serviceID},
		events.ServiceSource(serviceID),
		*outcome.Response,
		event.ID,
	).WithCorrelationID(event.CorrelationID).
		WithTarget(events.NewServiceTarget(event.Source.ID))

	r.stats.responses.Add(1)
	r.publishAsync(response)
}

// onRegistryChange broadcasts registry mutations as service events.
func (r *Router) onRegistryChange(change registry.RegistryChange) {
	if !r.Running() {
		return
	}

	var kind events.ServiceEvent
	switch change.Kind {
	case registry.ChangeRegistered:
		kind = events.ServiceEvent{Op: events.ServiceRegistered, ServiceID: change.ServiceID}
	case registry.ChangeUnregistered:
		kind = events.ServiceEvent{Op: events.ServiceUnregistered, ServiceID: change.ServiceID}
	case registry.ChangeHealthUpdated:
		kind = events.ServiceEvent{
			Op:        events.ServiceStatusChanged,
			ServiceID: change.ServiceID,
			NewStatus: string(change.Health.State),
		}
	default:
		return
	}

	event := events.New(kind, events.SystemSource("registry"),
		events.JSONPayload(change))
	r.publishAsync(event)
}

// publishAsync publishes a router-synthesized event without blocking the
// delivery that produced it.
func (r *Router) publishAsync(event events.DaemonEvent) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	ctx := r.baseCtx
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		if err := r.Publish(ctx, event); err != nil {
			r.logger.Warn("synthesized event publish failed",
				"event_id", event.ID.Short(),
				"error", err)
		}
	}()
}
