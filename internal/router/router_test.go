package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-ai/crucible/internal/events"
	"github.com/crucible-ai/crucible/internal/filter"
	"github.com/crucible-ai/crucible/internal/registry"
	"github.com/crucible-ai/crucible/internal/types"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DeliveryTimeout = time.Second
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryMaxDelay = 5 * time.Millisecond
	cfg.CircuitBreaker = registry.CircuitBreakerConfig{
		FailureThreshold:  5,
		OpenTimeout:       50 * time.Millisecond,
		SuccessThreshold:  2,
		HalfOpenMaxProbes: 3,
	}
	// Lifecycle broadcasts would skew per-test delivery counts; the
	// lifecycle test enables them explicitly.
	cfg.PublishLifecycleEvents = false
	return cfg
}

func newTestRouter(t *testing.T, cfg Config) *Router {
	t.Helper()
	engine := filter.NewEngine()
	engine.Start()
	t.Cleanup(engine.Stop)

	r := NewRouter(engine, registry.NewRegistry(nil), cfg)
	r.Start()
	t.Cleanup(r.Stop)
	return r
}

// recordingHandler counts invocations and can be told to fail the first N.
type recordingHandler struct {
	mu        sync.Mutex
	received  []events.DaemonEvent
	failFirst int
	calls     atomic.Int64
}

func (h *recordingHandler) Receive(_ context.Context, event *events.DaemonEvent) (EventOutcome, error) {
	n := h.calls.Add(1)
	if int(n) <= h.failFirst {
		return EventOutcome{}, errors.New("simulated handler failure")
	}
	h.mu.Lock()
	h.received = append(h.received, *event)
	h.mu.Unlock()
	return Ack(), nil
}

func (h *recordingHandler) events() []events.DaemonEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]events.DaemonEvent, len(h.received))
	copy(out, h.received)
	return out
}

func register(t *testing.T, r *Router, serviceID, serviceType string, handler Handler) {
	t.Helper()
	require.NoError(t, r.RegisterService(registry.ServiceRegistration{
		ServiceID:   serviceID,
		ServiceType: serviceType,
	}, handler))
}

func targetedEvent(sourceID, targetID string) events.DaemonEvent {
	return events.New(
		events.CustomEvent{Name: "test.event"},
		events.ServiceSource(sourceID),
		events.TextPayload("hello"),
	).WithTarget(events.NewServiceTarget(targetID))
}

func TestRouter_PublishDelivers(t *testing.T) {
	r := newTestRouter(t, testConfig())
	handler := &recordingHandler{}
	register(t, r, "svc-1", "executor", handler)

	event := targetedEvent("producer", "svc-1")
	require.NoError(t, r.Publish(context.Background(), event))

	received := handler.events()
	require.Len(t, received, 1)
	assert.Equal(t, event.ID, received[0].ID)
	assert.Equal(t, 1, received[0].Metadata.Metrics.ProcessingAttempts)
	assert.Equal(t, uint64(1), r.Stats().Delivered)
}

func TestRouter_PublishWhenStopped(t *testing.T) {
	engine := filter.NewEngine()
	engine.Start()
	defer engine.Stop()
	r := NewRouter(engine, registry.NewRegistry(nil), testConfig())

	err := r.Publish(context.Background(), targetedEvent("producer", "svc-1"))
	assert.Equal(t, types.ROUTER_STOPPED, types.CodeOf(err))
}

func TestRouter_PublishRejectsInvalidEvent(t *testing.T) {
	r := newTestRouter(t, testConfig())

	// Custom events cannot broadcast; no targets means validation fails.
	event := events.New(
		events.CustomEvent{Name: "orphan"},
		events.ServiceSource("producer"),
		events.TextPayload("x"),
	)
	err := r.Publish(context.Background(), event)
	assert.Equal(t, types.EVENT_VALIDATION_FAILED, types.CodeOf(err))
}

func TestRouter_UnregisteredTargetIsServiceNotFound(t *testing.T) {
	r := newTestRouter(t, testConfig())

	err := r.Publish(context.Background(), targetedEvent("producer", "ghost"))
	require.Error(t, err)
	assert.Equal(t, types.SERVICE_NOT_FOUND, types.CodeOf(err))
}

func TestRouter_RetriesUntilSuccess(t *testing.T) {
	r := newTestRouter(t, testConfig())
	handler := &recordingHandler{failFirst: 2}
	register(t, r, "svc-1", "executor", handler)

	event := targetedEvent("producer", "svc-1").WithMaxRetries(3)
	require.NoError(t, r.Publish(context.Background(), event))

	assert.Equal(t, int64(3), handler.calls.Load())
	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, uint64(2), stats.Retried)
}

func TestRouter_ZeroMaxRetriesAttemptsOnce(t *testing.T) {
	r := newTestRouter(t, testConfig())
	handler := &recordingHandler{failFirst: 10}
	register(t, r, "svc-1", "executor", handler)

	event := targetedEvent("producer", "svc-1").WithMaxRetries(0)
	err := r.Publish(context.Background(), event)

	require.Error(t, err)
	assert.Equal(t, types.SERVICE_EXECUTION_ERROR, types.CodeOf(err))
	assert.Equal(t, int64(1), handler.calls.Load(), "max_retries=0 means exactly one attempt")
}

func TestRouter_TerminalFailureCarriesLastError(t *testing.T) {
	r := newTestRouter(t, testConfig())
	handler := &recordingHandler{failFirst: 10}
	register(t, r, "svc-1", "executor", handler)

	err := r.Publish(context.Background(), targetedEvent("producer", "svc-1").WithMaxRetries(2))
	require.Error(t, err)
	assert.Equal(t, int64(3), handler.calls.Load())
	assert.ErrorContains(t, err, "simulated handler failure")
	assert.Equal(t, uint64(1), r.Stats().Failed)
}

func TestRouter_CircuitBreakerFailsFast(t *testing.T) {
	r := newTestRouter(t, testConfig())
	handler := &recordingHandler{failFirst: 1000}
	register(t, r, "svc-1", "executor", handler)

	// Five terminal failures open the circuit.
	for i := 0; i < 5; i++ {
		err := r.Publish(context.Background(), targetedEvent("producer", "svc-1").WithMaxRetries(0))
		require.Error(t, err)
	}
	require.Equal(t, registry.StateOpen, r.BreakerState("svc-1"))

	callsBefore := handler.calls.Load()
	err := r.Publish(context.Background(), targetedEvent("producer", "svc-1").WithMaxRetries(0))
	require.Error(t, err)
	assert.Equal(t, types.CIRCUIT_BREAKER_OPEN, types.CodeOf(err))
	assert.Equal(t, callsBefore, handler.calls.Load(), "open circuit must not invoke the handler")
}

func TestRouter_CircuitBreakerRecovers(t *testing.T) {
	r := newTestRouter(t, testConfig())
	handler := &recordingHandler{failFirst: 5}
	register(t, r, "svc-1", "executor", handler)

	for i := 0; i < 5; i++ {
		require.Error(t, r.Publish(context.Background(), targetedEvent("producer", "svc-1").WithMaxRetries(0)))
	}
	require.Equal(t, registry.StateOpen, r.BreakerState("svc-1"))

	// After the cool-down, probes succeed and the circuit closes.
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, r.Publish(context.Background(), targetedEvent("producer", "svc-1").WithMaxRetries(0)))
	require.NoError(t, r.Publish(context.Background(), targetedEvent("producer", "svc-1").WithMaxRetries(0)))
	assert.Equal(t, registry.StateClosed, r.BreakerState("svc-1"))
}

func TestRouter_FilterSkipsSilently(t *testing.T) {
	r := newTestRouter(t, testConfig())
	handler := &recordingHandler{}
	register(t, r, "svc-1", "executor", handler)

	target := events.NewServiceTarget("svc-1").WithFilter(events.EventFilter{
		Expression: "event.priority == 'Critical'",
	})
	event := events.New(
		events.CustomEvent{Name: "routine"},
		events.ServiceSource("producer"),
		events.TextPayload("x"),
	).WithTarget(target) // Normal priority, expression does not match

	require.NoError(t, r.Publish(context.Background(), event))
	assert.Equal(t, int64(0), handler.calls.Load())
	assert.Equal(t, uint64(1), r.Stats().FilteredOut)
}

func TestRouter_DeclarativeFilterSkips(t *testing.T) {
	r := newTestRouter(t, testConfig())
	handler := &recordingHandler{}
	register(t, r, "svc-1", "executor", handler)

	target := events.NewServiceTarget("svc-1").WithFilter(events.EventFilter{
		Categories: []events.Category{events.CategoryFilesystem},
	})
	event := events.New(
		events.CustomEvent{Name: "not-filesystem"},
		events.ServiceSource("producer"),
		events.TextPayload("x"),
	).WithTarget(target)

	require.NoError(t, r.Publish(context.Background(), event))
	assert.Equal(t, int64(0), handler.calls.Load())
}

func TestRouter_BadFilterExpressionIsCompileError(t *testing.T) {
	r := newTestRouter(t, testConfig())
	register(t, r, "svc-1", "executor", &recordingHandler{})

	target := events.NewServiceTarget("svc-1").WithFilter(events.EventFilter{
		Expression: "event.priority ==",
	})
	event := events.New(
		events.CustomEvent{Name: "bad-filter"},
		events.ServiceSource("producer"),
		events.TextPayload("x"),
	).WithTarget(target)

	err := r.Publish(context.Background(), event)
	assert.Equal(t, types.FILTER_COMPILE_FAILED, types.CodeOf(err))
}

func TestRouter_BroadcastReachesAllServices(t *testing.T) {
	r := newTestRouter(t, testConfig())

	h1 := &recordingHandler{}
	h2 := &recordingHandler{}
	register(t, r, "svc-1", "executor", h1)
	register(t, r, "svc-2", "storage", h2)

	event := events.New(
		events.SystemEvent{Op: events.MaintenanceStarted},
		events.SystemSource("scheduler"),
		events.TextPayload("maintenance"),
	)
	require.NoError(t, r.Publish(context.Background(), event))

	assert.Equal(t, int64(1), h1.calls.Load())
	assert.Equal(t, int64(1), h2.calls.Load())
}

func TestRouter_DuplicatePublishRejected(t *testing.T) {
	r := newTestRouter(t, testConfig())
	register(t, r, "svc-1", "executor", &recordingHandler{})

	event := targetedEvent("producer", "svc-1")
	require.NoError(t, r.Publish(context.Background(), event))

	err := r.Publish(context.Background(), event)
	assert.Equal(t, types.EVENT_DUPLICATE, types.CodeOf(err))
	assert.Equal(t, uint64(1), r.Stats().Duplicates)
}

func TestRouter_ScheduledEventDeliversLater(t *testing.T) {
	r := newTestRouter(t, testConfig())
	handler := &recordingHandler{}
	register(t, r, "svc-1", "executor", handler)

	event := targetedEvent("producer", "svc-1").
		WithSchedule(time.Now().Add(30 * time.Millisecond))
	require.NoError(t, r.Publish(context.Background(), event))

	assert.Equal(t, int64(0), handler.calls.Load(), "scheduled event must not deliver early")

	assert.Eventually(t, func() bool {
		return handler.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), r.Stats().Scheduled)
}

func TestRouter_StopCancelsScheduledEvents(t *testing.T) {
	engine := filter.NewEngine()
	engine.Start()
	defer engine.Stop()
	r := NewRouter(engine, registry.NewRegistry(nil), testConfig())
	r.Start()

	handler := &recordingHandler{}
	register(t, r, "svc-1", "executor", handler)

	event := targetedEvent("producer", "svc-1").
		WithSchedule(time.Now().Add(time.Hour))
	require.NoError(t, r.Publish(context.Background(), event))

	r.Stop()
	assert.Equal(t, int64(0), handler.calls.Load())
}

func TestRouter_LoadBalancesAcrossInstances(t *testing.T) {
	r := newTestRouter(t, testConfig())

	h1 := &recordingHandler{}
	h2 := &recordingHandler{}
	register(t, r, "svc-a", "executor", h1)
	register(t, r, "svc-b", "executor", h2)

	for i := 0; i < 6; i++ {
		event := events.New(
			events.CustomEvent{Name: "work"},
			events.ServiceSource("producer"),
			events.TextPayload(fmt.Sprintf("job-%d", i)),
		).WithTarget(events.ServiceTarget{ServiceType: "executor"})
		require.NoError(t, r.Publish(context.Background(), event))
	}

	assert.Equal(t, int64(3), h1.calls.Load())
	assert.Equal(t, int64(3), h2.calls.Load())
}

func TestRouter_FIFOPerSourceTargetPair(t *testing.T) {
	r := newTestRouter(t, testConfig())
	handler := &recordingHandler{}
	register(t, r, "svc-1", "executor", handler)

	const n = 20
	for i := 0; i < n; i++ {
		event := events.New(
			events.CustomEvent{Name: "ordered"},
			events.ServiceSource("producer"),
			events.TextPayload(fmt.Sprintf("%d", i)),
		).WithTarget(events.NewServiceTarget("svc-1"))
		require.NoError(t, r.Publish(context.Background(), event))
	}

	received := handler.events()
	require.Len(t, received, n)
	for i, event := range received {
		payload, _ := event.Payload.AsString()
		assert.Equal(t, fmt.Sprintf("%d", i), payload, "delivery order must match publish order")
	}
}

func TestRouter_ResponseSynthesis(t *testing.T) {
	r := newTestRouter(t, testConfig())

	responses := make(chan events.DaemonEvent, 1)
	producerHandler := HandlerFunc(func(_ context.Context, event *events.DaemonEvent) (EventOutcome, error) {
		responses <- *event
		return Ack(), nil
	})
	register(t, r, "producer", "client", producerHandler)

	echoHandler := HandlerFunc(func(_ context.Context, event *events.DaemonEvent) (EventOutcome, error) {
		payload := events.TextPayload("echo")
		return EventOutcome{Response: &payload}, nil
	})
	register(t, r, "svc-1", "executor", echoHandler)

	original := targetedEvent("producer", "svc-1").
		WithCorrelationID(types.NewID())
	require.NoError(t, r.Publish(context.Background(), original))

	select {
	case response := <-responses:
		assert.Equal(t, original.ID, response.CausationID)
		assert.Equal(t, original.CorrelationID, response.CorrelationID)
		assert.Equal(t, "svc-1", response.Source.ID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for synthesized response")
	}
}

func TestRouter_DeliveryTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.DeliveryTimeout = 20 * time.Millisecond
	r := newTestRouter(t, cfg)

	slowHandler := HandlerFunc(func(ctx context.Context, _ *events.DaemonEvent) (EventOutcome, error) {
		select {
		case <-time.After(500 * time.Millisecond):
			return Ack(), nil
		case <-ctx.Done():
			return EventOutcome{}, ctx.Err()
		}
	})
	register(t, r, "svc-1", "executor", slowHandler)

	err := r.Publish(context.Background(), targetedEvent("producer", "svc-1").WithMaxRetries(0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.DELIVERY_TIMEOUT, "")),
		"terminal error should carry the timeout cause")
}

func TestRouter_CancelledBeforeInvokeHasNoEffect(t *testing.T) {
	r := newTestRouter(t, testConfig())
	handler := &recordingHandler{}
	register(t, r, "svc-1", "executor", handler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Publish(ctx, targetedEvent("producer", "svc-1"))
	require.Error(t, err)
	assert.Equal(t, int64(0), handler.calls.Load())
	assert.Equal(t, registry.StateClosed, r.BreakerState("svc-1"))
}

func TestRouter_UnregisterRemovesService(t *testing.T) {
	r := newTestRouter(t, testConfig())
	register(t, r, "svc-1", "executor", &recordingHandler{})

	require.NoError(t, r.UnregisterService("svc-1"))
	err := r.Publish(context.Background(), targetedEvent("producer", "svc-1"))
	assert.Equal(t, types.SERVICE_NOT_FOUND, types.CodeOf(err))
}

func TestRouter_RegisterRequiresHandler(t *testing.T) {
	r := newTestRouter(t, testConfig())

	err := r.RegisterService(registry.ServiceRegistration{
		ServiceID:   "svc-1",
		ServiceType: "executor",
	}, nil)
	assert.Equal(t, types.SERVICE_REGISTRATION_INVALID, types.CodeOf(err))
}

func TestRouter_LifecycleEventsBroadcast(t *testing.T) {
	cfg := testConfig()
	cfg.PublishLifecycleEvents = true
	r := newTestRouter(t, cfg)

	seen := make(chan events.DaemonEvent, 8)
	observer := HandlerFunc(func(_ context.Context, event *events.DaemonEvent) (EventOutcome, error) {
		seen <- *event
		return Ack(), nil
	})
	register(t, r, "observer", "monitor", observer)

	// Registering another service broadcasts a lifecycle event. The
	// observer's own registration event may arrive first.
	register(t, r, "svc-1", "executor", &recordingHandler{})

	deadline := time.After(time.Second)
	for {
		select {
		case event := <-seen:
			serviceEvent, ok := event.Kind.(events.ServiceEvent)
			require.True(t, ok)
			assert.Equal(t, events.ServiceRegistered, serviceEvent.Op)
			if serviceEvent.ServiceID == "svc-1" {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for lifecycle event")
		}
	}
}
