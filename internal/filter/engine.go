// Package filter compiles the event filter expression language into cached
// predicates and evaluates them against events.
//
// The language covers field comparisons (event.type, event.priority,
// event.source.id, event.metadata.<key>, event.id), list membership,
// string prefix and regex tests, and boolean combinators. Compiled filters
// are cached by normalized expression text so repeated compilations of the
// same filter are cheap and idempotent.
package filter

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crucible-ai/crucible/internal/events"
	"github.com/crucible-ai/crucible/internal/types"
)

// FilterID identifies a compiled filter held by the engine. Ids are opaque;
// compiling identical expression text returns the same id for as long as
// the entry stays cached.
type FilterID string

func newFilterID() FilterID {
	return FilterID("filter-" + types.NewID().Short())
}

// sweepInterval is how often the background sweeper drops expired entries.
const sweepInterval = time.Minute

// Metrics is a point-in-time snapshot of engine counters.
type Metrics struct {
	Compilations   uint64 `json:"compilations"`
	CacheHits      uint64 `json:"cache_hits"`
	CacheMisses    uint64 `json:"cache_misses"`
	CompileErrors  uint64 `json:"compile_errors"`
	Evaluations    uint64 `json:"evaluations"`
	EvalErrors     uint64 `json:"eval_errors"`
	CachedFilters  int    `json:"cached_filters"`
	EvictedFilters uint64 `json:"evicted_filters"`
}

// Engine compiles and evaluates event filters. All methods are safe for
// concurrent use; evaluation takes only a read lock on the cache so many
// callers can evaluate in parallel.
//
// The engine has an explicit lifecycle: Compile and Evaluate fail with an
// ENGINE_NOT_RUNNING error until Start is called and after Stop.
type Engine struct {
	logger *slog.Logger
	cache  *filterCache

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	compilations  atomic.Uint64
	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
	compileErrors atomic.Uint64
	evaluations   atomic.Uint64
	evalErrors    atomic.Uint64
	evicted       atomic.Uint64
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger    *slog.Logger
	cacheSize int
	cacheTTL  time.Duration
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = logger }
}

// WithCacheSize bounds the number of compiled filters retained.
func WithCacheSize(n int) EngineOption {
	return func(o *engineOptions) { o.cacheSize = n }
}

// WithCacheTTL sets how long an unused compiled filter stays cached.
func WithCacheTTL(ttl time.Duration) EngineOption {
	return func(o *engineOptions) { o.cacheTTL = ttl }
}

// NewEngine creates a stopped engine. Call Start before compiling.
func NewEngine(opts ...EngineOption) *Engine {
	options := engineOptions{
		logger:    slog.Default(),
		cacheSize: DefaultCacheCapacity,
		cacheTTL:  DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Engine{
		logger: options.logger.With("component", "filter_engine"),
		cache:  newFilterCache(options.cacheSize, options.cacheTTL),
	}
}

// Start transitions the engine to running and launches the cache sweeper.
// Starting a running engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	go e.sweepLoop(e.stopCh)
	e.logger.Info("filter engine started",
		"cache_size", e.cache.capacity,
		"cache_ttl", e.cache.ttl)
}

// Stop transitions the engine to stopped and clears the cache. Compiled
// filter ids become invalid. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	close(e.stopCh)
	e.cache.clear()
	e.logger.Info("filter engine stopped")
}

// Running reports whether the engine is started.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Compile parses an expression into a predicate and returns its id.
// Compiling identical expression text (modulo whitespace and quote style)
// returns the id of the cached entry. Invalid expressions fail with a
// *CompileError and leave no partial state behind.
func (e *Engine) Compile(expression string) (FilterID, error) {
	if !e.Running() {
		return "", errNotRunning()
	}
	e.compilations.Add(1)
	now := time.Now()

	// Fast path: the raw text is already in normalized form for the
	// common case of programmatic callers reusing exact strings.
	if entry, ok := e.cache.lookupByExpr(expression, now); ok {
		e.cacheHits.Add(1)
		return entry.id, nil
	}

	compiled, normalized, err := parse(expression)
	if err != nil {
		e.compileErrors.Add(1)
		return "", err
	}

	if entry, ok := e.cache.lookupByExpr(normalized, now); ok {
		e.cacheHits.Add(1)
		return entry.id, nil
	}
	e.cacheMisses.Add(1)

	entry, evicted := e.cache.insert(&cacheEntry{
		id:         newFilterID(),
		expression: normalized,
		compiled:   compiled,
		createdAt:  now,
	}, now)
	if evicted > 0 {
		e.evicted.Add(uint64(evicted))
	}

	e.logger.Debug("filter compiled",
		"filter_id", string(entry.id),
		"expression", normalized)
	return entry.id, nil
}

// Evaluate runs a compiled filter against an event. Absent fields and
// type-incompatible comparisons evaluate to false; an unknown or evicted
// filter id is an *EvalError.
func (e *Engine) Evaluate(id FilterID, event *events.DaemonEvent) (bool, error) {
	if !e.Running() {
		return false, errNotRunning()
	}
	e.evaluations.Add(1)

	entry, ok := e.cache.lookupByID(id, time.Now())
	if !ok {
		e.evalErrors.Add(1)
		return false, &EvalError{FilterID: id, Message: "unknown or evicted filter id"}
	}
	return entry.compiled.eval(event), nil
}

// Expression returns the normalized source text of a compiled filter.
// A stopped engine holds no filters and reports false for every id.
func (e *Engine) Expression(id FilterID) (string, bool) {
	if !e.Running() {
		return "", false
	}
	entry, ok := e.cache.lookupByID(id, time.Now())
	if !ok {
		return "", false
	}
	return entry.expression, true
}

// Remove drops a compiled filter from the cache. A stopped engine holds
// no filters and reports false for every id.
func (e *Engine) Remove(id FilterID) bool {
	if !e.Running() {
		return false
	}
	return e.cache.remove(id)
}

// Metrics returns a snapshot of the engine's counters.
func (e *Engine) Metrics() Metrics {
	return Metrics{
		Compilations:   e.compilations.Load(),
		CacheHits:      e.cacheHits.Load(),
		CacheMisses:    e.cacheMisses.Load(),
		CompileErrors:  e.compileErrors.Load(),
		Evaluations:    e.evaluations.Load(),
		EvalErrors:     e.evalErrors.Load(),
		CachedFilters:  e.cache.size(),
		EvictedFilters: e.evicted.Load(),
	}
}

// Check compiles an expression without caching it, for syntax validation.
// It works on a stopped engine.
func Check(expression string) error {
	_, _, err := parse(expression)
	return err
}

func (e *Engine) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if dropped := e.cache.sweep(now); dropped > 0 {
				e.evicted.Add(uint64(dropped))
				e.logger.Debug("filter cache sweep", "dropped", dropped)
			}
		}
	}
}

func errNotRunning() error {
	return types.NewError(types.ENGINE_NOT_RUNNING, "filter engine is not running")
}
