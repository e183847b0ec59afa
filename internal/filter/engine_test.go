package filter

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-ai/crucible/internal/events"
	"github.com/crucible-ai/crucible/internal/types"
)

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	engine := NewEngine(opts...)
	engine.Start()
	t.Cleanup(engine.Stop)
	return engine
}

func testEvent(priority events.EventPriority, sourceID string, metadata map[string]string) *events.DaemonEvent {
	event := events.New(
		events.SystemEvent{Op: events.DaemonStarted},
		events.ServiceSource(sourceID),
		events.TextPayload("test"),
	).WithPriority(priority)
	for k, v := range metadata {
		event = event.WithMetadata(k, v)
	}
	return &event
}

func TestEngine_CompileIdempotent(t *testing.T) {
	engine := newTestEngine(t)

	id1, err := engine.Compile("event.priority == 'High'")
	require.NoError(t, err)
	id2, err := engine.Compile("event.priority == 'High'")
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "same expression must return the same id")

	id3, err := engine.Compile("event.priority == 'Low'")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3, "different expressions must return different ids")

	metrics := engine.Metrics()
	assert.Equal(t, uint64(3), metrics.Compilations)
	assert.Equal(t, uint64(1), metrics.CacheHits)
}

func TestEngine_CompileNormalizesSpelling(t *testing.T) {
	engine := newTestEngine(t)

	// Whitespace and quote style differences compile to the same entry.
	spellings := []string{
		`event.priority == 'High'`,
		`event.priority=="High"`,
		`  event.priority   ==   'High'  `,
	}
	var first FilterID
	for i, expr := range spellings {
		id, err := engine.Compile(expr)
		require.NoError(t, err, "spelling %d", i)
		if i == 0 {
			first = id
			continue
		}
		assert.Equal(t, first, id, "spelling %d should hit the cache", i)
	}
}

func TestEngine_CompileInvalidExpressions(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name string
		expr string
	}{
		{"unterminated string", `event.type == 'filesystem`},
		{"unterminated regex", `event.source.id matches r'abc`},
		{"unbalanced brackets", `event.type in ['a', 'b'`},
		{"unbalanced parens", `(event.type == 'a'`},
		{"incomplete boolean", `event.type == 'a' &&`},
		{"single ampersand", `event.type == 'a' & event.type == 'b'`},
		{"single pipe", `event.type == 'a' | event.type == 'b'`},
		{"single equals", `event.type = 'a'`},
		{"empty parens", `()`},
		{"empty in list", `event.type in []`},
		{"function call", `contains(event.type, 'fs')`},
		{"function call on field", `event.type.contains('fs')`},
		{"missing operator", `event.type 'filesystem'`},
		{"bare field", `event.type`},
		{"unknown root", `request.type == 'a'`},
		{"invalid regex", `event.source.id matches r'['`},
		{"bad escape", `event.type == 'a\q'`},
		{"empty expression", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Compile(tt.expr)
			require.Error(t, err)
			var ce *CompileError
			assert.ErrorAs(t, err, &ce)
		})
	}

	// Failed compilations leave nothing behind.
	assert.Equal(t, 0, engine.Metrics().CachedFilters)
}

func TestEngine_EvaluateAbsentFieldIsFalse(t *testing.T) {
	engine := newTestEngine(t)
	event := testEvent(events.PriorityNormal, "svc-1", nil)

	exprs := []string{
		`event.metadata.env == 'prod'`,
		`event.metadata.env != 'prod'`,
		`event.metadata.env > 5`,
		`event.metadata.env < 5`,
		`event.metadata.env >= 5`,
		`event.metadata.env <= 5`,
		`event.metadata.env in ['a', 'b']`,
		`event.metadata.env starts_with 'p'`,
		`event.metadata.env matches r'.*'`,
	}
	for _, expr := range exprs {
		id, err := engine.Compile(expr)
		require.NoError(t, err, expr)
		matched, err := engine.Evaluate(id, event)
		require.NoError(t, err, expr)
		assert.False(t, matched, "absent field must evaluate false: %s", expr)
	}
}

func TestEngine_EvaluateZeroValueEvent(t *testing.T) {
	engine := newTestEngine(t)

	// A zero-value event has no kind; event.type resolves to absent.
	exprs := []string{
		`event.type == 'system'`,
		`event.type != 'system'`,
		`event.type in ['system', 'custom']`,
		`event.type starts_with 's'`,
		`event.type matches r'.*'`,
	}
	for _, expr := range exprs {
		id, err := engine.Compile(expr)
		require.NoError(t, err, expr)
		matched, err := engine.Evaluate(id, &events.DaemonEvent{})
		require.NoError(t, err, expr)
		assert.False(t, matched, "nil kind must evaluate false: %s", expr)
	}
}

func TestEngine_EvaluateTypeMismatchIsFalse(t *testing.T) {
	engine := newTestEngine(t)
	event := testEvent(events.PriorityNormal, "svc-1", map[string]string{"env": "prod"})

	exprs := []string{
		`event.source.id > 5`,
		`event.source.id <= 10`,
		`event.metadata.env == 42`,
		`event.priority == 5`,
		`event.priority >= 'NotAPriority'`,
	}
	for _, expr := range exprs {
		id, err := engine.Compile(expr)
		require.NoError(t, err, expr)
		matched, err := engine.Evaluate(id, event)
		require.NoError(t, err, expr)
		assert.False(t, matched, "type mismatch must evaluate false: %s", expr)
	}
}

func TestEngine_PriorityOrdering(t *testing.T) {
	engine := newTestEngine(t)

	id, err := engine.Compile(`event.priority >= 'High'`)
	require.NoError(t, err)

	want := map[events.EventPriority]bool{
		events.PriorityCritical: true,
		events.PriorityHigh:     true,
		events.PriorityNormal:   false,
		events.PriorityLow:      false,
	}
	for priority, expected := range want {
		matched, err := engine.Evaluate(id, testEvent(priority, "svc-1", nil))
		require.NoError(t, err)
		assert.Equal(t, expected, matched, "priority %s", priority)
	}
}

func TestEngine_EvaluateCompoundExpression(t *testing.T) {
	engine := newTestEngine(t)

	id, err := engine.Compile(`event.priority == 'Critical' && event.source.id == 'security-monitor'`)
	require.NoError(t, err)

	matched, err := engine.Evaluate(id, testEvent(events.PriorityCritical, "security-monitor", nil))
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = engine.Evaluate(id, testEvent(events.PriorityNormal, "security-monitor", nil))
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestEngine_EvaluateOperators(t *testing.T) {
	engine := newTestEngine(t)
	event := testEvent(events.PriorityHigh, "scanner-alpha", map[string]string{
		"env":   "production",
		"count": "3",
	})

	tests := []struct {
		expr string
		want bool
	}{
		{`event.type == 'system'`, true},
		{`event.type != 'filesystem'`, true},
		{`event.type != 'system'`, false},
		{`event.source.id starts_with 'scanner-'`, true},
		{`event.source.id starts_with 'Scanner-'`, false},
		{`event.source.id matches r'^scanner-[a-z]+$'`, true},
		{`event.source.id matches r'^db-'`, false},
		{`event.type in ['system', 'filesystem']`, true},
		{`event.type in ['database', 'external']`, false},
		{`event.metadata.env == 'production'`, true},
		{`event.metadata.count == '3'`, true},
		{`event.priority < 'Critical'`, true},
		{`event.priority <= 'High'`, true},
		{`event.priority > 'Normal'`, true},
		{`!(event.type == 'database')`, true},
		{`event.type == 'database' || event.priority == 'High'`, true},
		{`(event.type == 'system' || event.type == 'custom') && event.metadata.env == 'production'`, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			id, err := engine.Compile(tt.expr)
			require.NoError(t, err)
			matched, err := engine.Evaluate(id, event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, matched)
		})
	}
}

func TestEngine_EvaluateUnknownID(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Evaluate(FilterID("filter-deadbeef"), testEvent(events.PriorityNormal, "svc-1", nil))
	require.Error(t, err)
	var ee *EvalError
	assert.ErrorAs(t, err, &ee)
}

func TestEngine_NotRunning(t *testing.T) {
	engine := NewEngine()

	_, err := engine.Compile(`event.type == 'system'`)
	require.Error(t, err)
	assert.Equal(t, types.ENGINE_NOT_RUNNING, types.CodeOf(err))

	_, err = engine.Evaluate(FilterID("filter-1"), testEvent(events.PriorityNormal, "svc-1", nil))
	require.Error(t, err)
	assert.Equal(t, types.ENGINE_NOT_RUNNING, types.CodeOf(err))

	engine.Start()
	id, err := engine.Compile(`event.type == 'system'`)
	require.NoError(t, err)

	engine.Stop()
	_, err = engine.Evaluate(id, testEvent(events.PriorityNormal, "svc-1", nil))
	require.Error(t, err)
	assert.Equal(t, types.ENGINE_NOT_RUNNING, types.CodeOf(err))

	_, ok := engine.Expression(id)
	assert.False(t, ok, "stopped engine holds no filters")
	assert.False(t, engine.Remove(id))
}

func TestEngine_CacheEviction(t *testing.T) {
	engine := newTestEngine(t, WithCacheSize(3))

	var ids []FilterID
	for i := 0; i < 3; i++ {
		id, err := engine.Compile(fmt.Sprintf("event.metadata.key%d == 'v'", i))
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond) // distinct last-used timestamps
	}
	assert.Equal(t, 3, engine.Metrics().CachedFilters)

	// A fourth filter evicts the least recently used entry.
	_, err := engine.Compile("event.metadata.key3 == 'v'")
	require.NoError(t, err)
	assert.Equal(t, 3, engine.Metrics().CachedFilters)

	event := testEvent(events.PriorityNormal, "svc-1", nil)
	_, err = engine.Evaluate(ids[0], event)
	assert.Error(t, err, "oldest entry should have been evicted")
	_, err = engine.Evaluate(ids[2], event)
	assert.NoError(t, err, "recent entries survive eviction")

	// Recompiling the evicted expression succeeds transparently.
	_, err = engine.Compile("event.metadata.key0 == 'v'")
	require.NoError(t, err)
}

func TestEngine_CacheTTL(t *testing.T) {
	engine := newTestEngine(t, WithCacheTTL(10*time.Millisecond))

	id, err := engine.Compile(`event.type == 'system'`)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = engine.Evaluate(id, testEvent(events.PriorityNormal, "svc-1", nil))
	assert.Error(t, err, "expired entry must not evaluate")

	id2, err := engine.Compile(`event.type == 'system'`)
	require.NoError(t, err)
	assert.NotEqual(t, id, id2, "recompilation after expiry issues a fresh id")
}

func TestEngine_ConcurrentCompileAndEvaluate(t *testing.T) {
	engine := newTestEngine(t, WithCacheSize(2000))

	const n = 1000
	ids := make([]FilterID, n)
	var wg sync.WaitGroup
	errCh := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := engine.Compile(fmt.Sprintf("event.metadata.worker == 'w%d'", i))
			if err != nil {
				errCh <- err
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	// Every compiled filter matches exactly its own event.
	for _, i := range []int{0, 17, 499, 999} {
		matched, err := engine.Evaluate(ids[i], testEvent(events.PriorityNormal, "svc-1",
			map[string]string{"worker": fmt.Sprintf("w%d", i)}))
		require.NoError(t, err)
		assert.True(t, matched, "filter %d should match its own event", i)

		matched, err = engine.Evaluate(ids[i], testEvent(events.PriorityNormal, "svc-1",
			map[string]string{"worker": "w-other"}))
		require.NoError(t, err)
		assert.False(t, matched, "filter %d should not match other events", i)
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(`event.type == 'system' && event.priority >= 'High'`))
	assert.Error(t, Check(`event.type ==`))
}
