package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func filterTestEvent() DaemonEvent {
	return New(
		FilesystemEvent{Op: FileModified, Path: "/etc/passwd"},
		FilesystemSource("watcher-1"),
		TextPayload("change"),
	).WithPriority(PriorityCritical)
}

func TestEventFilter_EmptyMatchesEverything(t *testing.T) {
	event := filterTestEvent()
	f := EventFilter{}
	assert.True(t, f.Matches(&event))
}

func TestEventFilter_EventTypes(t *testing.T) {
	event := filterTestEvent()

	match := EventFilter{EventTypes: []string{"filesystem", "database"}}
	assert.True(t, match.Matches(&event))

	miss := EventFilter{EventTypes: []string{"database"}}
	assert.False(t, miss.Matches(&event))
}

func TestEventFilter_EventTypesMatchCustomName(t *testing.T) {
	event := New(
		CustomEvent{Name: "metrics.flush"},
		ServiceSource("collector"),
		TextPayload("x"),
	)

	byName := EventFilter{EventTypes: []string{"metrics.flush"}}
	assert.True(t, byName.Matches(&event))

	// Custom events match on their name, not the "custom" tag.
	byTag := EventFilter{EventTypes: []string{"custom"}}
	assert.False(t, byTag.Matches(&event))

	byCategory := EventFilter{Categories: []Category{CategoryCustom}}
	assert.True(t, byCategory.Matches(&event))
}

func TestEventFilter_NilKind(t *testing.T) {
	event := DaemonEvent{}

	assert.False(t, EventFilter{EventTypes: []string{"system"}}.Matches(&event))
	assert.False(t, EventFilter{Categories: []Category{CategorySystem}}.Matches(&event))
	assert.True(t, EventFilter{}.Matches(&event))
}

func TestEventFilter_Categories(t *testing.T) {
	event := filterTestEvent()

	match := EventFilter{Categories: []Category{CategoryFilesystem, CategoryDatabase}}
	assert.True(t, match.Matches(&event))

	miss := EventFilter{Categories: []Category{CategoryDatabase}}
	assert.False(t, miss.Matches(&event))
}

func TestEventFilter_Priorities(t *testing.T) {
	event := filterTestEvent()

	match := EventFilter{Priorities: []EventPriority{PriorityCritical, PriorityHigh}}
	assert.True(t, match.Matches(&event))

	miss := EventFilter{Priorities: []EventPriority{PriorityLow}}
	assert.False(t, miss.Matches(&event))
}

func TestEventFilter_Sources(t *testing.T) {
	event := filterTestEvent()

	match := EventFilter{Sources: []string{"watcher-1"}}
	assert.True(t, match.Matches(&event))

	miss := EventFilter{Sources: []string{"watcher-2"}}
	assert.False(t, miss.Matches(&event))
}

func TestEventFilter_MaxPayloadSize(t *testing.T) {
	event := filterTestEvent()

	assert.True(t, EventFilter{MaxPayloadSize: 1024}.Matches(&event))
	assert.False(t, EventFilter{MaxPayloadSize: 1}.Matches(&event))
}

func TestEventFilter_CriteriaAreANDed(t *testing.T) {
	event := filterTestEvent()

	f := EventFilter{
		Categories: []Category{CategoryFilesystem},
		Priorities: []EventPriority{PriorityCritical},
		Sources:    []string{"watcher-1"},
	}
	assert.True(t, f.Matches(&event))

	f.Sources = []string{"other"}
	assert.False(t, f.Matches(&event))
}

func TestEventFilter_ExpressionIgnoredByMatches(t *testing.T) {
	event := filterTestEvent()
	f := EventFilter{Expression: "event.priority == 'Low'"}
	// Structural matching leaves expressions to the filter engine.
	assert.True(t, f.Matches(&event))
}

func TestServiceTarget_Builders(t *testing.T) {
	base := NewServiceTarget("svc-1")

	typed := base.WithType("executor").WithInstance("i-2").WithPriority(3)
	assert.Equal(t, "svc-1", typed.ServiceID)
	assert.Equal(t, "executor", typed.ServiceType)
	assert.Equal(t, "i-2", typed.Instance)
	assert.Equal(t, 3, typed.Priority)

	filtered := base.WithFilter(EventFilter{Sources: []string{"a"}})
	assert.Empty(t, base.Filters)
	assert.Len(t, filtered.Filters, 1)
}
