package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-ai/crucible/internal/types"
)

func TestNew_Defaults(t *testing.T) {
	event := New(CustomEvent{Name: "test"}, ServiceSource("svc-1"), TextPayload("hi"))

	assert.NoError(t, event.ID.Validate())
	assert.Equal(t, PriorityNormal, event.Priority)
	assert.Empty(t, event.Targets)
	assert.Equal(t, 0, event.RetryCount)
	assert.Equal(t, DefaultMaxRetries, event.MaxRetries)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestNew_UniqueIDs(t *testing.T) {
	a := New(CustomEvent{Name: "test"}, ServiceSource("svc-1"), TextPayload("hi"))
	b := New(CustomEvent{Name: "test"}, ServiceSource("svc-1"), TextPayload("hi"))
	assert.NotEqual(t, a.ID, b.ID)
}

func TestBuilders_ReturnCopies(t *testing.T) {
	base := New(CustomEvent{Name: "test"}, ServiceSource("svc-1"), TextPayload("hi"))

	targeted := base.WithTarget(NewServiceTarget("svc-2"))
	assert.Empty(t, base.Targets)
	require.Len(t, targeted.Targets, 1)

	tagged := base.WithMetadata("env", "prod")
	_, ok := base.Metadata.Field("env")
	assert.False(t, ok)
	v, ok := tagged.Metadata.Field("env")
	assert.True(t, ok)
	assert.Equal(t, "prod", v)

	urgent := base.WithPriority(PriorityCritical)
	assert.Equal(t, PriorityNormal, base.Priority)
	assert.Equal(t, PriorityCritical, urgent.Priority)
}

func TestAsResponse_SetsCausation(t *testing.T) {
	original := New(CustomEvent{Name: "request"}, ServiceSource("svc-1"), TextPayload("req"))
	response := AsResponse(ServiceEvent{Op: ResponseSent}, ServiceSource("svc-2"), TextPayload("resp"), original.ID)

	assert.Equal(t, original.ID, response.CausationID)
	assert.NotEqual(t, original.ID, response.ID)
}

func TestValidate_RequiresTargetsUnlessBroadcast(t *testing.T) {
	custom := New(CustomEvent{Name: "test"}, ServiceSource("svc-1"), TextPayload("hi"))
	err := custom.Validate()
	assert.Equal(t, types.EVENT_VALIDATION_FAILED, types.CodeOf(err))

	targeted := custom.WithTarget(NewServiceTarget("svc-2"))
	assert.NoError(t, targeted.Validate())

	// System events may broadcast with no targets.
	system := New(SystemEvent{Op: MaintenanceStarted}, SystemSource("daemon"), TextPayload("hi"))
	assert.NoError(t, system.Validate())
}

func TestValidate_NilKind(t *testing.T) {
	event := DaemonEvent{ID: types.NewID(), Priority: PriorityNormal}
	err := event.Validate()
	assert.Equal(t, types.EVENT_VALIDATION_FAILED, types.CodeOf(err))
}

func TestValidate_SizeLimit(t *testing.T) {
	big := make([]byte, 4096)
	event := New(SystemEvent{Op: MaintenanceStarted}, SystemSource("daemon"), BinaryPayload(big, "application/octet-stream"))

	assert.NoError(t, event.Validate())
	err := event.ValidateWithLimit(1024)
	assert.Equal(t, types.EVENT_TOO_LARGE, types.CodeOf(err))
}

func TestValidate_InvalidPriority(t *testing.T) {
	event := New(SystemEvent{Op: MaintenanceStarted}, SystemSource("daemon"), TextPayload("hi"))
	event.Priority = EventPriority(42)
	err := event.Validate()
	assert.Equal(t, types.EVENT_INVALID_PRIORITY, types.CodeOf(err))
}

func TestValidate_RetryCountOverflow(t *testing.T) {
	event := New(SystemEvent{Op: MaintenanceStarted}, SystemSource("daemon"), TextPayload("hi"))
	event.RetryCount = event.MaxRetries + 1
	err := event.Validate()
	assert.Equal(t, types.EVENT_VALIDATION_FAILED, types.CodeOf(err))
}

func TestRetryAccounting(t *testing.T) {
	event := New(CustomEvent{Name: "test"}, ServiceSource("svc-1"), TextPayload("hi")).WithMaxRetries(2)

	assert.True(t, event.CanRetry())
	event.IncrementRetry()
	assert.True(t, event.CanRetry())
	event.IncrementRetry()
	assert.False(t, event.CanRetry())
}

func TestIsScheduled(t *testing.T) {
	event := New(CustomEvent{Name: "test"}, ServiceSource("svc-1"), TextPayload("hi"))
	assert.False(t, event.IsScheduled())

	future := event.WithSchedule(time.Now().Add(time.Hour))
	assert.True(t, future.IsScheduled())

	past := event.WithSchedule(time.Now().Add(-time.Hour))
	assert.False(t, past.IsScheduled())
}

func TestEventJSON_RoundTrip(t *testing.T) {
	event := New(
		FilesystemEvent{Op: FileMoved, Path: "/tmp/b", FromPath: "/tmp/a"},
		FilesystemSource("watcher-1"),
		TextPayload("moved"),
	).WithPriority(PriorityHigh).
		WithTarget(NewServiceTarget("svc-1").WithFilter(EventFilter{Categories: []Category{CategoryFilesystem}})).
		WithMetadata("env", "prod")

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded DaemonEvent
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, PriorityHigh, decoded.Priority)
	require.IsType(t, FilesystemEvent{}, decoded.Kind)
	fs := decoded.Kind.(FilesystemEvent)
	assert.Equal(t, FileMoved, fs.Op)
	assert.Equal(t, "/tmp/a", fs.FromPath)
	require.Len(t, decoded.Targets, 1)
	assert.Equal(t, []Category{CategoryFilesystem}, decoded.Targets[0].Filters[0].Categories)
	v, _ := decoded.Metadata.Field("env")
	assert.Equal(t, "prod", v)
}

func TestEventJSON_UnknownKindRejected(t *testing.T) {
	payload := []byte(`{"id":null,"event_type":{"type":"quantum","data":{}},"priority":"Normal","source":{"id":"x","type":"service"},"created_at":"2026-01-01T00:00:00Z","payload":{"data":"hi","content_type":"text/plain","encoding":"utf-8","size_bytes":2},"metadata":{"metrics":{"processing_attempts":0},"debug":{}},"retry_count":0,"max_retries":3}`)

	var decoded DaemonEvent
	err := json.Unmarshal(payload, &decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event kind")
}
