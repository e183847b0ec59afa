package events

import (
	"encoding/json"
	"time"

	"github.com/crucible-ai/crucible/internal/types"
)

const (
	// DefaultMaxRetries bounds delivery attempts when the producer does
	// not set its own limit.
	DefaultMaxRetries = 3

	// DefaultMaxEventSize is the serialized size ceiling enforced by
	// Validate: 10 MiB.
	DefaultMaxEventSize = 10 * 1024 * 1024
)

// DaemonEvent is the unit of communication flowing through the router.
// Events are immutable from the producer's perspective: the builder
// methods return modified copies, and after publish only the router
// touches the metadata.
type DaemonEvent struct {
	// ID is unique for the process lifetime.
	ID types.ID `json:"id"`

	// Kind is the event type variant.
	Kind EventKind `json:"event_type"`

	Priority EventPriority `json:"priority"`
	Source   EventSource   `json:"source"`

	// Targets lists the services that should receive the event. May be
	// empty only when Kind.BroadcastAllowed() is true.
	Targets []ServiceTarget `json:"targets,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// ScheduledAt defers delivery until the given time.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	Payload  EventPayload  `json:"payload"`
	Metadata EventMetadata `json:"metadata"`

	// CorrelationID groups related events; CausationID names the event
	// that produced this one.
	CorrelationID types.ID `json:"correlation_id,omitempty"`
	CausationID   types.ID `json:"causation_id,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// New creates an event with a fresh id, Normal priority, no targets, and
// zero retries.
func New(kind EventKind, source EventSource, payload EventPayload) DaemonEvent {
	return DaemonEvent{
		ID:         types.NewID(),
		Kind:       kind,
		Priority:   PriorityNormal,
		Source:     source,
		CreatedAt:  time.Now(),
		Payload:    payload,
		Metadata:   NewEventMetadata(),
		MaxRetries: DefaultMaxRetries,
	}
}

// WithCorrelation creates an event tagged with a correlation id so related
// events can be traced as one logical request.
func WithCorrelation(kind EventKind, source EventSource, payload EventPayload, correlationID types.ID) DaemonEvent {
	event := New(kind, source, payload)
	event.CorrelationID = correlationID
	return event
}

// AsResponse creates an event caused by another event. The causation id
// names the originating event.
func AsResponse(kind EventKind, source EventSource, payload EventPayload, causationID types.ID) DaemonEvent {
	event := New(kind, source, payload)
	event.CausationID = causationID
	return event
}

// WithPriority returns a copy with the priority set.
func (e DaemonEvent) WithPriority(priority EventPriority) DaemonEvent {
	e.Priority = priority
	return e
}

// WithTarget returns a copy with a target appended.
func (e DaemonEvent) WithTarget(target ServiceTarget) DaemonEvent {
	targets := make([]ServiceTarget, len(e.Targets), len(e.Targets)+1)
	copy(targets, e.Targets)
	e.Targets = append(targets, target)
	return e
}

// WithTargets returns a copy with the target list replaced.
func (e DaemonEvent) WithTargets(targets ...ServiceTarget) DaemonEvent {
	e.Targets = targets
	return e
}

// WithSchedule returns a copy deferred until scheduledAt.
func (e DaemonEvent) WithSchedule(scheduledAt time.Time) DaemonEvent {
	e.ScheduledAt = &scheduledAt
	return e
}

// WithMaxRetries returns a copy with the retry bound set.
func (e DaemonEvent) WithMaxRetries(maxRetries int) DaemonEvent {
	e.MaxRetries = maxRetries
	return e
}

// WithMetadata returns a copy with a metadata field added.
func (e DaemonEvent) WithMetadata(key, value string) DaemonEvent {
	fields := make(map[string]string, len(e.Metadata.Fields)+1)
	for k, v := range e.Metadata.Fields {
		fields[k] = v
	}
	fields[key] = value
	e.Metadata.Fields = fields
	return e
}

// WithCorrelationID returns a copy with the correlation id set.
func (e DaemonEvent) WithCorrelationID(id types.ID) DaemonEvent {
	e.CorrelationID = id
	return e
}

// CanRetry reports whether the event has delivery attempts left.
func (e *DaemonEvent) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// IncrementRetry counts a failed delivery attempt.
func (e *DaemonEvent) IncrementRetry() {
	e.RetryCount++
}

// IsScheduled reports whether the event is deferred to a future time.
// It is true only while ScheduledAt is strictly in the future.
func (e *DaemonEvent) IsScheduled() bool {
	return e.ScheduledAt != nil && e.ScheduledAt.After(time.Now())
}

// SizeBytes returns the serialized size of the event. Events that cannot
// be serialized report zero.
func (e *DaemonEvent) SizeBytes() int {
	data, err := json.Marshal(e)
	if err != nil {
		return 0
	}
	return len(data)
}

// Validate checks the event's structural invariants against the default
// size ceiling. See ValidateWithLimit.
func (e *DaemonEvent) Validate() error {
	return e.ValidateWithLimit(DefaultMaxEventSize)
}

// ValidateWithLimit checks the event's structural invariants:
// targets must be present unless the kind allows broadcast, the serialized
// size must not exceed maxBytes, the priority must be in the defined set,
// and the retry counter must not exceed its bound.
func (e *DaemonEvent) ValidateWithLimit(maxBytes int) error {
	if e.Kind == nil {
		return types.NewError(types.EVENT_VALIDATION_FAILED, "event kind is nil")
	}
	if len(e.Targets) == 0 && !e.Kind.BroadcastAllowed() {
		return types.NewError(types.EVENT_VALIDATION_FAILED,
			"event requires specific targets but none provided")
	}
	if size := e.SizeBytes(); size > maxBytes {
		return types.NewErrorf(types.EVENT_TOO_LARGE,
			"event size %d exceeds maximum %d", size, maxBytes)
	}
	if !e.Priority.IsValid() {
		return types.NewErrorf(types.EVENT_INVALID_PRIORITY,
			"priority %d is outside the defined set", int(e.Priority))
	}
	if e.RetryCount > e.MaxRetries {
		return types.NewErrorf(types.EVENT_VALIDATION_FAILED,
			"retry count %d exceeds max retries %d", e.RetryCount, e.MaxRetries)
	}
	return nil
}

// daemonEventJSON mirrors DaemonEvent with the kind held as raw JSON so the
// externally-tagged envelope round-trips.
type daemonEventJSON struct {
	ID            types.ID        `json:"id"`
	Kind          json.RawMessage `json:"event_type"`
	Priority      EventPriority   `json:"priority"`
	Source        EventSource     `json:"source"`
	Targets       []ServiceTarget `json:"targets,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ScheduledAt   *time.Time      `json:"scheduled_at,omitempty"`
	Payload       EventPayload    `json:"payload"`
	Metadata      EventMetadata   `json:"metadata"`
	CorrelationID types.ID        `json:"correlation_id,omitempty"`
	CausationID   types.ID        `json:"causation_id,omitempty"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
}

// MarshalJSON serializes the event with the kind as an externally-tagged
// envelope: {"type": "filesystem", "data": {...}}.
func (e DaemonEvent) MarshalJSON() ([]byte, error) {
	kind, err := marshalKind(e.Kind)
	if err != nil {
		return nil, err
	}
	return json.Marshal(daemonEventJSON{
		ID:            e.ID,
		Kind:          kind,
		Priority:      e.Priority,
		Source:        e.Source,
		Targets:       e.Targets,
		CreatedAt:     e.CreatedAt,
		ScheduledAt:   e.ScheduledAt,
		Payload:       e.Payload,
		Metadata:      e.Metadata,
		CorrelationID: e.CorrelationID,
		CausationID:   e.CausationID,
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
	})
}

// UnmarshalJSON deserializes an event, rejecting unknown kind tags.
func (e *DaemonEvent) UnmarshalJSON(data []byte) error {
	var raw daemonEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := unmarshalKind(raw.Kind)
	if err != nil {
		return err
	}
	*e = DaemonEvent{
		ID:            raw.ID,
		Kind:          kind,
		Priority:      raw.Priority,
		Source:        raw.Source,
		Targets:       raw.Targets,
		CreatedAt:     raw.CreatedAt,
		ScheduledAt:   raw.ScheduledAt,
		Payload:       raw.Payload,
		Metadata:      raw.Metadata,
		CorrelationID: raw.CorrelationID,
		CausationID:   raw.CausationID,
		RetryCount:    raw.RetryCount,
		MaxRetries:    raw.MaxRetries,
	}
	return nil
}
