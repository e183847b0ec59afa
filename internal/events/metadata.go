package events

import "time"

// EventMetadata carries free-form fields plus processing metrics and debug
// information. Producers set fields at creation; after publish only the
// router mutates metadata as the event moves through the pipeline.
type EventMetadata struct {
	Fields  map[string]string `json:"fields,omitempty"`
	Metrics EventMetrics      `json:"metrics"`
	Debug   DebugInfo         `json:"debug"`
}

// NewEventMetadata returns empty metadata.
func NewEventMetadata() EventMetadata {
	return EventMetadata{Fields: make(map[string]string)}
}

// Field returns a metadata field and whether it is present.
func (m *EventMetadata) Field(key string) (string, bool) {
	v, ok := m.Fields[key]
	return v, ok
}

// SetField sets a metadata field.
func (m *EventMetadata) SetField(key, value string) {
	if m.Fields == nil {
		m.Fields = make(map[string]string)
	}
	m.Fields[key] = value
}

// EventMetrics tracks an event's trip through the router.
type EventMetrics struct {
	ProcessingStartedAt  *time.Time `json:"processing_started_at,omitempty"`
	ProcessingDurationMs int64      `json:"processing_duration_ms,omitempty"`
	QueueWaitMs          int64      `json:"queue_wait_ms,omitempty"`
	ProcessingAttempts   int        `json:"processing_attempts"`

	// ProcessedBy lists services that handled the event successfully.
	ProcessedBy []string `json:"processed_by,omitempty"`

	// FailedBy lists services whose delivery terminally failed.
	FailedBy []string `json:"failed_by,omitempty"`
}

// StartProcessing stamps the processing start time and counts the attempt.
func (m *EventMetrics) StartProcessing() {
	now := time.Now()
	m.ProcessingStartedAt = &now
	m.ProcessingAttempts++
}

// CompleteProcessing records the processing duration.
func (m *EventMetrics) CompleteProcessing() {
	if m.ProcessingStartedAt != nil {
		m.ProcessingDurationMs = time.Since(*m.ProcessingStartedAt).Milliseconds()
	}
}

// AddSuccess records a service that processed the event. Idempotent.
func (m *EventMetrics) AddSuccess(serviceID string) {
	for _, id := range m.ProcessedBy {
		if id == serviceID {
			return
		}
	}
	m.ProcessedBy = append(m.ProcessedBy, serviceID)
}

// AddFailure records a service that failed to process the event. Idempotent.
func (m *EventMetrics) AddFailure(serviceID string) {
	for _, id := range m.FailedBy {
		if id == serviceID {
			return
		}
	}
	m.FailedBy = append(m.FailedBy, serviceID)
}

// DebugInfo carries free-form diagnostic fields attached by the router.
type DebugInfo struct {
	Info           map[string]string `json:"info,omitempty"`
	SourceLocation *SourceLocation   `json:"source_location,omitempty"`
}

// AddInfo sets a diagnostic field.
func (d *DebugInfo) AddInfo(key, value string) {
	if d.Info == nil {
		d.Info = make(map[string]string)
	}
	d.Info[key] = value
}

// SourceLocation points at the code that produced an event.
type SourceLocation struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function,omitempty"`
}
