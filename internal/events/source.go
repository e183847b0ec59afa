package events

// SourceType classifies the producer of an event.
type SourceType string

const (
	SourceService    SourceType = "service"
	SourceFilesystem SourceType = "filesystem"
	SourceDatabase   SourceType = "database"
	SourceExternal   SourceType = "external"
	SourceMcp        SourceType = "mcp"
	SourceSystem     SourceType = "system"
	SourceManual     SourceType = "manual"
)

// EventSource identifies the producer of an event.
type EventSource struct {
	// ID is the producer identifier: a service id, watcher id, or system
	// component name.
	ID string `json:"id"`

	Type SourceType `json:"type"`

	// Instance distinguishes multiple instances of the same producer.
	Instance string `json:"instance,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewEventSource creates a source with the given id and type.
func NewEventSource(id string, sourceType SourceType) EventSource {
	return EventSource{ID: id, Type: sourceType}
}

// ServiceSource creates a source for a registered service.
func ServiceSource(serviceID string) EventSource {
	return NewEventSource(serviceID, SourceService)
}

// FilesystemSource creates a source for a filesystem watcher.
func FilesystemSource(watchID string) EventSource {
	return NewEventSource(watchID, SourceFilesystem)
}

// ExternalSource creates a source for an external system or webhook.
func ExternalSource(sourceID string) EventSource {
	return NewEventSource(sourceID, SourceExternal)
}

// SystemSource creates a source for a daemon-internal component.
func SystemSource(component string) EventSource {
	return NewEventSource(component, SourceSystem)
}

// WithInstance returns a copy with the instance set.
func (s EventSource) WithInstance(instance string) EventSource {
	s.Instance = instance
	return s
}

// WithMetadata returns a copy with a metadata field added.
func (s EventSource) WithMetadata(key, value string) EventSource {
	md := make(map[string]string, len(s.Metadata)+1)
	for k, v := range s.Metadata {
		md[k] = v
	}
	md[key] = value
	s.Metadata = md
	return s
}
