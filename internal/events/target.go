package events

// ServiceTarget names a service that should receive an event, optionally
// narrowed to one instance and guarded by filters.
type ServiceTarget struct {
	ServiceID   string `json:"service_id"`
	ServiceType string `json:"service_type,omitempty"`
	Instance    string `json:"instance,omitempty"`

	// Priority orders targets for load balancing; lower is preferred.
	Priority int `json:"priority,omitempty"`

	// Filters guard delivery to this target. All must match.
	Filters []EventFilter `json:"filters,omitempty"`
}

// NewServiceTarget creates a target for the given service id.
func NewServiceTarget(serviceID string) ServiceTarget {
	return ServiceTarget{ServiceID: serviceID}
}

// WithType returns a copy with the service type set. Targets with a type
// but no specific instance are load-balanced across all instances of
// that type.
func (t ServiceTarget) WithType(serviceType string) ServiceTarget {
	t.ServiceType = serviceType
	return t
}

// WithInstance returns a copy pinned to a specific instance.
func (t ServiceTarget) WithInstance(instance string) ServiceTarget {
	t.Instance = instance
	return t
}

// WithPriority returns a copy with the load-balancing priority set.
func (t ServiceTarget) WithPriority(priority int) ServiceTarget {
	t.Priority = priority
	return t
}

// WithFilter returns a copy with a delivery filter appended.
func (t ServiceTarget) WithFilter(filter EventFilter) ServiceTarget {
	filters := make([]EventFilter, len(t.Filters), len(t.Filters)+1)
	copy(filters, t.Filters)
	t.Filters = append(filters, filter)
	return t
}

// EventFilter is the declarative filter attached to a ServiceTarget.
// All non-empty fields are AND-ed: an event must match every specified
// criterion. Empty fields act as wildcards.
//
// Expression holds a free-text filter-language expression compiled and
// evaluated by the filter engine; Matches deliberately ignores it so the
// router can evaluate structural criteria cheaply and consult the engine
// only when an expression is present.
type EventFilter struct {
	// EventTypes filters by the event's type tag. Most kinds match their
	// category name ("filesystem", "system", ...); custom events match
	// their Name, so individual custom events can be selected by name.
	EventTypes []string `json:"event_types,omitempty"`

	// Categories filters by event kind category.
	Categories []Category `json:"categories,omitempty"`

	// Priorities filters by exact priority membership.
	Priorities []EventPriority `json:"priorities,omitempty"`

	// Sources filters by source id.
	Sources []string `json:"sources,omitempty"`

	// MaxPayloadSize rejects events with larger payloads. Zero means no
	// limit.
	MaxPayloadSize int `json:"max_payload_size,omitempty"`

	// Expression is an optional filter-language expression, e.g.
	// `event.priority >= 'High' && event.source.id == 'watcher-1'`.
	Expression string `json:"expression,omitempty"`
}

// Matches evaluates the structural criteria against an event. The
// Expression field is not evaluated here; see the filter engine.
func (f EventFilter) Matches(event *DaemonEvent) bool {
	if len(f.EventTypes) > 0 {
		if event.Kind == nil {
			return false
		}
		tag := typeTag(event.Kind)
		matched := false
		for _, et := range f.EventTypes {
			if et == tag {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(f.Categories) > 0 {
		if event.Kind == nil {
			return false
		}
		matched := false
		for _, c := range f.Categories {
			if event.Kind.Category() == c {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(f.Priorities) > 0 {
		matched := false
		for _, p := range f.Priorities {
			if event.Priority == p {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(f.Sources) > 0 {
		matched := false
		for _, s := range f.Sources {
			if event.Source.ID == s {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.MaxPayloadSize > 0 && event.Payload.SizeBytes > f.MaxPayloadSize {
		return false
	}

	return true
}

// typeTag returns the string an EventTypes criterion matches against.
func typeTag(k EventKind) string {
	if custom, ok := k.(CustomEvent); ok {
		return custom.Name
	}
	return string(k.Category())
}
