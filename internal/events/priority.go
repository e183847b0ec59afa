package events

import (
	"encoding/json"
	"fmt"
)

// EventPriority orders events by urgency. Lower ordinal is more urgent:
// Critical(0) > High(1) > Normal(2) > Low(3).
type EventPriority int

const (
	PriorityCritical EventPriority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// String returns the canonical name of the priority.
func (p EventPriority) String() string {
	switch p {
	case PriorityCritical:
		return "Critical"
	case PriorityHigh:
		return "High"
	case PriorityNormal:
		return "Normal"
	case PriorityLow:
		return "Low"
	default:
		return fmt.Sprintf("EventPriority(%d)", int(p))
	}
}

// ParsePriority parses a priority name. Matching is exact and case-sensitive,
// mirroring the filter language's string literals.
func ParsePriority(s string) (EventPriority, error) {
	switch s {
	case "Critical":
		return PriorityCritical, nil
	case "High":
		return PriorityHigh, nil
	case "Normal":
		return PriorityNormal, nil
	case "Low":
		return PriorityLow, nil
	default:
		return 0, fmt.Errorf("unknown event priority %q", s)
	}
}

// IsValid reports whether the priority is within the defined set.
// Deserialized or hand-built events can carry out-of-range values.
func (p EventPriority) IsValid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}

// AtLeastAsUrgentAs reports whether p is at least as urgent as other.
// This is the ordering behind `event.priority >= 'High'` in the filter
// language: the matching set for that expression is exactly {Critical, High}.
func (p EventPriority) AtLeastAsUrgentAs(other EventPriority) bool {
	return p <= other
}

// MoreUrgentThan reports whether p is strictly more urgent than other.
func (p EventPriority) MoreUrgentThan(other EventPriority) bool {
	return p < other
}

// MarshalJSON serializes the priority as its canonical name.
func (p EventPriority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON deserializes a priority name, rejecting unknown values.
func (p *EventPriority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
