package router

import (
	"context"

	"github.com/crucible-ai/crucible/internal/events"
)

// Handler is the contract a service implements to receive events. Receive
// must honor ctx's deadline; the router treats any error or timeout purely
// as a delivery failure.
type Handler interface {
	Receive(ctx context.Context, event *events.DaemonEvent) (EventOutcome, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event *events.DaemonEvent) (EventOutcome, error)

// Receive implements Handler.
func (f HandlerFunc) Receive(ctx context.Context, event *events.DaemonEvent) (EventOutcome, error) {
	return f(ctx, event)
}

// EventOutcome is what a handler reports back for a delivered event.
type EventOutcome struct {
	// Response, when set, asks the router to synthesize a response event
	// carrying this payload back to the producer, with causation and
	// correlation ids linking it to the original event.
	Response *events.EventPayload

	// Metadata is merged into the event's debug info for diagnostics.
	Metadata map[string]string
}

// Ack is the empty outcome for handlers with nothing to report.
func Ack() EventOutcome {
	return EventOutcome{}
}
