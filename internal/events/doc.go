// Package events defines the event model for the Crucible coordination bus.
//
// DaemonEvent is the unit of communication between Crucible subsystems:
// script execution, document storage, vector inference, external-tool
// gateways, and the chat/CLI front ends all communicate by publishing
// events through the router instead of calling each other directly.
//
// An event carries:
//
//   - A Kind: a sealed union of Filesystem, Database, External, Mcp,
//     Service, System, and Custom variants, each with typed fields.
//   - A Priority: Critical > High > Normal > Low, ordered by urgency.
//   - A Source identifying the producer, and zero or more ServiceTargets
//     naming the services that should receive it. Targets may be empty
//     only for kinds that allow broadcast (system and service lifecycle
//     events).
//   - A Payload with content type, encoding, and an optional checksum for
//     integrity verification.
//   - Metadata mutated only by the router as the event moves through the
//     pipeline: processing metrics, per-service success/failure lists,
//     and free-form debug fields.
//   - Optional correlation and causation IDs linking related events.
//
// Events are built with New and the With* builder methods, which return
// modified copies so producers can share template events safely:
//
//	event := events.New(
//		events.FilesystemEvent{Op: events.FileModified, Path: "/notes/a.md"},
//		events.FilesystemSource("watcher-1"),
//		events.JSONPayload(map[string]any{"size": 120}),
//	).WithPriority(events.PriorityHigh).
//		WithTarget(events.NewServiceTarget("document-store"))
//
// Validate enforces the structural invariants (target presence, payload
// size ceiling, priority range) before the router accepts an event.
package events
