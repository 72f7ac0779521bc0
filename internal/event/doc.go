// Package event is an in-process publish/subscribe bus for session events.
//
// The chat session publishes what happens to it (attach, publish, render,
// drops, teardown) without knowing who listens. Metrics and the terminal
// UI subscribe by event type:
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypeMessageRendered, func(e event.Event) { ... })
//	bus.Publish(event.NewMessageRenderedEvent(7, "chat"))
//
// Publish is synchronous. A panicking handler is recovered so the others
// still run.
package event
