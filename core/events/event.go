package events

import "orderchain/core/types"

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can render the canonical wire form.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events emitted while a call executes. The node only
// publishes the buffered events once the call has been committed.
type Buffer struct {
	events []types.Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	payload, ok := evt.(Payload)
	if !ok {
		b.events = append(b.events, types.Event{Type: evt.EventType(), Attributes: map[string]string{}})
		return
	}
	rendered := payload.Event()
	if rendered == nil {
		return
	}
	attrs := make(map[string]string, len(rendered.Attributes))
	for k, v := range rendered.Attributes {
		attrs[k] = v
	}
	b.events = append(b.events, types.Event{Type: rendered.Type, Height: rendered.Height, Attributes: attrs})
}

// Events returns the collected events in emission order.
func (b *Buffer) Events() []types.Event {
	if b == nil {
		return nil
	}
	out := make([]types.Event, len(b.events))
	copy(out, b.events)
	return out
}
