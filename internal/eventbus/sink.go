// Package eventbus carries catalog events from the components that create
// them to their consumers: the journal, MQTT subscribers and tests.
package eventbus

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/ringtrail/internal/catalog"
	"github.com/roach88/ringtrail/internal/telemetry"
)

// Sink receives emitted events. Implementations must be safe for use by a
// single emitting goroutine; Memory and FanOut are safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, ev catalog.Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev catalog.Event) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, ev catalog.Event) error {
	return f(ctx, ev)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, catalog.Event) error { return nil })

// FanOut forwards each event to every sink in order. All sinks see the event
// even when an earlier one fails; the failures are joined.
type FanOut []Sink

// Emit forwards ev to every sink.
func (f FanOut) Emit(ctx context.Context, ev catalog.Event) error {
	telemetry.ObserveEvent(ev)
	var errs []error
	for _, s := range f {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory records events in emission order.
type Memory struct {
	mu     sync.Mutex
	events []catalog.Event
}

// NewMemory creates an empty recorder.
func NewMemory() *Memory {
	return &Memory{}
}

// Emit appends ev.
func (m *Memory) Emit(_ context.Context, ev catalog.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []catalog.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]catalog.Event, len(m.events))
	copy(out, m.events)
	return out
}

// Last returns the most recent event, or nil.
func (m *Memory) Last() catalog.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

// Reset drops every recorded event.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
