package tv

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind is a typed input event for the ambient surface machines.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventAlertIncoming
	EventAlertCleared
	EventRemotePrev
	EventRemoteNext
	EventInteraction
)

// Event carries one input with optional reason metadata.
type Event struct {
	Kind   EventKind
	Reason string
	At     time.Time
}

// Bus is a small typed publish/subscribe hub replacing stringly-named
// platform events. Handlers run synchronously on the publishing goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventKind]map[string]func(Event)
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: map[EventKind]map[string]func(Event){}}
}

// Subscribe registers fn for kind and returns its disposer.
func (b *Bus) Subscribe(kind EventKind, fn func(Event)) func() {
	if fn == nil {
		return func() {}
	}

	id := uuid.New().String()
	b.mu.Lock()
	if b.handlers[kind] == nil {
		b.handlers[kind] = map[string]func(Event){}
	}
	b.handlers[kind][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers[kind], id)
		b.mu.Unlock()
	}
}

// Publish delivers event to every subscriber of its kind.
func (b *Bus) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	listeners := make([]func(Event), 0, len(b.handlers[event.Kind]))
	for _, fn := range b.handlers[event.Kind] {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}
