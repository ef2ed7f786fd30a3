package events

import (
	"sort"
	"sync"
)

// CastingStop is broadcast when a cast session ends on its own.
const CastingStop = "Casting:Stop"

// Event is a named notification with an optional payload.
type Event struct {
	Name    string
	Payload any
}

// Handler receives broadcast events. Handlers should be non-blocking.
type Handler func(Event)

// Publisher is the sending side of a Bus.
type Publisher interface {
	Broadcast(event Event)
}

// Bus broadcasts events to registered subscribers.
type Bus struct {
	subscribers map[string]Handler
	mu          sync.RWMutex
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]Handler),
	}
}

// Subscribe registers an event subscriber under id, replacing any previous one.
func (b *Bus) Subscribe(id string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes an event subscriber.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Broadcast sends an event to all subscribers in subscription id order.
func (b *Bus) Broadcast(event Event) {
	b.mu.RLock()
	ids := make([]string, 0, len(b.subscribers))
	for id := range b.subscribers {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	sort.Strings(ids)
	for _, id := range ids {
		handlers = append(handlers, b.subscribers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
