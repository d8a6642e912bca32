package core

import (
	"sync"

	"github.com/google/uuid"
)

// Handler consumes one delivered event.
type Handler func(Event)

type subscription struct {
	token string
	fn    Handler
}

// Bus fans events out to any number of independent subscribers. Each
// subscription is identified by an opaque token; unsubscribing one token
// never affects other registrations for the same kind, so two screens
// listening for the same event can mount and unmount independently.
type Bus struct {
	mu   sync.Mutex
	subs map[EventKind][]subscription
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventKind][]subscription)}
}

// Subscribe registers a handler for one event kind and returns its token.
func (b *Bus) Subscribe(kind EventKind, fn Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	token := uuid.NewString()
	b.subs[kind] = append(b.subs[kind], subscription{token: token, fn: fn})
	return token
}

// Unsubscribe removes exactly the registration identified by token.
// Returns false if the token is unknown (already removed).
func (b *Bus) Unsubscribe(token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, subs := range b.subs {
		for i, s := range subs {
			if s.token == token {
				b.subs[kind] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Publish delivers the event to every handler registered for its kind, in
// subscription order. Handlers run on the publisher's goroutine; they are
// expected to be fast and non-blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs[ev.Kind]))
	copy(subs, b.subs[ev.Kind])
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
