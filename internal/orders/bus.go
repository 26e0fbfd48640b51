package orders

import (
	"log"
	"sync"
)

// Handler receives published events. It runs on the publisher's goroutine and
// must not block.
type Handler func(Event)

// Subscription identifies a registered handler.
type Subscription uint64

// Bus is an in-process publish/subscribe channel for order events. Delivery is
// best-effort: only handlers registered at the moment of Publish see the event.
type Bus struct {
	mu   sync.Mutex
	next Subscription
	subs []subscriber
}

type subscriber struct {
	id Subscription
	h  Handler
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe(h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs = append(b.subs, subscriber{id: b.next, h: h})
	return b.next
}

// Unsubscribe is safe to call from inside a handler during Publish.
func (b *Bus) Unsubscribe(id Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			// copy so a snapshot held by an in-flight Publish stays intact
			next := make([]subscriber, 0, len(b.subs)-1)
			next = append(next, b.subs[:i]...)
			b.subs = append(next, b.subs[i+1:]...)
			return
		}
	}
}

// Len reports the number of registered handlers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish hands ev to every handler in registration order. A panicking handler
// is logged and skipped.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	snapshot := b.subs
	b.mu.Unlock()

	for _, s := range snapshot {
		deliver(s, ev)
	}
}

func deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bus: subscriber %d panicked on %s: %v", s.id, ev.Kind(), r)
		}
	}()
	s.h(ev)
}
