// Package eventbus provides the in-process change bus: a process-wide
// pub/sub of node lifecycle events connecting the actions layer to the
// WebSocket broadcaster and any other observer.
package eventbus

import (
	"log"
	"strconv"
	"sync"

	"github.com/udl-dev/udl/internal/types"
)

// Bus dispatches node change events to registered subscribers. Dispatch
// is synchronous and in subscription order; a panicking subscriber is
// logged and does not stop the chain — the bus is resilient.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscriber
}

type subscriber struct {
	id string
	fn func(types.NodeChangeEvent)
}

// New creates a new change bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a token for Unsubscribe.
func (b *Bus) Subscribe(fn func(types.NodeChangeEvent)) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := subscriptionID(b.nextID)
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	return id
}

// Unsubscribe removes the subscription with the given token.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers evt to every subscriber, sequentially, in
// subscription order. Events for a single node id are therefore
// observed in the order the mutations completed on the store.
func (b *Bus) Publish(evt types.NodeChangeEvent) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, evt)
	}
}

func (b *Bus) deliver(s subscriber, evt types.NodeChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("eventbus: subscriber %s panicked on %s %s: %v", s.id, evt.Type, evt.NodeID, r)
		}
	}()
	s.fn(evt)
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Reset drops every subscription. Used by tests and runtime teardown.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}

func subscriptionID(n int) string {
	return "sub-" + strconv.Itoa(n)
}
