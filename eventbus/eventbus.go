// Package eventbus is a reference implementation of observer.Bus: an
// in-process, topic-free pub/sub fan-out usable by tests, the demo CLI, and
// anyone embedding the observer without a bus of their own.
//
// The real event bus is explicitly out of scope of the hard core (the
// observer only depends on the Subscribe/handler contract); this is one
// concrete collaborator satisfying that contract, not the collaborator
// itself.
package eventbus

import (
	"sync"

	"github.com/pithecene-io/netlog/types"
)

type subscriber struct {
	mode    types.CaptureMode
	handler func(types.Entry)
}

// Bus is an in-memory fan-out publisher. The zero value is not usable;
// construct with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[*subscriber]struct{})}
}

// Subscribe registers handler to receive every subsequently published
// entry. Satisfies observer.Bus. The returned unsubscribe func is
// idempotent.
func (b *Bus) Subscribe(mode types.CaptureMode, handler func(types.Entry)) (func(), error) {
	sub := &subscriber{mode: mode, handler: handler}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, sub)
			b.mu.Unlock()
		})
	}
	return unsubscribe, nil
}

// Publish delivers entry to every current subscriber, synchronously, on
// the calling goroutine. Safe to call from any number of goroutines,
// possibly concurrently with Subscribe/unsubscribe.
func (b *Bus) Publish(entry types.Entry) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		sub.handler(entry)
	}
}

// SubscriberCount reports the current number of live subscriptions.
// Intended for tests and diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
