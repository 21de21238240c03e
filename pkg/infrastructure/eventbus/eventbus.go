// Package eventbus provides the in-process implementation of the domain event bus.
// This is the infrastructure adapter for domain.EventBus.
package eventbus

import (
	"sync"

	"github.com/openig/igbot/pkg/domain"
)

// subscription is a registered handler with a stable identity so it can be
// removed again. Cancellation must be cheap: collectors subscribe and detach
// for every construction/stop cycle.
type subscription struct {
	handler domain.EventHandler
}

// InProcessEventBus is a synchronous in-process event bus.
// It dispatches events to registered handlers immediately on Publish().
// Handlers run on the publisher's goroutine; a handler that blocks delays
// every later handler for the same event.
type InProcessEventBus struct {
	handlers    map[domain.EventType][]*subscription
	allHandlers []*subscription
	mu          sync.RWMutex
	closed      bool
}

// New creates a new in-process event bus.
func New() *InProcessEventBus {
	return &InProcessEventBus{
		handlers:    make(map[domain.EventType][]*subscription),
		allHandlers: make([]*subscription, 0),
	}
}

// Publish dispatches an event to all matching handlers.
// Handlers for the specific event type are called first, then global handlers.
func (b *InProcessEventBus) Publish(event domain.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	// Snapshot under the read lock so a handler may subscribe/cancel
	// without deadlocking or invalidating this dispatch.
	typed := make([]*subscription, len(b.handlers[event.EventType()]))
	copy(typed, b.handlers[event.EventType()])
	global := make([]*subscription, len(b.allHandlers))
	copy(global, b.allHandlers)
	b.mu.RUnlock()

	for _, sub := range typed {
		sub.handler(event)
	}
	for _, sub := range global {
		sub.handler(event)
	}
}

// Subscribe registers a handler for a specific event type and returns a
// cancel function. Cancelling twice is a no-op.
func (b *InProcessEventBus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := &subscription{handler: handler}

	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.handlers[eventType] = remove(b.handlers[eventType], sub)
		})
	}
}

// SubscribeAll registers a handler that receives every event.
func (b *InProcessEventBus) SubscribeAll(handler domain.EventHandler) func() {
	sub := &subscription{handler: handler}

	b.mu.Lock()
	b.allHandlers = append(b.allHandlers, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.allHandlers = remove(b.allHandlers, sub)
		})
	}
}

// Close marks the bus as closed. No more events will be dispatched.
func (b *InProcessEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
}

// HandlerCount returns the total number of registered handlers (for diagnostics).
func (b *InProcessEventBus) HandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allHandlers)
	for _, subs := range b.handlers {
		count += len(subs)
	}
	return count
}

func remove(subs []*subscription, target *subscription) []*subscription {
	for i, s := range subs {
		if s == target {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

// Verify interface compliance at compile time.
var _ domain.EventBus = (*InProcessEventBus)(nil)
