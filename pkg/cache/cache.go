// Package cache provides a generic keyed store with insertion order
// preserved. It backs the client's user/chat/message caches and the
// collector's collected-message map.
package cache

import (
	"math/rand"
	"sync"
)

// Store is a concurrency-safe keyed store. Iteration order is first-insertion
// order: re-inserting an existing key overwrites the value but keeps the
// key's original position.
type Store[K comparable, V any] struct {
	items map[K]V
	order []K
	mu    sync.RWMutex
}

// New creates an empty store.
func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		items: make(map[K]V),
		order: make([]K, 0),
	}
}

// Put inserts or overwrites a value.
func (s *Store[K, V]) Put(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; !exists {
		s.order = append(s.order, key)
	}
	s.items[key] = value
}

// Get retrieves a value by key.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[key]
	return v, ok
}

// Has returns true if the key is present.
func (s *Store[K, V]) Has(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.items[key]
	return ok
}

// Delete removes a key. Returns true if it was present.
func (s *Store[K, V]) Delete(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; !ok {
		return false
	}
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of stored items.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Keys returns the keys in insertion order.
func (s *Store[K, V]) Keys() []K {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]K, len(s.order))
	copy(keys, s.order)
	return keys
}

// Array returns the values in insertion order.
func (s *Store[K, V]) Array() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make([]V, 0, len(s.order))
	for _, k := range s.order {
		values = append(values, s.items[k])
	}
	return values
}

// First returns the earliest-inserted value.
func (s *Store[K, V]) First() (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		var zero V
		return zero, false
	}
	return s.items[s.order[0]], true
}

// Last returns the most recently inserted value.
func (s *Store[K, V]) Last() (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		var zero V
		return zero, false
	}
	return s.items[s.order[len(s.order)-1]], true
}

// Random returns a uniformly random value.
func (s *Store[K, V]) Random() (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		var zero V
		return zero, false
	}
	return s.items[s.order[rand.Intn(len(s.order))]], true
}

// Find returns the first value (in insertion order) satisfying pred.
func (s *Store[K, V]) Find(pred func(V) bool) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range s.order {
		if pred(s.items[k]) {
			return s.items[k], true
		}
	}
	var zero V
	return zero, false
}

// Filter returns all values satisfying pred, in insertion order.
func (s *Store[K, V]) Filter(pred func(V) bool) []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []V
	for _, k := range s.order {
		if pred(s.items[k]) {
			result = append(result, s.items[k])
		}
	}
	return result
}

// ForEach calls fn for every key/value pair in insertion order.
// fn must not mutate the store.
func (s *Store[K, V]) ForEach(fn func(K, V)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range s.order {
		fn(k, s.items[k])
	}
}

// Clone returns a shallow copy with the same contents and order.
func (s *Store[K, V]) Clone() *Store[K, V] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := &Store[K, V]{
		items: make(map[K]V, len(s.items)),
		order: make([]K, len(s.order)),
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	copy(c.order, s.order)
	return c
}

// Map projects every value through fn, in insertion order.
// Methods cannot introduce new type parameters, hence the package-level func.
func Map[K comparable, V, R any](s *Store[K, V], fn func(V) R) []R {
	values := s.Array()
	result := make([]R, len(values))
	for i, v := range values {
		result[i] = fn(v)
	}
	return result
}
