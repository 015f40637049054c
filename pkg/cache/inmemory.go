package cache

import (
	"context"
	"sync"
)

// MemoryStore is a generic, thread-safe, in-process store.
// Its content does not survive the process; it is meant for tests and one-shot runs.
type MemoryStore[K comparable, V any] struct {
	mu     sync.RWMutex
	data   map[K]V
	closed bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore[K comparable, V any]() *MemoryStore[K, V] {
	return &MemoryStore[K, V]{
		data: make(map[K]V),
	}
}

// Lookup retrieves an item from the store.
func (s *MemoryStore[K, V]) Lookup(_ context.Context, key K) (V, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero V
	if s.closed {
		return zero, false, ErrStoreClosed
	}
	value, ok := s.data[key]
	if !ok {
		return zero, false, nil
	}
	return value, true, nil
}

// Insert adds an item to the store.
func (s *MemoryStore[K, V]) Insert(_ context.Context, key K, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.data[key] = value
	return nil
}

// Flush is a no-op for the in-memory store.
func (s *MemoryStore[K, V]) Flush(_ context.Context, _ bool) error {
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close marks the store closed. Later operations fail with ErrStoreClosed.
func (s *MemoryStore[K, V]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
