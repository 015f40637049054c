// Package memo provides a generic memoizer that persists produced values in a
// cache.Store and decides per result whether it is fit to be stored.
package memo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/illmade-knight/go-memocache/pkg/cache"
	"github.com/rs/zerolog"
)

// closeFlushTimeout bounds the best-effort flush performed by Close.
const closeFlushTimeout = 10 * time.Second

// Stats counts what a Memoizer did over its lifetime.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Produced uint64
	Stored   uint64
	Withheld uint64
	Failures uint64
}

type counters struct {
	hits, misses, produced, stored, withheld, failures atomic.Uint64
}

// Memoizer mediates between a production function and a Store.
// It owns the store: nothing else may use it while the Memoizer is open, and
// Close releases it. Calls are serialized; a production function runs with the
// Memoizer locked.
type Memoizer[K comparable, V any] struct {
	store   cache.Store[K, V]
	produce Producer[K, V]
	logger  zerolog.Logger

	mu     sync.Mutex
	dirty  bool // inserts since the last successful durable flush
	closed bool
	stats  counters
}

// New creates a Memoizer over store. produce is used by Call and TryCall and
// may be nil when only GetOrInsertWith is needed.
func New[K comparable, V any](store cache.Store[K, V], produce Producer[K, V], logger zerolog.Logger) *Memoizer[K, V] {
	if store == nil {
		store = cache.NewNullStore[K, V]()
	}
	return &Memoizer[K, V]{
		store:   store,
		produce: produce,
		logger:  logger.With().Str("component", "Memoizer").Logger(),
	}
}

// GetOrInsertWith returns the stored value for key. On a miss it calls produce;
// a successful result is stored and returned, a failure is returned and nothing
// is stored. A hit never calls produce.
func (m *Memoizer[K, V]) GetOrInsertWith(ctx context.Context, key K, produce func(ctx context.Context) (V, error)) (V, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if value, ok := m.lookup(ctx, key); ok {
		return value, nil
	}

	value, err := produce(ctx)
	m.stats.produced.Add(1)
	if err != nil {
		m.stats.failures.Add(1)
		var zero V
		return zero, fmt.Errorf("failed to produce value for key '%v': %w", key, err)
	}

	m.insert(ctx, key, value)
	return value, nil
}

// Call returns the value for input, from the store or from the Producer.
// It never fails: store errors count as misses and production errors are
// logged, with whatever value the producer returned handed back unchanged.
// Only a Yes verdict without error is stored.
func (m *Memoizer[K, V]) Call(ctx context.Context, input K) V {
	value, err := m.TryCall(ctx, input)
	if err != nil {
		m.logger.Error().Err(err).Str("key", fmt.Sprintf("%v", input)).Msg("Production failed, value not cached.")
	}
	return value
}

// TryCall behaves like Call but reports production failures to the caller.
// Store failures are still absorbed.
func (m *Memoizer[K, V]) TryCall(ctx context.Context, input K) (V, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.produce == nil {
		var zero V
		return zero, errors.New("memoizer has no producer")
	}

	if value, ok := m.lookup(ctx, input); ok {
		return value, nil
	}

	value, verdict, err := m.produce(ctx, input)
	m.stats.produced.Add(1)
	if err != nil {
		m.stats.failures.Add(1)
		return value, fmt.Errorf("failed to produce value for key '%v': %w", input, err)
	}
	if verdict != Yes {
		m.stats.withheld.Add(1)
		m.logger.Debug().Str("key", fmt.Sprintf("%v", input)).Msg("Value withheld from cache.")
		return value, nil
	}

	m.insert(ctx, input, value)
	return value, nil
}

// lookup reads key from the store. Errors are logged and count as a miss.
// Must be called with the mutex held.
func (m *Memoizer[K, V]) lookup(ctx context.Context, key K) (V, bool) {
	var zero V
	if m.closed {
		m.stats.misses.Add(1)
		return zero, false
	}

	value, ok, err := m.store.Lookup(ctx, key)
	if err != nil {
		m.stats.misses.Add(1)
		m.logger.Warn().Err(err).Str("key", fmt.Sprintf("%v", key)).Msg("Cache lookup failed, treating as a miss.")
		return zero, false
	}
	if !ok {
		m.stats.misses.Add(1)
		m.logger.Debug().Str("key", fmt.Sprintf("%v", key)).Msg("Cache miss.")
		return zero, false
	}
	m.stats.hits.Add(1)
	m.logger.Debug().Str("key", fmt.Sprintf("%v", key)).Msg("Cache hit.")
	return value, true
}

// insert stores a produced value. Errors are logged; the value is simply
// produced again next time. Must be called with the mutex held.
func (m *Memoizer[K, V]) insert(ctx context.Context, key K, value V) {
	if m.closed {
		return
	}
	if err := m.store.Insert(ctx, key, value); err != nil {
		m.logger.Warn().Err(err).Str("key", fmt.Sprintf("%v", key)).Msg("Failed to store value, it will be recomputed.")
		return
	}
	m.stats.stored.Add(1)
	m.dirty = true
}

// Stats returns a snapshot of the counters.
func (m *Memoizer[K, V]) Stats() Stats {
	return Stats{
		Hits:     m.stats.hits.Load(),
		Misses:   m.stats.misses.Load(),
		Produced: m.stats.produced.Load(),
		Stored:   m.stats.stored.Load(),
		Withheld: m.stats.withheld.Load(),
		Failures: m.stats.failures.Load(),
	}
}
