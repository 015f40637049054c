package memo

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-memocache/pkg/cache"
)

// Flush forces everything stored so far onto stable storage. Use it before a
// planned exit that might skip Close. The error is returned so the caller knows
// whether the checkpoint exists; the Memoizer keeps working either way.
func (m *Memoizer[K, V]) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return cache.ErrStoreClosed
	}
	if err := m.store.Flush(ctx, true); err != nil {
		m.logger.Error().Err(err).Msg("Durable cache flush failed.")
		return fmt.Errorf("durable flush: %w", err)
	}
	m.dirty = false
	return nil
}

// Close performs a best-effort flush if anything was stored since the last
// durable flush, then releases the store. It runs once; later calls do nothing.
// Failures are logged and never returned: losing a cache update is acceptable,
// failing the caller's shutdown is not.
func (m *Memoizer[K, V]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.dirty {
		ctx, cancel := context.WithTimeout(context.Background(), closeFlushTimeout)
		defer cancel()
		if err := m.store.Flush(ctx, false); err != nil {
			m.logger.Error().Err(err).Msg("Failed to flush cache on close.")
		} else {
			m.dirty = false
		}
	}
	if err := m.store.Close(); err != nil {
		m.logger.Error().Err(err).Msg("Failed to close cache store.")
	}

	stats := m.Stats()
	m.logger.Debug().
		Uint64("hits", stats.Hits).
		Uint64("misses", stats.Misses).
		Uint64("produced", stats.Produced).
		Uint64("stored", stats.Stored).
		Uint64("withheld", stats.Withheld).
		Uint64("failures", stats.Failures).
		Msg("Memoizer closed.")
	return nil
}

// Scope runs fn with m and closes m on every way out of fn, panics included.
func Scope[K comparable, V any](m *Memoizer[K, V], fn func(m *Memoizer[K, V]) error) error {
	defer func() { _ = m.Close() }()
	return fn(m)
}
