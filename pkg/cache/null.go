package cache

import (
	"context"

	"github.com/rs/zerolog"
)

// NullStore is a store that remembers nothing. Every lookup misses and every
// insert is dropped. It stands in for a per-key store that could not be opened.
type NullStore[K comparable, V any] struct{}

// NewNullStore creates a NullStore.
func NewNullStore[K comparable, V any]() *NullStore[K, V] {
	return &NullStore[K, V]{}
}

func (NullStore[K, V]) Lookup(_ context.Context, _ K) (V, bool, error) {
	var zero V
	return zero, false, nil
}

func (NullStore[K, V]) Insert(_ context.Context, _ K, _ V) error { return nil }
func (NullStore[K, V]) Flush(_ context.Context, _ bool) error    { return nil }
func (NullStore[K, V]) Close() error                             { return nil }

// OrNull returns store unless err is set, in which case the failure is logged
// and a NullStore is returned so the caller keeps working without a cache.
func OrNull[K comparable, V any](store Store[K, V], err error, logger zerolog.Logger) Store[K, V] {
	if err != nil {
		logger.Warn().Err(err).Msg("Cache store unavailable, continuing without a cache.")
		return NewNullStore[K, V]()
	}
	return store
}
