package enrichment

import (
	"context"
	"io"

	"github.com/illmade-knight/go-memocache/pkg/memo"
)

// Fetcher is a generic function type for fetching data by a key.
type Fetcher[K any, V any] func(ctx context.Context, key K) (V, error)

// SourceFetcher is a generic interface for a source of truth.
type SourceFetcher[K any, V any] interface {
	Fetch(ctx context.Context, key K) (V, error)
	io.Closer
}

// NewCacheFallbackFetcher creates a Fetcher that uses a cache-then-source strategy:
// values found in the memoizer's store are returned directly, misses are fetched
// from source and stored when the fetch succeeds.
func NewCacheFallbackFetcher[K comparable, V any](
	m *memo.Memoizer[K, V],
	source SourceFetcher[K, V],
) Fetcher[K, V] {
	return func(ctx context.Context, key K) (V, error) {
		return m.GetOrInsertWith(ctx, key, func(ctx context.Context) (V, error) {
			return source.Fetch(ctx, key)
		})
	}
}

// NewPolicyFetcher creates a Fetcher over the memoizer's own Producer, so the
// producer's verdict decides what is stored.
func NewPolicyFetcher[K comparable, V any](m *memo.Memoizer[K, V]) Fetcher[K, V] {
	return m.TryCall
}
