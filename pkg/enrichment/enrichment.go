// Package enrichment resolves data for a batch of items through a Fetcher,
// keeping every item that resolved and skipping the ones that did not.
package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// KeyExtractor defines a function to get an enrichment key from an item.
type KeyExtractor[T any, K comparable] func(item T) (K, bool)

// Enriched pairs an item with the data fetched for it.
type Enriched[T any, V any] struct {
	Item T
	Data V
}

// ItemEnricher enriches one item. ok is false when the item must be skipped.
type ItemEnricher[T any, V any] func(ctx context.Context, item T) (result Enriched[T, V], ok bool)

// NewEnricherFunc is a factory that creates and returns an ItemEnricher.
// The returned function encapsulates the full enrichment logic, including
// handling fetch failures: they are logged and the item is skipped, never
// returned as an error, so one bad item cannot abort a batch.
func NewEnricherFunc[T any, K comparable, V any](
	fetcher Fetcher[K, V],
	keyEx KeyExtractor[T, K],
	logger zerolog.Logger,
) (ItemEnricher[T, V], error) {
	if fetcher == nil || keyEx == nil {
		return nil, fmt.Errorf("fetcher and keyExtractor cannot be nil")
	}

	enrichLogger := logger.With().Str("component", "EnricherFunc").Logger()

	return func(ctx context.Context, item T) (Enriched[T, V], bool) {
		key, ok := keyEx(item)
		if !ok {
			enrichLogger.Debug().Msg("Key not found in item, skipping.")
			return Enriched[T, V]{}, false
		}

		data, err := fetcher(ctx, key)
		if err != nil {
			enrichLogger.Error().Err(err).Msgf("Failed to fetch enrichment data for key '%v', skipping item.", key)
			return Enriched[T, V]{}, false
		}

		enrichLogger.Debug().Msgf("Item enriched for key '%v'.", key)
		return Enriched[T, V]{Item: item, Data: data}, true
	}, nil
}

// EnrichAll runs enricher over items in order and returns the ones that succeeded.
// It stops early only if ctx is cancelled.
func EnrichAll[T any, V any](ctx context.Context, items []T, enricher ItemEnricher[T, V], logger zerolog.Logger) []Enriched[T, V] {
	start := time.Now()
	results := make([]Enriched[T, V], 0, len(items))
	for i, item := range items {
		if ctx.Err() != nil {
			logger.Warn().Err(ctx.Err()).Int("remaining", len(items)-i).Msg("Enrichment interrupted.")
			break
		}
		if result, ok := enricher(ctx, item); ok {
			results = append(results, result)
		}
	}

	logger.Debug().
		Int("items", len(items)).
		Int("enriched", len(results)).
		Dur("took", time.Since(start)).
		Msg("Batch enrichment finished.")
	return results
}
