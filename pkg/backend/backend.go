// Package backend opens the cache.Store selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-memocache/pkg/cache"
	"github.com/illmade-knight/go-memocache/pkg/config"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Open builds the store named by cfg.Cache.Backend.
//
// Snapshot backends (snapshot, gcs) fail loudly: a corrupt or unreadable
// snapshot is returned as an error. Per-key backends (sqlite, redis, firestore)
// degrade to a cache.NullStore when they cannot be opened, so callers keep
// working without a cache. When cfg.Cache.LRUSize is positive, per-key backends
// get an in-memory front tier.
func Open[K comparable, V any](ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Store[K, V], error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	codec, err := cache.CodecByName(cfg.Cache.ValueCodec)
	if err != nil {
		return nil, err
	}
	log := logger.With().Str("backend", cfg.Cache.Backend).Logger()

	var store cache.Store[K, V]
	switch cfg.Cache.Backend {
	case config.BackendSnapshot:
		s, err := cache.OpenSnapshotStore[K, V](ctx, cache.NewFileBlob(cfg.Cache.Path, log), log)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.BackendGCS:
		return openGCS[K, V](ctx, cfg, log)

	case config.BackendMemory:
		store = cache.NewMemoryStore[K, V]()

	case config.BackendSQLite:
		s, err := cache.OpenSQLiteStore[K, V](ctx, cfg.Cache.Path, codec, log)
		store = cache.OrNull[K, V](s, err, log)

	case config.BackendRedis:
		s, err := cache.NewRedisStore[K, V](ctx, &cfg.Cache.Redis, codec, log)
		store = cache.OrNull[K, V](s, err, log)

	case config.BackendFirestore:
		s, err := openFirestore[K, V](ctx, cfg, codec, log)
		store = cache.OrNull[K, V](s, err, log)

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Cache.Backend)
	}

	if cfg.Cache.LRUSize > 0 {
		lru, err := cache.NewLRUStore[K, V](cfg.Cache.LRUSize, store)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		return lru, nil
	}
	return store, nil
}

func clientOptions(cfg *config.Config) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return opts
}

func openGCS[K comparable, V any](ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Store[K, V], error) {
	client, err := storage.NewClient(ctx, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	blob, err := cache.NewGCSBlob(cache.NewGCSObjectAdapter(client, cfg.Cache.GCS.Bucket, cfg.Cache.GCS.Object), logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	store, err := cache.OpenSnapshotStore[K, V](ctx, blob, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &ownedStore[K, V]{Store: store, owned: client}, nil
}

func openFirestore[K comparable, V any](ctx context.Context, cfg *config.Config, codec cache.Codec, logger zerolog.Logger) (cache.Store[K, V], error) {
	client, err := firestore.NewClient(ctx, cfg.ProjectID, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	store, err := cache.NewFirestoreStore[K, V](&cfg.Cache.Firestore, client, codec, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &ownedStore[K, V]{Store: store, owned: client}, nil
}

// ownedStore closes a client the backend created once the store itself is closed.
type ownedStore[K comparable, V any] struct {
	cache.Store[K, V]
	owned io.Closer
}

func (s *ownedStore[K, V]) Close() error {
	return errors.Join(s.Store.Close(), s.owned.Close())
}
