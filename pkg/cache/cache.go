// Package cache provides the durable key/value stores that back a memoizer.
//
// Two persistence strategies share the Store contract: a whole-map snapshot
// (SnapshotStore over a Blob) and per-key stores (SQLiteStore, RedisStore,
// FirestoreStore) where every Insert is written independently.
package cache

import (
	"context"
	"errors"
	"io"
)

// ErrStoreClosed is returned by operations on a store after Close.
var ErrStoreClosed = errors.New("store is closed")

// Store is a generic interface for a durable key/value layer.
type Store[K comparable, V any] interface {
	// Lookup retrieves a value by key. A missing key is reported with ok=false, not an error.
	Lookup(ctx context.Context, key K) (value V, ok bool, err error)
	// Insert writes or overwrites one entry.
	Insert(ctx context.Context, key K, value V) error
	// Flush writes buffered state back to storage. durable forces a full sync.
	Flush(ctx context.Context, durable bool) error
	// Close releases the handle. It does not flush.
	io.Closer
}
