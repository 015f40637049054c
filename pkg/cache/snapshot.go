package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrCorruptSnapshot means the snapshot exists but is not a valid key/value mapping.
	// It is never treated as an empty cache.
	ErrCorruptSnapshot = errors.New("cache snapshot corrupted")
	// ErrUnsupportedKey means the key type cannot be a JSON object key.
	ErrUnsupportedKey = errors.New("key type cannot be used in a snapshot")
)

// SnapshotStore keeps the whole mapping in memory and persists it as one JSON
// object. Inserts are cheap; Flush writes everything in one go.
type SnapshotStore[K comparable, V any] struct {
	blob   Blob
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[K]V
	pending map[K]struct{} // keys inserted since the last successful flush
	// unsynced is set when the last write skipped fsync, so a later durable
	// Flush still has work to do with nothing pending.
	unsynced bool
	closed   bool
}

// OpenSnapshotStore loads the snapshot held by blob.
// An empty or missing blob is an empty mapping. Content that does not parse as
// map[K]V fails with ErrCorruptSnapshot.
// K must be a string kind, an integer kind, or implement encoding.TextMarshaler.
func OpenSnapshotStore[K comparable, V any](ctx context.Context, blob Blob, logger zerolog.Logger) (*SnapshotStore[K, V], error) {
	if blob == nil {
		return nil, errors.New("snapshot blob cannot be nil")
	}
	if _, err := json.Marshal(map[K]V{}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}

	data, err := blob.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", blob, err)
	}
	entries, err := decodeSnapshot[K, V](data)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", blob, err)
	}

	s := &SnapshotStore[K, V]{
		blob:    blob,
		logger:  logger.With().Str("component", "SnapshotStore").Str("location", blob.String()).Logger(),
		entries: entries,
		pending: make(map[K]struct{}),
	}
	s.logger.Info().Int("entries", len(entries)).Msg("Snapshot loaded.")
	return s, nil
}

func decodeSnapshot[K comparable, V any](data []byte) (map[K]V, error) {
	if len(data) == 0 {
		return make(map[K]V), nil
	}
	var entries map[K]V
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	// "null" parses without error but is not a mapping.
	if entries == nil {
		return nil, fmt.Errorf("%w: content is not an object", ErrCorruptSnapshot)
	}
	return entries, nil
}

// Lookup retrieves a value from the in-memory mapping.
func (s *SnapshotStore[K, V]) Lookup(_ context.Context, key K) (V, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	if s.closed {
		return zero, false, ErrStoreClosed
	}
	value, ok := s.entries[key]
	if !ok {
		return zero, false, nil
	}
	return value, true, nil
}

// Insert adds or replaces an entry in memory. It reaches the blob on the next Flush.
// Keys that JSON would rewrite, such as strings with invalid UTF-8, fail with ErrInvalidKey.
func (s *SnapshotStore[K, V]) Insert(_ context.Context, key K, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if err := validateKey(key); err != nil {
		return err
	}
	s.entries[key] = value
	s.pending[key] = struct{}{}
	return nil
}

// Flush writes the mapping back to the blob. The blob is re-read first and the
// keys inserted by this store are laid over it, so entries written by another
// process since Open are kept. With nothing inserted it is a no-op, except that a
// durable Flush after a non-durable one rewrites the blob with fsync.
func (s *SnapshotStore[K, V]) Flush(ctx context.Context, durable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if len(s.pending) == 0 {
		if !durable || !s.unsynced {
			return nil
		}
		keep := func(current []byte) ([]byte, error) { return current, nil }
		if err := s.blob.Update(ctx, keep, true); err != nil {
			return fmt.Errorf("failed to sync snapshot %s: %w", s.blob, err)
		}
		s.logger.Debug().Msg("Snapshot synced.")
		s.unsynced = false
		return nil
	}

	var merged map[K]V
	err := s.blob.Update(ctx, func(current []byte) ([]byte, error) {
		onDisk, err := decodeSnapshot[K, V](current)
		if err != nil {
			return nil, err
		}
		for key := range s.pending {
			onDisk[key] = s.entries[key]
		}
		data, err := json.Marshal(onDisk)
		if err != nil {
			return nil, fmt.Errorf("failed to encode snapshot: %w", err)
		}
		merged = onDisk
		return data, nil
	}, durable)
	if err != nil {
		return fmt.Errorf("failed to flush snapshot %s: %w", s.blob, err)
	}

	s.logger.Debug().Int("written", len(s.pending)).Int("entries", len(merged)).Bool("durable", durable).Msg("Snapshot flushed.")
	s.entries = merged
	clear(s.pending)
	s.unsynced = !durable
	return nil
}

// Len returns the number of entries currently in memory.
func (s *SnapshotStore[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close drops the in-memory mapping. Unflushed inserts are lost.
func (s *SnapshotStore[K, V]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if len(s.pending) > 0 {
		s.logger.Warn().Int("unflushed", len(s.pending)).Msg("Snapshot closed with unflushed entries.")
	}
	s.closed = true
	s.entries = nil
	return nil
}
