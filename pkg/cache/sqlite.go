package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const (
	sqliteSchema = `CREATE TABLE IF NOT EXISTS entries (
	key   BLOB PRIMARY KEY,
	value BLOB NOT NULL
)`
	sqliteSelect = `SELECT value FROM entries WHERE key = ?`
	sqliteUpsert = `INSERT INTO entries (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	sqliteLength = `SELECT COUNT(*) FROM entries`
)

// SQLiteStore is a per-key store in an embedded SQLite database.
// Each Insert is a single committed statement, so Flush has nothing to do.
type SQLiteStore[K comparable, V any] struct {
	db     *sql.DB
	codec  Codec
	logger zerolog.Logger
}

// OpenSQLiteStore opens or creates the database at path. A nil codec selects JSON.
func OpenSQLiteStore[K comparable, V any](ctx context.Context, path string, codec Codec, logger zerolog.Logger) (*SQLiteStore[K, V], error) {
	if path == "" {
		return nil, errors.New("sqlite path cannot be empty")
	}
	if codec == nil {
		codec = JSONCodec{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache %s: %w", path, err)
	}
	// The store has a single owner; one connection keeps writes ordered.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open sqlite cache %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema in %s: %w", path, err)
	}

	s := &SQLiteStore[K, V]{
		db:     db,
		codec:  codec,
		logger: logger.With().Str("component", "SQLiteStore").Str("path", path).Logger(),
	}
	s.logger.Info().Str("codec", codec.Name()).Msg("SQLite cache opened.")
	return s, nil
}

// Lookup retrieves one entry by its canonical key bytes.
func (s *SQLiteStore[K, V]) Lookup(ctx context.Context, key K) (V, bool, error) {
	var zero V
	keyBytes, err := KeyBytes(key)
	if err != nil {
		return zero, false, err
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx, sqliteSelect, keyBytes).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("sqlite lookup for '%v': %w", key, err)
	}

	var value V
	if err := s.codec.Unmarshal(raw, &value); err != nil {
		s.logger.Error().Err(err).Str("key", string(keyBytes)).Msg("Failed to decode cached value.")
		return zero, false, fmt.Errorf("failed to decode value for '%v': %w", key, err)
	}
	s.logger.Debug().Str("key", string(keyBytes)).Msg("SQLite cache hit.")
	return value, true, nil
}

// Insert writes or replaces one entry.
func (s *SQLiteStore[K, V]) Insert(ctx context.Context, key K, value V) error {
	keyBytes, err := KeyBytes(key)
	if err != nil {
		return err
	}
	raw, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for '%v': %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, keyBytes, raw); err != nil {
		return fmt.Errorf("sqlite insert for '%v': %w", key, err)
	}
	s.logger.Debug().Str("key", string(keyBytes)).Msg("Stored value in SQLite cache.")
	return nil
}

// Flush is a no-op: every Insert is already committed.
func (s *SQLiteStore[K, V]) Flush(_ context.Context, _ bool) error {
	return nil
}

// Len returns the number of stored entries.
func (s *SQLiteStore[K, V]) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, sqliteLength).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite count: %w", err)
	}
	return n, nil
}

// Close closes the database handle.
func (s *SQLiteStore[K, V]) Close() error {
	s.logger.Info().Msg("Closing SQLite cache...")
	return s.db.Close()
}
