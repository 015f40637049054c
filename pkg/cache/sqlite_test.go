package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/illmade-knight/go-memocache/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appKey struct {
	Name   string
	Bundle string
}

type appInfo struct {
	Path    string
	Version int
	Aliases []string
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Miss then hit", func(t *testing.T) {
		// Arrange
		s, err := cache.OpenSQLiteStore[string, string](ctx, filepath.Join(t.TempDir(), "cache.db"), nil, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		// Act
		_, found, err := s.Lookup(ctx, "Finder")
		require.NoError(t, err)
		require.False(t, found)

		require.NoError(t, s.Insert(ctx, "Finder", "/System/Library/CoreServices/Finder.app"))
		value, found, err := s.Lookup(ctx, "Finder")

		// Assert
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "/System/Library/CoreServices/Finder.app", value)
	})

	t.Run("Entries survive reopening", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache.db")
		key := appKey{Name: "Safari", Bundle: "com.apple.Safari"}
		info := appInfo{Path: "/Applications/Safari.app", Version: 17, Aliases: []string{"browser"}}

		s, err := cache.OpenSQLiteStore[appKey, appInfo](ctx, path, cache.JSONCodec{}, zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, s.Insert(ctx, key, info))
		require.NoError(t, s.Close())

		reopened, err := cache.OpenSQLiteStore[appKey, appInfo](ctx, path, cache.JSONCodec{}, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = reopened.Close() })

		value, found, err := reopened.Lookup(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, info, value)
	})

	t.Run("Insert overwrites", func(t *testing.T) {
		s, err := cache.OpenSQLiteStore[string, int](ctx, filepath.Join(t.TempDir(), "cache.db"), nil, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		require.NoError(t, s.Insert(ctx, "k", 1))
		require.NoError(t, s.Insert(ctx, "k", 2))

		value, found, err := s.Lookup(ctx, "k")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 2, value)
		n, err := s.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Msgpack values", func(t *testing.T) {
		s, err := cache.OpenSQLiteStore[string, appInfo](ctx, filepath.Join(t.TempDir(), "cache.db"), cache.MsgpackCodec{}, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		info := appInfo{Path: "/Applications/Mail.app", Version: 16}

		require.NoError(t, s.Insert(ctx, "Mail", info))
		value, found, err := s.Lookup(ctx, "Mail")

		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, info, value)
	})

	t.Run("Value written with another codec is an error, not a hit", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache.db")
		writer, err := cache.OpenSQLiteStore[string, appInfo](ctx, path, cache.MsgpackCodec{}, zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, writer.Insert(ctx, "Mail", appInfo{Path: "/Applications/Mail.app"}))
		require.NoError(t, writer.Close())

		reader, err := cache.OpenSQLiteStore[string, appInfo](ctx, path, cache.JSONCodec{}, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = reader.Close() })

		_, found, err := reader.Lookup(ctx, "Mail")
		assert.Error(t, err)
		assert.False(t, found)
	})

	t.Run("Keys differing only in invalid UTF-8 never alias", func(t *testing.T) {
		// Arrange
		s, err := cache.OpenSQLiteStore[string, string](ctx, filepath.Join(t.TempDir(), "cache.db"), nil, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		// Act
		insertErr := s.Insert(ctx, "app\xff", "value-for-a")
		value, found, lookupErr := s.Lookup(ctx, "app\xfe")

		// Assert
		assert.ErrorIs(t, insertErr, cache.ErrInvalidKey)
		assert.ErrorIs(t, lookupErr, cache.ErrInvalidKey)
		assert.False(t, found)
		assert.NotEqual(t, "value-for-a", value)
	})

	t.Run("Open fails on an unusable path", func(t *testing.T) {
		dir := t.TempDir()
		notADir := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(notADir, nil, 0o600))

		_, err := cache.OpenSQLiteStore[string, string](ctx, filepath.Join(notADir, "cache.db"), nil, zerolog.Nop())
		assert.Error(t, err)

		_, err = cache.OpenSQLiteStore[string, string](ctx, "", nil, zerolog.Nop())
		assert.Error(t, err)
	})
}
