package cache_test

import (
	"context"
	"testing"

	"github.com/illmade-knight/go-memocache/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Miss then hit", func(t *testing.T) {
		// Arrange
		s := cache.NewMemoryStore[string, int]()

		// Act
		_, found, err := s.Lookup(ctx, "k")
		require.NoError(t, err)
		require.False(t, found)

		require.NoError(t, s.Insert(ctx, "k", 42))
		value, found, err := s.Lookup(ctx, "k")

		// Assert
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 42, value)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("Insert overwrites", func(t *testing.T) {
		s := cache.NewMemoryStore[string, string]()
		require.NoError(t, s.Insert(ctx, "k", "old"))
		require.NoError(t, s.Insert(ctx, "k", "new"))

		value, found, err := s.Lookup(ctx, "k")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "new", value)
	})

	t.Run("Operations fail after close", func(t *testing.T) {
		s := cache.NewMemoryStore[string, string]()
		require.NoError(t, s.Close())

		_, _, err := s.Lookup(ctx, "k")
		assert.ErrorIs(t, err, cache.ErrStoreClosed)
		assert.ErrorIs(t, s.Insert(ctx, "k", "v"), cache.ErrStoreClosed)
	})
}

func TestNullStore(t *testing.T) {
	ctx := context.Background()
	s := cache.NewNullStore[string, string]()

	require.NoError(t, s.Insert(ctx, "k", "v"))
	_, found, err := s.Lookup(ctx, "k")

	require.NoError(t, err)
	assert.False(t, found, "NullStore must never report a hit")
	assert.NoError(t, s.Flush(ctx, true))
	assert.NoError(t, s.Close())
}
