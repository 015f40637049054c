package cache_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/illmade-knight/go-memocache/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFileSnapshot[K comparable, V any](t *testing.T, path string) *cache.SnapshotStore[K, V] {
	t.Helper()
	s, err := cache.OpenSnapshotStore[K, V](context.Background(), cache.NewFileBlob(path, zerolog.Nop()), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app_paths.json")

	// Arrange: write 50 entries and flush.
	s := openFileSnapshot[string, string](t, path)
	for i := range 50 {
		require.NoError(t, s.Insert(ctx, fmt.Sprintf("app-%d", i), fmt.Sprintf("/Applications/App%d.app", i)))
	}
	require.NoError(t, s.Flush(ctx, true))
	require.NoError(t, s.Close())

	// Act: open a fresh store over the same file.
	reopened := openFileSnapshot[string, string](t, path)

	// Assert
	assert.Equal(t, 50, reopened.Len())
	for i := range 50 {
		value, found, err := reopened.Lookup(ctx, fmt.Sprintf("app-%d", i))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, fmt.Sprintf("/Applications/App%d.app", i), value)
	}

	// The file is a plain JSON object.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]string
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Len(t, onDisk, 50)
}

func TestOpenSnapshotStore_Content(t *testing.T) {
	testCases := []struct {
		name        string
		content     *string
		wantCorrupt bool
		wantLen     int
	}{
		{name: "missing file", content: nil, wantLen: 0},
		{name: "empty file", content: ptr(""), wantLen: 0},
		{name: "empty object", content: ptr("{}"), wantLen: 0},
		{name: "valid object", content: ptr(`{"Finder":"/System/Library/CoreServices/Finder.app"}`), wantLen: 1},
		{name: "truncated json", content: ptr(`{"Finder":"/Sys`), wantCorrupt: true},
		{name: "null literal", content: ptr("null"), wantCorrupt: true},
		{name: "array", content: ptr(`["a","b"]`), wantCorrupt: true},
		{name: "wrong value type", content: ptr(`{"Finder":42}`), wantCorrupt: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			path := filepath.Join(t.TempDir(), "cache.json")
			if tc.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tc.content), 0o600))
			}

			// Act
			s, err := cache.OpenSnapshotStore[string, string](context.Background(), cache.NewFileBlob(path, zerolog.Nop()), zerolog.Nop())

			// Assert
			if tc.wantCorrupt {
				require.Error(t, err)
				assert.ErrorIs(t, err, cache.ErrCorruptSnapshot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantLen, s.Len())
		})
	}
}

func TestOpenSnapshotStore_UnsupportedKey(t *testing.T) {
	type structKey struct{ A, B string }
	path := filepath.Join(t.TempDir(), "cache.json")

	_, err := cache.OpenSnapshotStore[structKey, string](context.Background(), cache.NewFileBlob(path, zerolog.Nop()), zerolog.Nop())

	assert.ErrorIs(t, err, cache.ErrUnsupportedKey)
}

func TestSnapshotStore_IntegerKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ints.json")

	s := openFileSnapshot[int, []string](t, path)
	require.NoError(t, s.Insert(ctx, 7, []string{"a", "b"}))
	require.NoError(t, s.Flush(ctx, false))

	reopened := openFileSnapshot[int, []string](t, path)
	value, found, err := reopened.Lookup(ctx, 7)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a", "b"}, value)
}

func TestSnapshotStore_FlushMergesConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.json")

	// Arrange: two stores open the same (empty) file.
	first := openFileSnapshot[string, string](t, path)
	second := openFileSnapshot[string, string](t, path)

	// Act: each inserts its own key and flushes.
	require.NoError(t, first.Insert(ctx, "Finder", "/System/Library/CoreServices/Finder.app"))
	require.NoError(t, first.Flush(ctx, true))
	require.NoError(t, second.Insert(ctx, "Safari", "/Applications/Safari.app"))
	require.NoError(t, second.Flush(ctx, true))

	// Assert: the second flush kept the first writer's entry.
	merged := openFileSnapshot[string, string](t, path)
	assert.Equal(t, 2, merged.Len())
	_, found, err := merged.Lookup(ctx, "Finder")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, second.Len(), "flush should refresh the in-memory view")
}

func TestSnapshotStore_FlushWithoutInsertsLeavesFileAlone(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "untouched.json")

	s := openFileSnapshot[string, string](t, path)
	require.NoError(t, s.Flush(ctx, true))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no file should be created when nothing was inserted")
}

func TestSnapshotStore_FlushFailsOnCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.json")

	s := openFileSnapshot[string, string](t, path)
	require.NoError(t, s.Insert(ctx, "k", "v"))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	err := s.Flush(ctx, false)

	assert.ErrorIs(t, err, cache.ErrCorruptSnapshot)
	raw, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(raw), "a corrupt file must not be overwritten")
}

func TestSnapshotStore_Closed(t *testing.T) {
	ctx := context.Background()
	s := openFileSnapshot[string, string](t, filepath.Join(t.TempDir(), "c.json"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	_, _, err := s.Lookup(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrStoreClosed)
	assert.ErrorIs(t, s.Insert(ctx, "k", "v"), cache.ErrStoreClosed)
	assert.ErrorIs(t, s.Flush(ctx, true), cache.ErrStoreClosed)
}

func TestSnapshotStore_InsertRejectsInvalidUTF8Key(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.json")
	s := openFileSnapshot[string, string](t, path)

	err := s.Insert(ctx, "app\xff", "value-for-a")

	assert.ErrorIs(t, err, cache.ErrInvalidKey)
	_, found, lookupErr := s.Lookup(ctx, "app\xff")
	require.NoError(t, lookupErr)
	assert.False(t, found)
	assert.Equal(t, 0, s.Len())
}

// recordingBlob is an in-memory Blob that remembers the durability of each write.
type recordingBlob struct {
	data    []byte
	durable []bool
}

func (b *recordingBlob) Read(context.Context) ([]byte, error) { return b.data, nil }

func (b *recordingBlob) Update(_ context.Context, merge func([]byte) ([]byte, error), durable bool) error {
	next, err := merge(b.data)
	if err != nil {
		return err
	}
	b.data = next
	b.durable = append(b.durable, durable)
	return nil
}

func (b *recordingBlob) String() string { return "memory" }

func TestSnapshotStore_DurableFlushAfterNonDurableFlush(t *testing.T) {
	ctx := context.Background()
	blob := &recordingBlob{}
	s, err := cache.OpenSnapshotStore[string, string](ctx, blob, zerolog.Nop())
	require.NoError(t, err)

	// Arrange: one entry written without fsync.
	require.NoError(t, s.Insert(ctx, "Finder", "/System/Library/CoreServices/Finder.app"))
	require.NoError(t, s.Flush(ctx, false))
	written := string(blob.data)

	// Act
	require.NoError(t, s.Flush(ctx, true))
	require.NoError(t, s.Flush(ctx, true))
	require.NoError(t, s.Flush(ctx, false))

	// Assert: the first durable flush syncs once; later ones have nothing to do.
	assert.Equal(t, []bool{false, true}, blob.durable)
	assert.Equal(t, written, string(blob.data), "syncing must not change the content")
}

func ptr(s string) *string { return &s }
