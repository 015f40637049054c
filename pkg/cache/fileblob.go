package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FileBlob is a snapshot location on the local filesystem.
// Reads and updates hold a lockfile (<path>.lock) so concurrent processes
// pointing at the same path merge their writes instead of clobbering them.
type FileBlob struct {
	path   string
	logger zerolog.Logger
}

// NewFileBlob creates a FileBlob for path. Nothing is touched on disk until the first Read.
func NewFileBlob(path string, logger zerolog.Logger) *FileBlob {
	return &FileBlob{
		path:   path,
		logger: logger.With().Str("component", "FileBlob").Str("path", path).Logger(),
	}
}

func (b *FileBlob) String() string { return b.path }

func (b *FileBlob) lockPath() string { return b.path + ".lock" }

// Read returns the file content, or nil if the file does not exist.
func (b *FileBlob) Read(ctx context.Context) ([]byte, error) {
	unlock, err := acquireFileLock(ctx, b.lockPath())
	if err != nil {
		return nil, fmt.Errorf("acquiring file lock: %w", err)
	}
	defer unlock()

	return b.readLocked()
}

func (b *FileBlob) readLocked() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache file: %w", err)
	}
	return data, nil
}

// Update re-reads the file under the lock, applies merge and replaces the file atomically.
func (b *FileBlob) Update(ctx context.Context, merge func(current []byte) ([]byte, error), durable bool) error {
	unlock, err := acquireFileLock(ctx, b.lockPath())
	if err != nil {
		return fmt.Errorf("acquiring file lock: %w", err)
	}
	defer unlock()

	current, err := b.readLocked()
	if err != nil {
		return err
	}
	next, err := merge(current)
	if err != nil {
		return err
	}
	if err := b.writeAtomic(next, durable); err != nil {
		return err
	}
	b.logger.Debug().Int("bytes", len(next)).Bool("durable", durable).Msg("Cache file written.")
	return nil
}

// writeAtomic writes data to a unique temp file in the same directory and renames it
// over the target, so readers only ever see a complete file.
func (b *FileBlob) writeAtomic(data []byte, durable bool) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmpPath := b.path + "." + uuid.NewString() + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating cache temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return fmt.Errorf("writing cache temp file: %w", err)
	}
	if durable {
		if err := f.Sync(); err != nil {
			_ = f.Close()
			cleanup()
			return fmt.Errorf("syncing cache temp file: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing cache temp file: %w", err)
	}

	if err := os.Rename(tmpPath, b.path); err != nil {
		cleanup()
		return fmt.Errorf("renaming cache temp file: %w", err)
	}

	if durable {
		return syncDir(dir)
	}
	return nil
}

// syncDir makes a rename in dir durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("opening cache directory for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing cache directory: %w", err)
	}
	return nil
}
