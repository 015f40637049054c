package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrLocked is returned when the cross-process lockfile cannot be acquired.
var ErrLocked = errors.New("cache file is locked by another process")

const (
	lockMaxRetries = 10
	lockRetryDelay = 100 * time.Millisecond
	lockStaleAge   = 30 * time.Second
	// Past this age a lock is broken even if its PID is alive: the PID may
	// have been reused by an unrelated process.
	lockHardStaleAge = 5 * time.Minute
)

// acquireFileLock acquires the advisory lockfile that sits next to a snapshot file.
// The returned func releases the lock. Waiting stops early when ctx is done.
func acquireFileLock(ctx context.Context, lockPath string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	for range lockMaxRetries {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			// The PID lets other processes detect a stale lock.
			_, _ = fmt.Fprintf(f, "%d", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("creating lockfile %s: %w", lockPath, err)
		}

		if removeStaleLock(lockPath, lockStaleAge, lockHardStaleAge) {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lockfile %s: %w", lockPath, ctx.Err())
		case <-time.After(lockRetryDelay):
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
}

// removeStaleLock removes a lockfile older than staleAge whose owner is gone,
// or any lockfile older than hardAge. Returns true if the lock was removed.
func removeStaleLock(lockPath string, staleAge, hardAge time.Duration) bool {
	info, statErr := os.Stat(lockPath)
	if statErr != nil {
		return false
	}
	age := time.Since(info.ModTime())
	if age <= staleAge {
		return false
	}
	if age <= hardAge && isLockHeldByLiveProcess(lockPath) {
		return false
	}
	_ = os.Remove(lockPath)
	return true
}

func isLockHeldByLiveProcess(lockPath string) bool {
	pidData, readErr := os.ReadFile(lockPath)
	if readErr != nil || len(pidData) == 0 {
		return false
	}
	var pid int
	if _, scanErr := fmt.Sscanf(string(pidData), "%d", &pid); scanErr != nil || pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}
