package embed

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is a cross-process lock guarding model downloads, so two
// daemon instances sharing a model directory never download the same
// file concurrently.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock rooted at <dir>/.download.lock.
func NewFileLock(dir string) *FileLock {
	lockPath := filepath.Join(dir, ".download.lock")
	return &FileLock{path: lockPath, flock: flock.New(lockPath)}
}

// Lock blocks until the exclusive lock is held, creating the lock file
// (and its directory) as needed.
func (l *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock attempts the lock without blocking; false means another
// process holds it.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// IsLocked reports whether this process holds the lock.
func (l *FileLock) IsLocked() bool { return l.locked }
