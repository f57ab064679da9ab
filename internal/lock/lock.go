// Package lock provides cross-process file locking and atomic writes
// for the paths the orchestrator touches outside its own in-memory
// graph: the result store's database file and any JSON export
// written through WriteJSONLocked. Two CLI invocations racing to save
// a job result into the same SQLite file, or to write the same
// export path through this package, are coordinated here rather than
// left to chance.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock coordinates access to one path across processes via an
// advisory lock file at path+".lock".
type FileLock struct {
	flock *flock.Flock
	path  string
}

// New returns a FileLock guarding path.
func New(path string) *FileLock {
	return &FileLock{flock: flock.New(path + ".lock"), path: path}
}

// Lock blocks until the lock is acquired.
func (l *FileLock) Lock() error {
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire lock on %s: %w", l.path, err)
	}
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (l *FileLock) TryLock() (bool, error) {
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("try lock on %s: %w", l.path, err)
	}
	return acquired, nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock on %s: %w", l.path, err)
	}
	return nil
}

// WithLock acquires the lock on path, runs fn, and releases the lock
// regardless of fn's outcome.
func WithLock(path string, fn func() error) error {
	l := New(path)
	if err := l.Lock(); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}

// AtomicWriteJSON marshals v and writes it to path via a temp-file-
// then-rename so a concurrent reader never observes a partial job
// result export.
func AtomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	tmp = nil

	return nil
}

// WriteJSONLocked acquires path's lock, then atomically writes v to
// path. The lock file is independent of the target file's own
// temp-then-rename atomicity; it exists to serialize two writers that
// would otherwise race to create the same temp file.
func WriteJSONLocked(path string, v interface{}) error {
	return WithLock(path, func() error {
		return AtomicWriteJSON(path, v)
	})
}
