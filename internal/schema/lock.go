package schema

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// PathLock is a file lock scoped to a database path. It serializes
// concurrent SyncSchema attempts so two processes never race to migrate
// the same file. The lock file records the holder's PID; a lock whose
// holder is dead is treated as stale and reclaimed.
type PathLock struct {
	path string
	held bool
}

// NewPathLock creates a lock for the given database path.
func NewPathLock(dbPath string) *PathLock {
	return &PathLock{path: dbPath + ".sync.lock"}
}

// Acquire takes the lock, retrying until ctx is done.
func (l *PathLock) Acquire(ctx context.Context) error {
	for {
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(l.path)
				return fmt.Errorf("failed to write lock file: %w", werr)
			}
			l.held = true
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}
		if l.reclaimStale() {
			continue
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for schema sync lock %s: %w", l.path, ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// reclaimStale removes the lock file if its recorded holder is no longer
// running. Returns true if a stale lock was removed.
func (l *PathLock) reclaimStale() bool {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		// Unreadable lock content: treat as stale.
		return os.Remove(l.path) == nil
	}
	if pid == os.Getpid() {
		return false
	}
	if err := syscall.Kill(pid, 0); err == syscall.ESRCH {
		return os.Remove(l.path) == nil
	}
	return false
}

// Release drops the lock. Safe to call when not held.
func (l *PathLock) Release() {
	if !l.held {
		return
	}
	l.held = false
	_ = os.Remove(l.path)
}
