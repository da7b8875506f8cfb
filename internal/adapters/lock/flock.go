// Package lock provides per-repository mutual exclusion.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// LockFileName is created inside the repository's .git directory.
const LockFileName = "trailsync.lock"

// DefaultRetryDelay is the wait between attempts on a contended file lock.
const DefaultRetryDelay = 100 * time.Millisecond

// RepoLocker serializes mutating sequences on one working tree, both between
// goroutines of this process and between trailsync processes.
type RepoLocker struct {
	mu         sync.Mutex
	local      map[string]chan struct{}
	retryDelay time.Duration
}

// NewRepoLocker creates a RepoLocker.
func NewRepoLocker() *RepoLocker {
	return &RepoLocker{
		local:      make(map[string]chan struct{}),
		retryDelay: DefaultRetryDelay,
	}
}

// Lock blocks until the repository at dir is held or ctx ends.
// Returns domain.ErrRepositoryBusy wrapped with the context error on timeout.
func (l *RepoLocker) Lock(ctx context.Context, dir string) (func(), error) {
	key := domain.NewRepositoryHandle(dir).Key()

	// In-process first: flock(2) locks are per open file description, so two
	// goroutines would otherwise need separate descriptors to contend properly.
	sem := l.semaphore(key)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrRepositoryBusy, key, ctx.Err())
	}
	release := func() { <-sem }

	fl := flock.New(lockPath(key))
	locked, err := fl.TryLockContext(ctx, l.retryDelay)
	if err != nil || !locked {
		release()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrRepositoryBusy, key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = fl.Unlock()
			release()
		})
	}, nil
}

func (l *RepoLocker) semaphore(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.local[key]
	if !ok {
		sem = make(chan struct{}, 1)
		l.local[key] = sem
	}
	return sem
}

// lockPath places the lock file in the .git directory, or in the working tree
// when .git is a file (linked worktrees, submodules).
func lockPath(dir string) string {
	gitDir := filepath.Join(dir, ".git")
	if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
		return filepath.Join(gitDir, LockFileName)
	}
	return filepath.Join(dir, "."+LockFileName)
}
