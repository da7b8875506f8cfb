// Package domain defines the core business entities and interfaces for trailsync.
// This package contains no external dependencies and represents the innermost layer
// of the CLEAN architecture.
package domain

import (
	"context"
	"errors"
)

// Domain errors for repository inspection and reconciliation.
var (
	// ErrInvalidRepository indicates the directory is not a valid Git checkout.
	// The file is treated as untracked and reconciliation is skipped silently.
	ErrInvalidRepository = errors.New("not a valid git repository")

	// ErrOutsideRepository indicates a file path does not lie inside its repository.
	ErrOutsideRepository = errors.New("path is outside the repository working tree")

	// ErrLocalModifications indicates the opened file has uncommitted changes,
	// so no fetch or reset is attempted for this event.
	ErrLocalModifications = errors.New("file has uncommitted local modifications")

	// ErrNoUpstream indicates the current branch has no remote-tracking branch.
	ErrNoUpstream = errors.New("no remote-tracking branch configured")

	// ErrDetachedHead indicates HEAD does not point at a branch.
	ErrDetachedHead = errors.New("HEAD is detached")

	// ErrUnbornBranch indicates the current branch has no commits yet.
	ErrUnbornBranch = errors.New("current branch has no commits")

	// ErrCommandFailed indicates the git binary exited with a non-zero status.
	ErrCommandFailed = errors.New("git command failed")

	// ErrCommandTimeout indicates a git invocation exceeded its time bound.
	ErrCommandTimeout = errors.New("git command timed out")

	// ErrQueueFull indicates the push queue reached its capacity.
	ErrQueueFull = errors.New("push queue is full")

	// ErrRepositoryBusy indicates the repository lock could not be acquired.
	ErrRepositoryBusy = errors.New("repository is locked by another sync")
)

// IsSilent reports whether err belongs to the part of the error taxonomy that is
// absorbed without notifying the user.
func IsSilent(err error) bool {
	return errors.Is(err, ErrInvalidRepository) ||
		errors.Is(err, ErrLocalModifications) ||
		errors.Is(err, ErrNoUpstream)
}

// Repository is the read and mutate facade over one opened checkout.
type Repository interface {
	// Handle returns the handle this repository was opened from.
	Handle() RepositoryHandle

	// Head returns the current local branch and its tip.
	// Returns ErrDetachedHead if HEAD is not a branch and ErrUnbornBranch if the
	// branch has no commits.
	Head(ctx context.Context) (*BranchRef, error)

	// Upstream returns the remote-tracking branch <remote>/<local.Name>, or nil if
	// the remote has no such branch.
	Upstream(ctx context.Context, local *BranchRef, remote string) (*BranchRef, error)

	// HasRemote reports whether a remote with the given name is configured.
	HasRemote(ctx context.Context, name string) (bool, error)

	// RemoteURL returns the first URL of the named remote.
	RemoteURL(ctx context.Context, name string) (string, error)

	// Divergence computes how far localTip is ahead of and behind upstreamTip.
	Divergence(ctx context.Context, localTip, upstreamTip string) (Divergence, error)

	// FileStatus returns the working-tree status of a repository-relative path.
	FileStatus(ctx context.Context, relPath string) (FileStatus, error)

	// BlobID returns the blob hash of relPath at the given commit.
	BlobID(ctx context.Context, commit, relPath string) (string, error)

	// Stage records the current content of relPath for the next commit.
	Stage(ctx context.Context, relPath string) error

	// ResetHard discards all working-tree and staged changes and moves the
	// current branch to commit.
	ResetHard(ctx context.Context, commit string) error

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryOpener opens repositories.
type RepositoryOpener interface {
	// Open opens the checkout containing dir. The returned repository's handle
	// is the working-tree root.
	// Returns ErrInvalidRepository if dir is not a Git checkout.
	Open(ctx context.Context, dir string) (Repository, error)
}

// CommandRunner executes network-bound and commit subcommands through the git binary.
// Exit status is the sole success signal; output is logged, never parsed.
type CommandRunner interface {
	Fetch(ctx context.Context, dir, remote string) (*CommandResult, error)
	Push(ctx context.Context, dir, remote, branch string) (*CommandResult, error)
	Pull(ctx context.Context, dir, remote, branch string) (*CommandResult, error)
	Commit(ctx context.Context, dir, message string) (*CommandResult, error)
}

// DocumentHost is the editing application as seen by the sync engine.
type DocumentHost interface {
	// CloseDocument releases the host's handle on path without saving.
	CloseDocument(ctx context.Context, path string) error

	// OpenDocument (re)opens path in the host.
	OpenDocument(ctx context.Context, path string) error

	// OpenDocuments lists the paths currently open in the host.
	OpenDocuments() []string

	// SetStatus shows a transient status text; empty clears it.
	SetStatus(text string)

	// SetCaption shows the branch indicator; empty clears it.
	SetCaption(text string)
}

// DocumentLifecycle receives the host's document notifications.
// Implementations absorb every failure; nothing propagates back to the host.
type DocumentLifecycle interface {
	FileOpened(ctx context.Context, host DocumentHost, path string)
	FileSaved(ctx context.Context, host DocumentHost, path string, success bool)
	DocumentActivated(ctx context.Context, host DocumentHost, path string)
}

// Notifier surfaces terminal failures to the user without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// RepositoryLocker serializes mutating sequences on one working tree.
type RepositoryLocker interface {
	// Lock blocks until the repository at dir is exclusively held or ctx ends.
	// The returned function releases the lock.
	Lock(ctx context.Context, dir string) (func(), error)
}
