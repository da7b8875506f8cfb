// Package domain defines the core business entities and interfaces for trailsync.
package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// RepositoryHandle identifies a local working directory that is a Git checkout.
// Handles are never cached across lifecycle events; each use re-opens and
// re-validates the checkout through a RepositoryOpener.
type RepositoryHandle struct {
	// Path is the absolute, cleaned path of the working directory.
	Path string
}

// NewRepositoryHandle creates a handle for the given directory.
func NewRepositoryHandle(dir string) RepositoryHandle {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return RepositoryHandle{Path: filepath.Clean(dir)}
}

// Key returns the identity used to deduplicate handles.
func (h RepositoryHandle) Key() string {
	return filepath.Clean(h.Path)
}

// Contains reports whether path lies inside the repository working directory.
func (h RepositoryHandle) Contains(path string) bool {
	rel, err := filepath.Rel(h.Key(), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// TrackedFile names one file inside a repository.
type TrackedFile struct {
	// Repository is the checkout that contains the file.
	Repository RepositoryHandle

	// Path is the absolute path of the file on disk.
	Path string

	// RelPath is relative to the repository root and always uses forward slashes.
	RelPath string

	// DisplayName is the file's base name, used in commit messages.
	DisplayName string
}

// NewTrackedFile builds a TrackedFile for an absolute path inside repo.
// Returns ErrOutsideRepository if the path does not belong to the repository.
func NewTrackedFile(repo RepositoryHandle, path string) (TrackedFile, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(repo.Key(), path)
	if err != nil || rel == "." || !repo.Contains(path) {
		return TrackedFile{}, fmt.Errorf("%w: %s", ErrOutsideRepository, path)
	}

	return TrackedFile{
		Repository:  repo,
		Path:        path,
		RelPath:     filepath.ToSlash(rel),
		DisplayName: filepath.Base(path),
	}, nil
}

// BranchRef is a named branch and its tip commit.
type BranchRef struct {
	// Name is the short branch name ("main", or "origin/main" for remote-tracking refs).
	Name string

	// Tip is the full hex hash of the branch's tip commit.
	Tip string

	// Remote is the remote name for remote-tracking refs, empty for local branches.
	Remote string

	// Upstream is the remote-tracking counterpart, if the remote has the branch.
	Upstream *BranchRef
}

// ShortTip returns the first seven characters of the tip hash.
func (b BranchRef) ShortTip() string {
	if len(b.Tip) <= ShortHashLength {
		return b.Tip
	}
	return b.Tip[:ShortHashLength]
}

// Divergence counts commits reachable from one tip but not the other.
type Divergence struct {
	AheadBy  int
	BehindBy int
}

// InSync reports whether both tips point at the same history.
func (d Divergence) InSync() bool {
	return d.AheadBy == 0 && d.BehindBy == 0
}

// DecisionKind enumerates the outcomes of divergence resolution.
type DecisionKind int

const (
	// DecisionNoRemote means no remote-tracking branch is configured.
	DecisionNoRemote DecisionKind = iota
	// DecisionInSync means local and remote tips agree.
	DecisionInSync
	// DecisionResetToRemote means local is stale and must be hard-reset to the remote tip.
	DecisionResetToRemote
	// DecisionPushNeeded means local has commits the remote does not.
	DecisionPushNeeded
)

// String returns a human-readable representation of the decision kind.
func (k DecisionKind) String() string {
	switch k {
	case DecisionNoRemote:
		return "no-remote"
	case DecisionInSync:
		return "in-sync"
	case DecisionResetToRemote:
		return "reset-to-remote"
	case DecisionPushNeeded:
		return "push-needed"
	default:
		return "unknown"
	}
}

// Decision is the result of resolving a branch against its upstream.
type Decision struct {
	Kind DecisionKind

	// Target is the commit to reset to; set only for DecisionResetToRemote.
	Target string

	// Divergence is the ahead/behind count the decision was made from.
	Divergence Divergence
}

// FileStatus is the working-tree status of a single path.
type FileStatus int

const (
	// StatusUnmodified means the working copy matches the last commit.
	StatusUnmodified FileStatus = iota
	// StatusModified means the working copy differs from the last commit.
	StatusModified
	// StatusUntracked means the path is not under version control.
	StatusUntracked
	// StatusAdded means the path is staged as new.
	StatusAdded
	// StatusDeleted means the path was removed from the working tree.
	StatusDeleted
	// StatusOther covers renames, copies and unmerged paths.
	StatusOther
)

// String returns a human-readable representation of the status.
func (s FileStatus) String() string {
	switch s {
	case StatusUnmodified:
		return "unmodified"
	case StatusModified:
		return "modified"
	case StatusUntracked:
		return "untracked"
	case StatusAdded:
		return "added"
	case StatusDeleted:
		return "deleted"
	default:
		return "other"
	}
}

// HasLocalChanges reports whether the path carries uncommitted modifications
// that a hard reset would destroy.
func (s FileStatus) HasLocalChanges() bool {
	switch s {
	case StatusModified, StatusAdded, StatusDeleted, StatusOther:
		return true
	default:
		return false
	}
}

// CommandResult is the outcome of one external VCS invocation.
type CommandResult struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// BranchIndicator is the user-visible branch/commit caption.
type BranchIndicator struct {
	Branch   string
	ShortTip string
}

// String formats the indicator as "<branch> [<short sha>]".
func (b BranchIndicator) String() string {
	return fmt.Sprintf("%s [%s]", b.Branch, b.ShortTip)
}

// IgnoreUpdate lists the patterns an install or uninstall changed in one ignore file.
type IgnoreUpdate struct {
	// Path is the ignore file's absolute path.
	Path string

	// Patterns were added or removed; empty means the file already matched.
	Patterns []string
}

// CommitMessage renders the save-path commit message for a file.
func CommitMessage(template, displayName string) string {
	if template == "" {
		template = DefaultCommitTemplate
	}
	if !strings.Contains(template, "%s") {
		return template + " " + displayName
	}
	return fmt.Sprintf(template, displayName)
}

// Defaults shared across layers.
const (
	// DefaultRemote is the remote fetched from and pushed to.
	DefaultRemote = "origin"

	// DefaultCommitTemplate is the save-path commit message template.
	DefaultCommitTemplate = "Modified %s"

	// DefaultPollInterval is the consumer's idle wait between empty dequeues.
	DefaultPollInterval = 2 * time.Second

	// DefaultCommandTimeout bounds each external VCS invocation.
	DefaultCommandTimeout = 2 * time.Minute

	// DefaultQueueCapacity bounds the number of repositories awaiting push.
	DefaultQueueCapacity = 64

	// ShortHashLength is the number of hash characters shown in the branch indicator.
	ShortHashLength = 7
)
