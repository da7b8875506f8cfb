// Package git provides adapters for interacting with local Git repositories.
// This package implements the domain.Repository and domain.RepositoryOpener
// interfaces using go-git/v5.
package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// Logger defines the logging interface for the git adapter.
// This interface enables dependency injection and testability.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// Opener implements domain.RepositoryOpener using go-git/v5.
type Opener struct {
	logger Logger
}

// NewOpener creates a new Opener.
func NewOpener(log Logger) *Opener {
	return &Opener{logger: log}
}

// Open opens the working tree containing dir.
// Returns domain.ErrInvalidRepository if dir is not inside a Git checkout.
func (o *Opener) Open(_ context.Context, dir string) (domain.Repository, error) {
	repo, err := NewGoGitRepository(dir, o.logger)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// GoGitRepository implements domain.Repository using go-git/v5.
// It is opened fresh for every lifecycle event and never cached.
type GoGitRepository struct {
	repo     *git.Repository
	worktree *git.Worktree
	handle   domain.RepositoryHandle
	logger   Logger
}

// NewGoGitRepository opens the Git working tree containing path.
// Bare repositories are rejected because there is no file to synchronize.
// Returns domain.ErrInvalidRepository if the path is not inside a Git checkout.
func NewGoGitRepository(path string, log Logger) (*GoGitRepository, error) {
	repo, err := plainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidRepository, path)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: %s has no working tree: %w", domain.ErrInvalidRepository, path, err)
	}

	return &GoGitRepository{
		repo:     repo,
		worktree: worktree,
		handle:   domain.NewRepositoryHandle(worktree.Filesystem.Root()),
		logger:   log,
	}, nil
}

func plainOpen(path string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
}

// Handle returns the handle of the working-tree root.
func (r *GoGitRepository) Handle() domain.RepositoryHandle {
	return r.handle
}

// Head returns the current branch and its tip.
// Returns domain.ErrDetachedHead if HEAD does not point at a branch and
// domain.ErrUnbornBranch before the first commit.
func (r *GoGitRepository) Head(ctx context.Context) (*domain.BranchRef, error) {
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnbornBranch, r.handle.Path)
		}
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	if !head.Name().IsBranch() {
		r.logger.Warn(ctx, "HEAD is detached", map[string]interface{}{
			"head_sha": head.Hash().String(),
			"path":     r.handle.Path,
		})
		return nil, fmt.Errorf("%w at %s", domain.ErrDetachedHead, head.Hash())
	}

	return &domain.BranchRef{
		Name: head.Name().Short(),
		Tip:  head.Hash().String(),
	}, nil
}

// Upstream returns the remote-tracking branch <remote>/<local.Name>.
// Returns (nil, nil) if the remote has no such branch yet.
func (r *GoGitRepository) Upstream(ctx context.Context, local *domain.BranchRef, remote string) (*domain.BranchRef, error) {
	if local == nil {
		return nil, nil
	}

	refName := plumbing.NewRemoteReferenceName(remote, local.Name)
	ref, err := r.repo.Reference(refName, true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			r.logger.Debug(ctx, "no remote-tracking branch", map[string]interface{}{
				"reference": refName.String(),
				"path":      r.handle.Path,
			})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve %s: %w", refName, err)
	}

	return &domain.BranchRef{
		Name:   refName.Short(),
		Tip:    ref.Hash().String(),
		Remote: remote,
	}, nil
}

// HasRemote reports whether a remote with the given name is configured.
func (r *GoGitRepository) HasRemote(_ context.Context, name string) (bool, error) {
	_, err := r.repo.Remote(name)
	if err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read remote %s: %w", name, err)
	}
	return true, nil
}

// RemoteURL returns the first configured URL of the named remote.
func (r *GoGitRepository) RemoteURL(_ context.Context, name string) (string, error) {
	remote, err := r.repo.Remote(name)
	if err != nil {
		return "", fmt.Errorf("failed to read remote %s: %w", name, err)
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %s has no URLs configured", name)
	}
	return urls[0], nil
}

// Divergence counts the commits reachable from localTip but not upstreamTip
// (ahead) and the reverse (behind).
func (r *GoGitRepository) Divergence(ctx context.Context, localTip, upstreamTip string) (domain.Divergence, error) {
	if localTip == upstreamTip {
		return domain.Divergence{}, nil
	}

	localSet, err := r.ancestry(ctx, localTip)
	if err != nil {
		return domain.Divergence{}, err
	}
	upstreamSet, err := r.ancestry(ctx, upstreamTip)
	if err != nil {
		return domain.Divergence{}, err
	}

	var div domain.Divergence
	for h := range localSet {
		if _, ok := upstreamSet[h]; !ok {
			div.AheadBy++
		}
	}
	for h := range upstreamSet {
		if _, ok := localSet[h]; !ok {
			div.BehindBy++
		}
	}

	r.logger.Debug(ctx, "computed divergence", map[string]interface{}{
		"local_tip":    localTip,
		"upstream_tip": upstreamTip,
		"ahead_by":     div.AheadBy,
		"behind_by":    div.BehindBy,
	})

	return div, nil
}

// ancestry returns every commit reachable from tip, tip included.
func (r *GoGitRepository) ancestry(ctx context.Context, tip string) (map[plumbing.Hash]struct{}, error) {
	commit, err := r.repo.CommitObject(plumbing.NewHash(tip))
	if err != nil {
		return nil, fmt.Errorf("failed to get commit object for %s: %w", tip, err)
	}

	seen := make(map[plumbing.Hash]struct{})
	iter := object.NewCommitPreorderIter(commit, nil, nil)
	defer iter.Close()

	err = iter.ForEach(func(c *object.Commit) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		seen[c.Hash] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk commit history from %s: %w", tip, err)
	}

	return seen, nil
}

// FileStatus returns the status of one repository-relative path. Changes in the
// working tree take precedence over staged changes.
func (r *GoGitRepository) FileStatus(_ context.Context, relPath string) (domain.FileStatus, error) {
	status, err := r.worktree.Status()
	if err != nil {
		return domain.StatusOther, fmt.Errorf("failed to get worktree status: %w", err)
	}

	// Status omits clean paths; Status.File would report them as untracked.
	fs, ok := status[relPath]
	if !ok {
		return domain.StatusUnmodified, nil
	}

	code := fs.Worktree
	if code == git.Unmodified {
		code = fs.Staging
	}
	return mapStatusCode(code), nil
}

func mapStatusCode(code git.StatusCode) domain.FileStatus {
	switch code {
	case git.Unmodified:
		return domain.StatusUnmodified
	case git.Modified:
		return domain.StatusModified
	case git.Untracked:
		return domain.StatusUntracked
	case git.Added:
		return domain.StatusAdded
	case git.Deleted:
		return domain.StatusDeleted
	default:
		return domain.StatusOther
	}
}

// BlobID returns the blob hash of relPath in the tree of commit.
func (r *GoGitRepository) BlobID(_ context.Context, commit, relPath string) (string, error) {
	c, err := r.repo.CommitObject(plumbing.NewHash(commit))
	if err != nil {
		return "", fmt.Errorf("failed to get commit object for %s: %w", commit, err)
	}

	file, err := c.File(relPath)
	if err != nil {
		return "", fmt.Errorf("failed to find %s in %s: %w", relPath, commit, err)
	}
	return file.Hash.String(), nil
}

// Stage records the current content of relPath in the index.
func (r *GoGitRepository) Stage(ctx context.Context, relPath string) error {
	hash, err := r.worktree.Add(relPath)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", relPath, err)
	}

	r.logger.Debug(ctx, "staged file", map[string]interface{}{
		"path": relPath,
		"blob": hash.String(),
	})
	return nil
}

// ResetHard moves the current branch to commit and overwrites the index and
// working tree with its content.
func (r *GoGitRepository) ResetHard(ctx context.Context, commit string) error {
	hash := plumbing.NewHash(commit)
	if err := r.worktree.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("failed to hard reset to %s: %w", commit, err)
	}

	r.logger.Debug(ctx, "reset working tree", map[string]interface{}{
		"path":   r.handle.Path,
		"commit": commit,
	})
	return nil
}

// Close releases any resources held by the repository.
// For go-git, this is a no-op as the repository doesn't hold persistent resources.
func (r *GoGitRepository) Close() error {
	return nil
}
