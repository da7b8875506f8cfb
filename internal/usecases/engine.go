package usecases

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// Enqueuer accepts repositories for a background push.
type Enqueuer interface {
	Enqueue(repo domain.RepositoryHandle) (bool, error)
}

// Options configures the sync engine.
type Options struct {
	// Remote is the remote fetched from and pushed to.
	Remote string

	// CommitTemplate renders the save-path commit message from the file's display name.
	CommitTemplate string
}

// SyncEngine reconciles tracked files with their remote on every open and save.
// Repositories are re-opened for each event; the engine keeps no state of its own
// beyond its collaborators.
type SyncEngine struct {
	opener   domain.RepositoryOpener
	runner   domain.CommandRunner
	locker   domain.RepositoryLocker
	queue    Enqueuer
	notifier domain.Notifier
	logger   Logger
	opts     Options
}

// NewSyncEngine creates a new SyncEngine with the given dependencies.
func NewSyncEngine(
	opener domain.RepositoryOpener,
	runner domain.CommandRunner,
	locker domain.RepositoryLocker,
	queue Enqueuer,
	notifier domain.Notifier,
	log Logger,
	opts Options,
) *SyncEngine {
	if opts.Remote == "" {
		opts.Remote = domain.DefaultRemote
	}
	if opts.CommitTemplate == "" {
		opts.CommitTemplate = domain.DefaultCommitTemplate
	}
	return &SyncEngine{
		opener:   opener,
		runner:   runner,
		locker:   locker,
		queue:    queue,
		notifier: notifier,
		logger:   log,
		opts:     opts,
	}
}

// Open reconciles a file that the host just opened. If the remote moved ahead
// and the file has no local modifications, the document is closed, the working
// tree hard-reset to the remote tip, and the document reopened, in that order.
// The fetch runs before the repository lock is taken; the file status is checked
// again under the lock. Opening never pushes.
func (e *SyncEngine) Open(ctx context.Context, host domain.DocumentHost, path string) error {
	e.logger.Info(ctx, "open document", map[string]interface{}{"path": path})

	repo, file, err := e.openTracked(ctx, path)
	if err != nil {
		return err
	}
	defer func() { e.closeRepo(ctx, repo) }()

	if err := e.requireUnmodified(ctx, repo, file); err != nil {
		return err
	}

	hasRemote, err := repo.HasRemote(ctx, e.opts.Remote)
	if err != nil {
		return fmt.Errorf("failed to look up remote %s: %w", e.opts.Remote, err)
	}
	if !hasRemote {
		e.logger.Debug(ctx, "repository has no remote; nothing to fetch", map[string]interface{}{
			"repository": file.Repository.Path,
			"remote":     e.opts.Remote,
		})
		return nil
	}

	url := e.remoteURL(ctx, repo)
	if err := e.fetch(ctx, host, file.Repository, url); err != nil {
		return err
	}

	if repo, err = e.refresh(ctx, repo); err != nil {
		return err
	}

	unlock, err := e.locker.Lock(ctx, file.Repository.Path)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", file.Repository.Path, err)
	}
	defer unlock()

	// A write may have landed while the fetch ran.
	if err := e.requireUnmodified(ctx, repo, file); err != nil {
		return err
	}

	local, upstream, err := e.branches(ctx, repo)
	if err != nil {
		return err
	}

	decision, err := Resolve(ctx, repo, local, upstream)
	if err != nil {
		return err
	}
	e.logDecision(ctx, file.Repository, local, decision)

	if decision.Kind != domain.DecisionResetToRemote {
		return nil
	}

	e.logBlobs(ctx, repo, file, local, upstream)

	host.SetStatus(fmt.Sprintf("Pulling newer %s version from %s", file.RelPath, url))
	defer host.SetStatus("")

	return e.resetDocuments(ctx, host, repo, decision.Target, []string{file.Path})
}

// Save commits a file the host just finished writing and queues its repository
// for a background push. Save performs no network I/O.
func (e *SyncEngine) Save(ctx context.Context, host domain.DocumentHost, path string, success bool) error {
	if !success {
		e.logger.Debug(ctx, "ignoring unsuccessful save", map[string]interface{}{"path": path})
		return nil
	}

	repo, file, err := e.openTracked(ctx, path)
	if err != nil {
		return err
	}
	defer e.closeRepo(ctx, repo)

	e.logger.Info(ctx, "commit new document version", map[string]interface{}{
		"path":       file.Path,
		"repository": file.Repository.Path,
	})

	if err := e.commit(ctx, repo, file); err != nil {
		return err
	}

	e.refreshCaption(ctx, host, repo)

	created, err := e.queue.Enqueue(file.Repository)
	if err != nil {
		return fmt.Errorf("failed to queue push for %s: %w", file.Repository.Path, err)
	}
	e.logger.Debug(ctx, "queued repository for push", map[string]interface{}{
		"repository": file.Repository.Path,
		"new_entry":  created,
	})

	return nil
}

// Activate refreshes the branch indicator for the document that became active.
// Untracked documents clear the indicator.
func (e *SyncEngine) Activate(ctx context.Context, host domain.DocumentHost, path string) error {
	repo, _, err := e.openTracked(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRepository) || errors.Is(err, domain.ErrOutsideRepository) {
			host.SetCaption("")
			return nil
		}
		return err
	}
	defer e.closeRepo(ctx, repo)

	e.refreshCaption(ctx, host, repo)
	return nil
}

// PushRepository runs one background push cycle for a repository: fetch, recompute
// divergence, then either reset to the remote or push. Divergence is always
// recomputed here because another writer may have pushed since the entry was queued.
// Only the recompute and reset hold the repository lock, so saves never wait on
// the network. A commit that lands during the push stays queued for the next cycle.
func (e *SyncEngine) PushRepository(ctx context.Context, host domain.DocumentHost, handle domain.RepositoryHandle) error {
	repo, err := e.opener.Open(ctx, handle.Path)
	if err != nil {
		return err
	}
	defer func() { e.closeRepo(ctx, repo) }()
	handle = repo.Handle()

	hasRemote, err := repo.HasRemote(ctx, e.opts.Remote)
	if err != nil {
		return fmt.Errorf("failed to look up remote %s: %w", e.opts.Remote, err)
	}
	if !hasRemote {
		return fmt.Errorf("%w: remote %s does not exist", domain.ErrNoUpstream, e.opts.Remote)
	}

	if _, err := e.runner.Fetch(ctx, handle.Path, e.opts.Remote); err != nil {
		return fmt.Errorf("failed to fetch %s: %w", e.opts.Remote, err)
	}

	if repo, err = e.refresh(ctx, repo); err != nil {
		return err
	}

	local, decision, err := e.settle(ctx, host, repo, handle)
	if err != nil {
		return err
	}
	if decision.Kind != domain.DecisionPushNeeded {
		return nil
	}

	url := e.remoteURL(ctx, repo)
	e.logger.Info(ctx, "push repository", map[string]interface{}{
		"repository": handle.Path,
		"remote":     url,
		"branch":     local.Name,
		"ahead_by":   decision.Divergence.AheadBy,
	})
	if _, err := e.runner.Push(ctx, handle.Path, e.opts.Remote, local.Name); err != nil {
		return fmt.Errorf("failed to push %s to %s: %w", local.Name, e.opts.Remote, err)
	}
	return nil
}

// settle resolves the current branch against its upstream under the repository
// lock. When the remote moved ahead, the open documents inside the repository are
// reset to it before the lock is released.
func (e *SyncEngine) settle(
	ctx context.Context,
	host domain.DocumentHost,
	repo domain.Repository,
	handle domain.RepositoryHandle,
) (*domain.BranchRef, domain.Decision, error) {
	unlock, err := e.locker.Lock(ctx, handle.Path)
	if err != nil {
		return nil, domain.Decision{}, fmt.Errorf("failed to lock %s: %w", handle.Path, err)
	}
	defer unlock()

	local, upstream, err := e.branches(ctx, repo)
	if err != nil {
		return nil, domain.Decision{}, err
	}
	if upstream == nil {
		return nil, domain.Decision{}, fmt.Errorf("%w: %s/%s", domain.ErrNoUpstream, e.opts.Remote, local.Name)
	}

	decision, err := Resolve(ctx, repo, local, upstream)
	if err != nil {
		return nil, domain.Decision{}, err
	}
	e.logDecision(ctx, handle, local, decision)

	if decision.Kind == domain.DecisionResetToRemote {
		docs := documentsIn(host, handle)
		if err := e.resetDocuments(ctx, host, repo, decision.Target, docs); err != nil {
			return nil, domain.Decision{}, err
		}
		e.refreshCaption(ctx, host, repo)
	}

	return local, decision, nil
}

// Indicator returns the branch indicator for the repository containing dir.
func (e *SyncEngine) Indicator(ctx context.Context, dir string) (*domain.BranchIndicator, error) {
	repo, err := e.opener.Open(ctx, dir)
	if err != nil {
		return nil, err
	}
	defer e.closeRepo(ctx, repo)

	return indicator(ctx, repo)
}

// openTracked opens the repository containing path and builds its TrackedFile.
func (e *SyncEngine) openTracked(ctx context.Context, path string) (domain.Repository, domain.TrackedFile, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	repo, err := e.opener.Open(ctx, filepath.Dir(path))
	if err != nil {
		return nil, domain.TrackedFile{}, err
	}

	file, err := domain.NewTrackedFile(repo.Handle(), path)
	if err != nil {
		e.closeRepo(ctx, repo)
		return nil, domain.TrackedFile{}, err
	}

	return repo, file, nil
}

// requireUnmodified returns ErrLocalModifications if file differs from HEAD.
func (e *SyncEngine) requireUnmodified(ctx context.Context, repo domain.Repository, file domain.TrackedFile) error {
	status, err := repo.FileStatus(ctx, file.RelPath)
	if err != nil {
		return fmt.Errorf("failed to get status of %s: %w", file.RelPath, err)
	}
	if status.HasLocalChanges() {
		return fmt.Errorf("%w: %s is %s", domain.ErrLocalModifications, file.RelPath, status)
	}
	return nil
}

// commit stages the file and records it with the configured message. A file
// whose staged content equals HEAD produces no commit.
func (e *SyncEngine) commit(ctx context.Context, repo domain.Repository, file domain.TrackedFile) error {
	unlock, err := e.locker.Lock(ctx, file.Repository.Path)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", file.Repository.Path, err)
	}
	defer unlock()

	if err := repo.Stage(ctx, file.RelPath); err != nil {
		return fmt.Errorf("failed to stage %s: %w", file.RelPath, err)
	}

	status, err := repo.FileStatus(ctx, file.RelPath)
	if err != nil {
		return fmt.Errorf("failed to get status of %s: %w", file.RelPath, err)
	}
	if status == domain.StatusUnmodified {
		e.logger.Debug(ctx, "document unchanged since last commit", map[string]interface{}{
			"path": file.RelPath,
		})
		return nil
	}

	message := domain.CommitMessage(e.opts.CommitTemplate, file.DisplayName)
	if _, err := e.runner.Commit(ctx, file.Repository.Path, message); err != nil {
		return fmt.Errorf("failed to commit %s: %w", file.RelPath, err)
	}

	return nil
}

// fetch updates the remote-tracking branches, showing progress in the host.
func (e *SyncEngine) fetch(ctx context.Context, host domain.DocumentHost, handle domain.RepositoryHandle, url string) error {
	e.logger.Info(ctx, "fetch from remote", map[string]interface{}{
		"repository": handle.Path,
		"remote":     e.opts.Remote,
		"url":        url,
	})

	host.SetStatus("Fetching from " + url)
	_, err := e.runner.Fetch(ctx, handle.Path, e.opts.Remote)
	host.SetStatus("")
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", e.opts.Remote, err)
	}
	return nil
}

// branches returns the current branch and its remote-tracking counterpart.
// A detached HEAD has nothing to track and yields a nil upstream.
func (e *SyncEngine) branches(ctx context.Context, repo domain.Repository) (*domain.BranchRef, *domain.BranchRef, error) {
	local, err := repo.Head(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrDetachedHead) || errors.Is(err, domain.ErrUnbornBranch) {
			return nil, nil, fmt.Errorf("%w: %w", domain.ErrNoUpstream, err)
		}
		return nil, nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	upstream, err := repo.Upstream(ctx, local, e.opts.Remote)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get upstream of %s: %w", local.Name, err)
	}
	local.Upstream = upstream

	return local, upstream, nil
}

// resetDocuments closes every document, hard-resets the working tree to target,
// then reopens the documents. Nothing is reset unless all documents closed.
// Documents are reopened even if the reset fails.
func (e *SyncEngine) resetDocuments(
	ctx context.Context,
	host domain.DocumentHost,
	repo domain.Repository,
	target string,
	docs []string,
) error {
	handle := repo.Handle()

	closed := make([]string, 0, len(docs))
	for _, doc := range docs {
		e.logger.Info(ctx, "close document to update from remote", map[string]interface{}{"path": doc})
		if err := host.CloseDocument(ctx, doc); err != nil {
			return errors.Join(
				fmt.Errorf("failed to close %s: %w", doc, err),
				e.reopen(ctx, host, closed),
			)
		}
		closed = append(closed, doc)
	}

	e.logger.Info(ctx, "reset branch to remote", map[string]interface{}{
		"repository": handle.Path,
		"target":     target,
	})
	var resetErr error
	if err := repo.ResetHard(ctx, target); err != nil {
		resetErr = fmt.Errorf("failed to reset %s to %s: %w", handle.Path, target, err)
	}

	return errors.Join(resetErr, e.reopen(ctx, host, closed))
}

// refresh closes repo and opens it again. Objects a fetch wrote into new packs
// are only visible to a freshly opened repository.
func (e *SyncEngine) refresh(ctx context.Context, repo domain.Repository) (domain.Repository, error) {
	path := repo.Handle().Path
	e.closeRepo(ctx, repo)

	fresh, err := e.opener.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen %s after fetch: %w", path, err)
	}
	return fresh, nil
}

func (e *SyncEngine) reopen(ctx context.Context, host domain.DocumentHost, docs []string) error {
	var errs []error
	for _, doc := range docs {
		if err := host.OpenDocument(ctx, doc); err != nil {
			errs = append(errs, fmt.Errorf("failed to reopen %s: %w", doc, err))
		}
	}
	return errors.Join(errs...)
}

func (e *SyncEngine) refreshCaption(ctx context.Context, host domain.DocumentHost, repo domain.Repository) {
	ind, err := indicator(ctx, repo)
	if err != nil {
		e.logger.Warn(ctx, "failed to refresh branch indicator", map[string]interface{}{
			"repository": repo.Handle().Path,
			"error":      err.Error(),
		})
		host.SetCaption("")
		return
	}
	host.SetCaption(ind.String())
}

func (e *SyncEngine) remoteURL(ctx context.Context, repo domain.Repository) string {
	url, err := repo.RemoteURL(ctx, e.opts.Remote)
	if err != nil || url == "" {
		return e.opts.Remote
	}
	return url
}

func (e *SyncEngine) logDecision(ctx context.Context, handle domain.RepositoryHandle, local *domain.BranchRef, d domain.Decision) {
	fields := map[string]interface{}{
		"repository": handle.Path,
		"decision":   d.Kind.String(),
		"ahead_by":   d.Divergence.AheadBy,
		"behind_by":  d.Divergence.BehindBy,
	}
	if local != nil {
		fields["branch"] = local.Name
		fields["local_tip"] = local.Tip
	}
	if d.Target != "" {
		fields["target"] = d.Target
	}
	e.logger.Info(ctx, "resolved divergence", fields)
}

// logBlobs records the file's blob identity on both sides before a reset.
func (e *SyncEngine) logBlobs(
	ctx context.Context,
	repo domain.Repository,
	file domain.TrackedFile,
	local, upstream *domain.BranchRef,
) {
	localBlob, localErr := repo.BlobID(ctx, local.Tip, file.RelPath)
	remoteBlob, remoteErr := repo.BlobID(ctx, upstream.Tip, file.RelPath)
	fields := map[string]interface{}{
		"path":        file.RelPath,
		"local_blob":  localBlob,
		"remote_blob": remoteBlob,
		"remote_tip":  upstream.Tip,
	}
	if err := errors.Join(localErr, remoteErr); err != nil {
		fields["error"] = err.Error()
	}
	e.logger.Info(ctx, "newer commit available on remote", fields)
}

func (e *SyncEngine) closeRepo(ctx context.Context, repo domain.Repository) {
	if repo == nil {
		return
	}
	if err := repo.Close(); err != nil {
		e.logger.Warn(ctx, "failed to close git repository", map[string]interface{}{
			"repository": repo.Handle().Path,
			"error":      err.Error(),
		})
	}
}

func indicator(ctx context.Context, repo domain.Repository) (*domain.BranchIndicator, error) {
	head, err := repo.Head(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.BranchIndicator{Branch: head.Name, ShortTip: head.ShortTip()}, nil
}

// documentsIn returns the host's open documents that live inside handle.
func documentsIn(host domain.DocumentHost, handle domain.RepositoryHandle) []string {
	return lo.Filter(host.OpenDocuments(), func(doc string, _ int) bool {
		return handle.Contains(doc)
	})
}
