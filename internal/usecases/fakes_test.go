package usecases

import (
	"context"
	"fmt"
	"sync"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

const (
	testRepoPath   = "/work/budget"
	testFilePath   = "/work/budget/model.xlsx"
	testRemoteURL  = "git@example.com:finance/budget.git"
	localTipSHA    = "1111111111111111111111111111111111111111"
	upstreamTipSHA = "2222222222222222222222222222222222222222"
)

// recorder collects side effects from every fake in the order they happen.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// logEntry is one captured log line.
type logEntry struct {
	level  string
	msg    string
	err    error
	fields map[string]interface{}
}

// mockLogger implements Logger and records every entry.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (m *mockLogger) record(level, msg string, err error, fields map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, logEntry{level: level, msg: msg, err: err, fields: fields})
}

func (m *mockLogger) Info(_ context.Context, msg string, fields map[string]interface{}) {
	m.record("info", msg, nil, fields)
}

func (m *mockLogger) Debug(_ context.Context, msg string, fields map[string]interface{}) {
	m.record("debug", msg, nil, fields)
}

func (m *mockLogger) Warn(_ context.Context, msg string, fields map[string]interface{}) {
	m.record("warn", msg, nil, fields)
}

func (m *mockLogger) Error(_ context.Context, msg string, err error, fields map[string]interface{}) {
	m.record("error", msg, err, fields)
}

func (m *mockLogger) has(level, msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

// mockNotifier records notifications.
type mockNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockNotifier) Notify(_ context.Context, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// mockRepository is an in-memory checkout. One instance stands for the state
// on disk, so re-opening returns the same instance.
type mockRepository struct {
	rec    *recorder
	handle domain.RepositoryHandle

	head     *domain.BranchRef
	headErr  error
	upstream *domain.BranchRef

	hasRemote bool
	remoteURL string

	div       domain.Divergence
	divErr    error
	divCalls  int
	status    domain.FileStatus
	staged    domain.FileStatus
	hasStaged bool
	stageErr  error
	resetErr  error
	closes    int
}

func newMockRepository(rec *recorder) *mockRepository {
	return &mockRepository{
		rec:       rec,
		handle:    domain.NewRepositoryHandle(testRepoPath),
		head:      &domain.BranchRef{Name: "main", Tip: localTipSHA},
		upstream:  &domain.BranchRef{Name: "origin/main", Tip: localTipSHA, Remote: "origin"},
		hasRemote: true,
		remoteURL: testRemoteURL,
		status:    domain.StatusUnmodified,
		staged:    domain.StatusModified,
	}
}

// remoteAhead makes the remote one commit ahead of the local branch.
func (m *mockRepository) remoteAhead() {
	m.upstream.Tip = upstreamTipSHA
	m.div = domain.Divergence{BehindBy: 1}
}

// localAhead makes the local branch one commit ahead of the remote.
func (m *mockRepository) localAhead() {
	m.upstream.Tip = upstreamTipSHA
	m.div = domain.Divergence{AheadBy: 1}
}

func (m *mockRepository) Handle() domain.RepositoryHandle { return m.handle }

func (m *mockRepository) Head(context.Context) (*domain.BranchRef, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	head := *m.head
	return &head, nil
}

func (m *mockRepository) Upstream(_ context.Context, _ *domain.BranchRef, _ string) (*domain.BranchRef, error) {
	if m.upstream == nil {
		return nil, nil
	}
	upstream := *m.upstream
	return &upstream, nil
}

func (m *mockRepository) HasRemote(context.Context, string) (bool, error) {
	return m.hasRemote, nil
}

func (m *mockRepository) RemoteURL(context.Context, string) (string, error) {
	return m.remoteURL, nil
}

func (m *mockRepository) Divergence(context.Context, string, string) (domain.Divergence, error) {
	m.divCalls++
	return m.div, m.divErr
}

func (m *mockRepository) FileStatus(context.Context, string) (domain.FileStatus, error) {
	if m.hasStaged {
		return m.staged, nil
	}
	return m.status, nil
}

func (m *mockRepository) BlobID(_ context.Context, commit, relPath string) (string, error) {
	return "blob-" + commit[:4] + "-" + relPath, nil
}

func (m *mockRepository) Stage(_ context.Context, relPath string) error {
	m.rec.add("stage %s", relPath)
	if m.stageErr != nil {
		return m.stageErr
	}
	m.hasStaged = true
	return nil
}

func (m *mockRepository) ResetHard(_ context.Context, commit string) error {
	m.rec.add("reset %s", commit)
	if m.resetErr != nil {
		return m.resetErr
	}
	m.head.Tip = commit
	m.div = domain.Divergence{}
	return nil
}

func (m *mockRepository) Close() error {
	m.closes++
	return nil
}

// mockOpener hands out the same repository for every directory inside it.
type mockOpener struct {
	repo  *mockRepository
	opens int
}

func (m *mockOpener) Open(_ context.Context, dir string) (domain.Repository, error) {
	if m.repo == nil || !m.repo.handle.Contains(dir) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidRepository, dir)
	}
	m.opens++
	return m.repo, nil
}

// mockRunner records git invocations.
type mockRunner struct {
	rec       *recorder
	fetchErr  error
	pushErr   error
	commitErr error
	onFetch   func()
	onPush    func()
	messages  []string
}

func (m *mockRunner) Fetch(_ context.Context, dir, remote string) (*domain.CommandResult, error) {
	m.rec.add("fetch %s %s", dir, remote)
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if m.onFetch != nil {
		m.onFetch()
	}
	return &domain.CommandResult{Args: []string{"fetch", remote}}, nil
}

func (m *mockRunner) Push(_ context.Context, dir, remote, branch string) (*domain.CommandResult, error) {
	m.rec.add("push %s %s %s", dir, remote, branch)
	if m.onPush != nil {
		m.onPush()
	}
	return &domain.CommandResult{Args: []string{"push", remote, branch}}, m.pushErr
}

func (m *mockRunner) Pull(_ context.Context, dir, remote, branch string) (*domain.CommandResult, error) {
	m.rec.add("pull %s %s %s", dir, remote, branch)
	return &domain.CommandResult{Args: []string{"pull", remote, branch}}, nil
}

func (m *mockRunner) Commit(_ context.Context, dir, message string) (*domain.CommandResult, error) {
	m.rec.add("commit %s", message)
	m.messages = append(m.messages, message)
	return &domain.CommandResult{Args: []string{"commit", "-m", message}}, m.commitErr
}

// mockLocker is an exclusive lock that records lock and unlock calls.
type mockLocker struct {
	rec  *recorder
	err  error
	held chan struct{}
}

func newMockLocker(rec *recorder) *mockLocker {
	return &mockLocker{rec: rec, held: make(chan struct{}, 1)}
}

func (m *mockLocker) Lock(ctx context.Context, dir string) (func(), error) {
	if m.err != nil {
		return nil, m.err
	}
	select {
	case m.held <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", domain.ErrRepositoryBusy, ctx.Err())
	}
	m.rec.add("lock %s", dir)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.rec.add("unlock %s", dir)
			<-m.held
		})
	}, nil
}

// mockHost records document operations and status text.
type mockHost struct {
	rec       *recorder
	mu        sync.Mutex
	docs      []string
	closeErrs map[string]error
	openErr   error
	statuses  []string
	caption   string
}

func newMockHost(rec *recorder, docs ...string) *mockHost {
	return &mockHost{rec: rec, docs: docs, closeErrs: map[string]error{}}
}

func (m *mockHost) CloseDocument(_ context.Context, path string) error {
	m.rec.add("close %s", path)
	return m.closeErrs[path]
}

func (m *mockHost) OpenDocument(_ context.Context, path string) error {
	m.rec.add("open %s", path)
	return m.openErr
}

func (m *mockHost) OpenDocuments() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.docs...)
}

func (m *mockHost) SetStatus(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, text)
}

func (m *mockHost) SetCaption(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caption = text
}

// recordingQueue wraps RepoPushQueue and records enqueues.
type recordingQueue struct {
	*RepoPushQueue
	rec *recorder
	err error
}

func (q *recordingQueue) Enqueue(repo domain.RepositoryHandle) (bool, error) {
	q.rec.add("enqueue %s", repo.Path)
	if q.err != nil {
		return false, q.err
	}
	return q.RepoPushQueue.Enqueue(repo)
}

// engineFixture wires a SyncEngine to fakes that share one recorder.
type engineFixture struct {
	rec      *recorder
	repo     *mockRepository
	opener   *mockOpener
	runner   *mockRunner
	locker   *mockLocker
	queue    *recordingQueue
	notifier *mockNotifier
	logger   *mockLogger
	host     *mockHost
	engine   *SyncEngine
}

func newEngineFixture(opts Options) *engineFixture {
	rec := &recorder{}
	repo := newMockRepository(rec)
	f := &engineFixture{
		rec:      rec,
		repo:     repo,
		opener:   &mockOpener{repo: repo},
		runner:   &mockRunner{rec: rec},
		locker:   newMockLocker(rec),
		queue:    &recordingQueue{RepoPushQueue: NewRepoPushQueue(0), rec: rec},
		notifier: &mockNotifier{},
		logger:   &mockLogger{},
		host:     newMockHost(rec, testFilePath),
	}
	f.engine = NewSyncEngine(f.opener, f.runner, f.locker, f.queue, f.notifier, f.logger, opts)
	return f
}
