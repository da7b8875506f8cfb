package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// testLogger is a minimal logger for testing that doesn't output anything.
type testLogger struct{}

func (l *testLogger) Debug(_ context.Context, _ string, _ map[string]interface{}) {}
func (l *testLogger) Warn(_ context.Context, _ string, _ map[string]interface{})  {}

// remoteFixture is a bare repository with two clones, "alice" and "bob",
// both on branch main with one shared commit.
type remoteFixture struct {
	bare  string
	alice string
	bob   string
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// setupTestRepo creates a standalone repository with one commit on main.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	requireGit(t)

	dir := realPath(t, t.TempDir())
	runGit(t, dir, "init")
	runGit(t, dir, "symbolic-ref", "HEAD", "refs/heads/main")
	configureUser(t, dir)

	writeFile(t, dir, "model.xlsx", "initial content")
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "Initial commit")

	return dir
}

// setupRemoteFixture creates a bare remote and two clones of it.
func setupRemoteFixture(t *testing.T) *remoteFixture {
	t.Helper()
	requireGit(t)

	root := realPath(t, t.TempDir())
	f := &remoteFixture{
		bare:  filepath.Join(root, "remote.git"),
		alice: filepath.Join(root, "alice"),
		bob:   filepath.Join(root, "bob"),
	}

	runGit(t, root, "init", "--bare", f.bare)
	runGit(t, f.bare, "symbolic-ref", "HEAD", "refs/heads/main")

	require.NoError(t, os.MkdirAll(f.alice, 0o755))
	runGit(t, f.alice, "init")
	runGit(t, f.alice, "symbolic-ref", "HEAD", "refs/heads/main")
	configureUser(t, f.alice)
	writeFile(t, f.alice, "model.xlsx", "v1")
	runGit(t, f.alice, "add", ".")
	runGit(t, f.alice, "commit", "-m", "Modified model.xlsx")
	runGit(t, f.alice, "remote", "add", "origin", f.bare)
	runGit(t, f.alice, "push", "origin", "main")
	runGit(t, f.alice, "fetch", "origin")

	runGit(t, root, "clone", f.bare, f.bob)
	configureUser(t, f.bob)

	return f
}

func configureUser(t *testing.T, dir string) {
	t.Helper()
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test User")
	runGit(t, dir, "config", "commit.gpgsign", "false")
}

// runGit executes a git command in the given directory and returns its trimmed stdout.
func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\nOutput: %s", args, err, output)
	}
	return strings.TrimSpace(string(output))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func realPath(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return resolved
}

func openRepo(t *testing.T, dir string) *GoGitRepository {
	t.Helper()
	repo, err := NewGoGitRepository(dir, &testLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewGoGitRepository_Success(t *testing.T) {
	repoPath := setupTestRepo(t)

	repo, err := NewGoGitRepository(repoPath, &testLogger{})

	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Equal(t, repoPath, repo.Handle().Path)
	require.NoError(t, repo.Close())
}

func TestNewGoGitRepository_FromSubdirectory(t *testing.T) {
	repoPath := setupTestRepo(t)
	sub := filepath.Join(repoPath, "reports", "q1")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	repo := openRepo(t, sub)

	assert.Equal(t, repoPath, repo.Handle().Path)
}

func TestNewGoGitRepository_NotARepository(t *testing.T) {
	tmpDir := t.TempDir()

	repo, err := NewGoGitRepository(tmpDir, &testLogger{})

	require.Error(t, err)
	assert.Nil(t, repo)
	assert.ErrorIs(t, err, domain.ErrInvalidRepository)
}

func TestOpener_Open(t *testing.T) {
	repoPath := setupTestRepo(t)
	opener := NewOpener(&testLogger{})

	repo, err := opener.Open(testContext(t), repoPath)

	require.NoError(t, err)
	assert.Equal(t, repoPath, repo.Handle().Path)
	assert.NoError(t, repo.Close())
}

func TestOpener_OpenNotARepository(t *testing.T) {
	opener := NewOpener(&testLogger{})

	repo, err := opener.Open(testContext(t), t.TempDir())

	require.Error(t, err)
	assert.Nil(t, repo)
	assert.ErrorIs(t, err, domain.ErrInvalidRepository)
}

func TestGoGitRepository_Head(t *testing.T) {
	repoPath := setupTestRepo(t)
	repo := openRepo(t, repoPath)

	head, err := repo.Head(testContext(t))

	require.NoError(t, err)
	assert.Equal(t, "main", head.Name)
	assert.Equal(t, runGit(t, repoPath, "rev-parse", "HEAD"), head.Tip)
	assert.Len(t, head.ShortTip(), domain.ShortHashLength)
}

func TestGoGitRepository_Head_Detached(t *testing.T) {
	repoPath := setupTestRepo(t)
	sha := runGit(t, repoPath, "rev-parse", "HEAD")
	runGit(t, repoPath, "checkout", "--detach", sha)
	repo := openRepo(t, repoPath)

	head, err := repo.Head(testContext(t))

	require.Error(t, err)
	assert.Nil(t, head)
	assert.ErrorIs(t, err, domain.ErrDetachedHead)
}

func TestGoGitRepository_Head_Unborn(t *testing.T) {
	requireGit(t)
	dir := realPath(t, t.TempDir())
	runGit(t, dir, "init")
	repo := openRepo(t, dir)

	_, err := repo.Head(testContext(t))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnbornBranch)
}

func TestGoGitRepository_Remotes(t *testing.T) {
	f := setupRemoteFixture(t)
	ctx := testContext(t)
	repo := openRepo(t, f.alice)

	has, err := repo.HasRemote(ctx, "origin")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasRemote(ctx, "upstream")
	require.NoError(t, err)
	assert.False(t, has)

	url, err := repo.RemoteURL(ctx, "origin")
	require.NoError(t, err)
	assert.Equal(t, f.bare, url)

	_, err = repo.RemoteURL(ctx, "upstream")
	assert.Error(t, err)
}

func TestGoGitRepository_Upstream(t *testing.T) {
	f := setupRemoteFixture(t)
	ctx := testContext(t)
	repo := openRepo(t, f.bob)

	local, err := repo.Head(ctx)
	require.NoError(t, err)

	upstream, err := repo.Upstream(ctx, local, "origin")

	require.NoError(t, err)
	require.NotNil(t, upstream)
	assert.Equal(t, "origin/main", upstream.Name)
	assert.Equal(t, "origin", upstream.Remote)
	assert.Equal(t, local.Tip, upstream.Tip)
}

func TestGoGitRepository_Upstream_MissingBranch(t *testing.T) {
	f := setupRemoteFixture(t)
	runGit(t, f.bob, "checkout", "-b", "feature")
	ctx := testContext(t)
	repo := openRepo(t, f.bob)

	local, err := repo.Head(ctx)
	require.NoError(t, err)

	upstream, err := repo.Upstream(ctx, local, "origin")

	require.NoError(t, err)
	assert.Nil(t, upstream)
}

func TestGoGitRepository_Divergence(t *testing.T) {
	f := setupRemoteFixture(t)

	// bob publishes one commit; alice only learns about it through fetch.
	writeFile(t, f.bob, "model.xlsx", "v2")
	runGit(t, f.bob, "commit", "-am", "Modified model.xlsx")
	runGit(t, f.bob, "push", "origin", "main")
	runGit(t, f.alice, "fetch", "origin")

	ctx := testContext(t)
	repo := openRepo(t, f.alice)
	local, err := repo.Head(ctx)
	require.NoError(t, err)
	upstream, err := repo.Upstream(ctx, local, "origin")
	require.NoError(t, err)
	require.NotNil(t, upstream)

	div, err := repo.Divergence(ctx, local.Tip, upstream.Tip)
	require.NoError(t, err)
	assert.Equal(t, domain.Divergence{AheadBy: 0, BehindBy: 1}, div)

	// A local commit on top makes the branches diverge both ways.
	writeFile(t, f.alice, "notes.txt", "local")
	runGit(t, f.alice, "add", "notes.txt")
	runGit(t, f.alice, "commit", "-m", "Modified notes.txt")

	local, err = repo.Head(ctx)
	require.NoError(t, err)
	div, err = repo.Divergence(ctx, local.Tip, upstream.Tip)
	require.NoError(t, err)
	assert.Equal(t, domain.Divergence{AheadBy: 1, BehindBy: 1}, div)
}

func TestGoGitRepository_Divergence_SameTip(t *testing.T) {
	repoPath := setupTestRepo(t)
	repo := openRepo(t, repoPath)
	sha := runGit(t, repoPath, "rev-parse", "HEAD")

	div, err := repo.Divergence(testContext(t), sha, sha)

	require.NoError(t, err)
	assert.True(t, div.InSync())
}

func TestGoGitRepository_Divergence_UnknownCommit(t *testing.T) {
	repoPath := setupTestRepo(t)
	repo := openRepo(t, repoPath)
	sha := runGit(t, repoPath, "rev-parse", "HEAD")

	_, err := repo.Divergence(testContext(t), sha, strings.Repeat("f", 40))

	assert.Error(t, err)
}

func TestGoGitRepository_FileStatus(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, dir string)
		path    string
		want    domain.FileStatus
	}{
		{
			name:    "committed file is unmodified",
			prepare: func(*testing.T, string) {},
			path:    "model.xlsx",
			want:    domain.StatusUnmodified,
		},
		{
			name: "edited file is modified",
			prepare: func(t *testing.T, dir string) {
				writeFile(t, dir, "model.xlsx", "edited")
			},
			path: "model.xlsx",
			want: domain.StatusModified,
		},
		{
			name: "new file is untracked",
			prepare: func(t *testing.T, dir string) {
				writeFile(t, dir, "scratch.xlsx", "new")
			},
			path: "scratch.xlsx",
			want: domain.StatusUntracked,
		},
		{
			name: "staged new file is added",
			prepare: func(t *testing.T, dir string) {
				writeFile(t, dir, "scratch.xlsx", "new")
				runGit(t, dir, "add", "scratch.xlsx")
			},
			path: "scratch.xlsx",
			want: domain.StatusAdded,
		},
		{
			name: "removed file is deleted",
			prepare: func(t *testing.T, dir string) {
				require.NoError(t, os.Remove(filepath.Join(dir, "model.xlsx")))
			},
			path: "model.xlsx",
			want: domain.StatusDeleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupTestRepo(t)
			tt.prepare(t, dir)
			repo := openRepo(t, dir)

			status, err := repo.FileStatus(testContext(t), tt.path)

			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestGoGitRepository_Stage(t *testing.T) {
	dir := setupTestRepo(t)
	ctx := testContext(t)
	repo := openRepo(t, dir)

	// Unchanged content stages to nothing.
	require.NoError(t, repo.Stage(ctx, "model.xlsx"))
	status, err := repo.FileStatus(ctx, "model.xlsx")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnmodified, status)

	writeFile(t, dir, "model.xlsx", "edited")
	require.NoError(t, repo.Stage(ctx, "model.xlsx"))

	status, err = repo.FileStatus(ctx, "model.xlsx")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusModified, status)
	assert.Contains(t, runGit(t, dir, "diff", "--cached", "--name-only"), "model.xlsx")
}

func TestGoGitRepository_BlobID(t *testing.T) {
	dir := setupTestRepo(t)
	repo := openRepo(t, dir)
	sha := runGit(t, dir, "rev-parse", "HEAD")

	blob, err := repo.BlobID(testContext(t), sha, "model.xlsx")

	require.NoError(t, err)
	assert.Equal(t, runGit(t, dir, "rev-parse", "HEAD:model.xlsx"), blob)

	_, err = repo.BlobID(testContext(t), sha, "missing.xlsx")
	assert.Error(t, err)
}

func TestGoGitRepository_ResetHard(t *testing.T) {
	f := setupRemoteFixture(t)
	writeFile(t, f.bob, "model.xlsx", "v2")
	runGit(t, f.bob, "commit", "-am", "Modified model.xlsx")
	runGit(t, f.bob, "push", "origin", "main")
	runGit(t, f.alice, "fetch", "origin")

	ctx := testContext(t)
	repo := openRepo(t, f.alice)
	target := runGit(t, f.alice, "rev-parse", "origin/main")

	require.NoError(t, repo.ResetHard(ctx, target))

	content, err := os.ReadFile(filepath.Join(f.alice, "model.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))

	head, err := repo.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", head.Name)
	assert.Equal(t, target, head.Tip)
}
