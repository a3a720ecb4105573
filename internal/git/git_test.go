package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

// testRepo is a temporary repository built with go-git.
type testRepo struct {
	t    *testing.T
	dir  string
	repo *gogit.Repository
	n    int
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	return &testRepo{t: t, dir: dir, repo: repo}
}

// commit writes file with unique content and commits it.
func (r *testRepo) commit(file, message string) plumbing.Hash {
	r.t.Helper()
	r.n++
	path := filepath.Join(r.dir, file)
	require.NoError(r.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(r.t, os.WriteFile(path, []byte(message+"\n"), 0o644))

	wt, err := r.repo.Worktree()
	require.NoError(r.t, err)
	_, err = wt.Add(file)
	require.NoError(r.t, err)

	sig := &object.Signature{Name: "Test User", Email: "test@test.com", When: epoch.Add(time.Duration(r.n) * time.Hour)}
	id, err := wt.Commit(message, &gogit.CommitOptions{Author: sig, Committer: sig})
	require.NoError(r.t, err)
	return id
}

func (r *testRepo) open() *Repository {
	r.t.Helper()
	repo, err := Open(r.dir, nil)
	require.NoError(r.t, err)
	return repo
}

func messages(t *testing.T, repo *Repository, from, to plumbing.Hash, dir string) []string {
	t.Helper()
	raws, err := repo.CommitsBetween(context.Background(), from, to, dir)
	require.NoError(t, err)
	out := make([]string, 0, len(raws))
	for _, r := range raws {
		out = append(out, r.Message)
	}
	return out
}

func TestCommitsBetween(t *testing.T) {
	t.Parallel()

	tr := newTestRepo(t)
	c1 := tr.commit("core/a.txt", "feat: core one")
	tr.commit("cli/b.txt", "fix: cli one")
	tr.commit("core/c.txt", "fix: core two")
	head := tr.commit("coreutils/d.txt", "chore: not core")
	repo := tr.open()

	tests := map[string]struct {
		from plumbing.Hash
		dir  string
		want []string
	}{
		"whole history for a package": {
			dir:  "core",
			want: []string{"feat: core one", "fix: core two"},
		},
		"since boundary": {
			from: c1,
			dir:  "core",
			want: []string{"fix: core two"},
		},
		"root matches everything": {
			from: c1,
			dir:  ".",
			want: []string{"fix: cli one", "fix: core two", "chore: not core"},
		},
		"nothing new": {
			from: head,
			dir:  "",
			want: []string{},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, messages(t, repo, tt.from, head, tt.dir))
		})
	}
}

func TestCommitsBetween_ContextCanceled(t *testing.T) {
	t.Parallel()

	tr := newTestRepo(t)
	head := tr.commit("a.txt", "feat: a")
	repo := tr.open()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := repo.CommitsBetween(ctx, plumbing.ZeroHash, head, "")
	var repoErr *RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveTag(t *testing.T) {
	t.Parallel()

	tr := newTestRepo(t)
	first := tr.commit("a.txt", "feat: a")
	second := tr.commit("b.txt", "feat: b")
	repo := tr.open()

	require.NoError(t, repo.CreateTag("core-v1.0.0", first, "core v1.0.0"))
	_, err := tr.repo.CreateTag("light", second, nil)
	require.NoError(t, err)

	tests := map[string]struct {
		tag       string
		wantID    plumbing.Hash
		wantFound bool
	}{
		"annotated tag is peeled": {tag: "core-v1.0.0", wantID: first, wantFound: true},
		"lightweight tag":         {tag: "light", wantID: second, wantFound: true},
		"missing tag":             {tag: "core-v9.9.9", wantID: plumbing.ZeroHash},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			id, found, err := repo.ResolveTag(tt.tag)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.wantID, id)
		})
	}

	err = repo.CreateTag("core-v1.0.0", second, "again")
	assert.ErrorIs(t, err, gogit.ErrTagExists)
}

func TestCommitAndStatus(t *testing.T) {
	t.Parallel()

	tr := newTestRepo(t)
	tr.commit("core/package.yml", "feat: init")
	repo := tr.open()

	clean, err := repo.IsClean()
	require.NoError(t, err)
	assert.True(t, clean)

	require.NoError(t, os.WriteFile(filepath.Join(tr.dir, "core", "package.yml"), []byte("version: 1.1.0\n"), 0o644))
	clean, err = repo.IsClean()
	require.NoError(t, err)
	assert.False(t, clean)

	id, err := repo.Commit([]string{"core/package.yml"}, "chore(release): core v1.1.0")
	require.NoError(t, err)

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, id, head)

	clean, err = repo.IsClean()
	require.NoError(t, err)
	assert.True(t, clean)

	branch, err := repo.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "master", branch)
}

func TestOpen_FindsRootFromSubdirectory(t *testing.T) {
	t.Parallel()

	tr := newTestRepo(t)
	tr.commit("nested/deep/file.txt", "feat: nested")

	repo, err := Open(filepath.Join(tr.dir, "nested", "deep"), nil)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(tr.dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(repo.Root())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestOpen_NotARepository(t *testing.T) {
	t.Parallel()

	_, err := Open(t.TempDir(), nil)
	var repoErr *RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, "open", repoErr.Op)
}

func TestPathFilter(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		dir   string
		path  string
		want  bool
		isNil bool
	}{
		"empty dir has no filter": {dir: "", isNil: true},
		"dot has no filter":       {dir: ".", isNil: true},
		"file inside":             {dir: "core", path: "core/a.go", want: true},
		"trailing slash":          {dir: "core/", path: "core/a.go", want: true},
		"sibling with prefix":     {dir: "core", path: "coreutils/a.go", want: false},
		"nested dir":              {dir: "crates/core", path: "crates/core/src/x", want: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := pathFilter(tt.dir)
			if tt.isNil {
				assert.Nil(t, f)
				return
			}
			require.NotNil(t, f)
			assert.Equal(t, tt.want, f(tt.path))
		})
	}
}

// Note: Cannot use t.Parallel() as this test manipulates environment variables.
func TestPush_SkipsSSHWithoutAgent(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	tr := newTestRepo(t)
	tr.commit("a.txt", "feat: a")
	_, err := tr.repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{"git@github.com:user/repo.git"}})
	require.NoError(t, err)

	err = tr.open().Push(context.Background(), "origin", []string{"v1.0.0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSH_AUTH_SOCK")
}

func TestIsSSHURL(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		url  string
		want bool
	}{
		"git@ format":       {url: "git@github.com:user/repo.git", want: true},
		"ssh:// format":     {url: "ssh://git@github.com/user/repo.git", want: true},
		"git+ssh:// format": {url: "git+ssh://git@github.com/user/repo.git", want: true},
		"https format":      {url: "https://github.com/user/repo.git", want: false},
		"local path":        {url: "/srv/git/repo.git", want: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isSSHURL(tt.url))
		})
	}
}

// Note: Cannot use t.Parallel() as this test manipulates environment variables.
func TestGetAuthForURL_HTTPS(t *testing.T) {
	t.Setenv("GIT_USERNAME", "")
	t.Setenv("GITHUB_TOKEN", "token123")

	auth := getAuthForURL("https://github.com/user/repo.git", func(string, ...any) {})
	require.NotNil(t, auth)
	assert.Equal(t, "http-basic-auth", auth.Name())

	t.Setenv("GITHUB_TOKEN", "")
	assert.Nil(t, getAuthForURL("https://github.com/user/repo.git", func(string, ...any) {}))
}
