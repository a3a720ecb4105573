package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierrors "github.com/ariel-frischer/smartrelease/internal/errors"
	"github.com/ariel-frischer/smartrelease/internal/graph"
	"github.com/ariel-frischer/smartrelease/internal/plan"
	"github.com/ariel-frischer/smartrelease/internal/publish"
	"github.com/ariel-frischer/smartrelease/internal/release"
)

// newRepo creates a git repository holding a workspace of util and core,
// tags their current versions and adds a feature commit to core.
func newRepo(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	when := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	commit := func(message string, files map[string]string) {
		t.Helper()
		for name, content := range files {
			path := filepath.Join(dir, name)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := wt.Add(name)
			require.NoError(t, err)
		}
		when = when.Add(time.Hour)
		sig := &object.Signature{Name: "Test User", Email: "test@test.com", When: when}
		_, err := wt.Commit(message, &gogit.CommitOptions{Author: sig, Committer: sig})
		require.NoError(t, err)
	}

	commit("chore: set up workspace", map[string]string{
		"workspace.yml":             "members:\n  - packages/*\n",
		"packages/util/package.yml": "name: util\nversion: 0.3.0\n",
		"packages/core/package.yml": "name: core\nversion: 1.2.0\ndependencies:\n  util: ^0.3.0\n",
	})
	head, err := repo.Head()
	require.NoError(t, err)
	for _, tag := range []string{"util-v0.3.0", "core-v1.2.0"} {
		_, err := repo.CreateTag(tag, head.Hash(), nil)
		require.NoError(t, err)
	}
	commit("feat(core): add parser", map[string]string{"packages/core/parser.txt": "parser\n"})
	return dir
}

func TestNewSession_DryRun(t *testing.T) {
	dir := newRepo(t)

	var out, errOut bytes.Buffer
	s, err := newSession(globalOptions{dir: filepath.Join(dir, "packages", "core"), noColor: true}, &out, &errOut)
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "util"}, s.packageNames())

	opts, err := releaseOptions{}.options(nil)
	require.NoError(t, err)
	opts.WorkDir = s.workDir

	rep, err := s.pipeline.Run(context.Background(), opts)
	require.NoError(t, err)
	s.printReport(rep, opts)

	got := out.String()
	assert.Contains(t, got, "core 1.2.0 → 1.3.0  minor (new feature)")
	assert.Contains(t, got, "+ ## v1.3.0")
	assert.Contains(t, got, "Would update:\n  package.yml\n")
	assert.Contains(t, got, "Would tag:\n  core-v1.3.0\n")
	assert.Contains(t, got, "Dry run, nothing was changed.")
	assert.NoFileExists(t, filepath.Join(dir, "packages/core/CHANGELOG.md"))
}

func TestNewSession_Errors(t *testing.T) {
	t.Run("not a repository", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		_, err := newSession(globalOptions{dir: t.TempDir()}, &bytes.Buffer{}, &bytes.Buffer{})
		cliErr := clierrors.AsCLIError(err)
		require.NotNil(t, cliErr)
		assert.Equal(t, clierrors.Repository, cliErr.Category)
	})

	t.Run("invalid project config", func(t *testing.T) {
		dir := newRepo(t)
		path := filepath.Join(dir, ".smart-release", "config.yml")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("parallelism: 0\n"), 0o644))

		_, err := newSession(globalOptions{dir: dir}, &bytes.Buffer{}, &bytes.Buffer{})
		cliErr := clierrors.AsCLIError(err)
		require.NotNil(t, cliErr)
		assert.Equal(t, clierrors.Configuration, cliErr.Category)
	})

	t.Run("broken manifest", func(t *testing.T) {
		dir := newRepo(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "packages/util/package.yml"), []byte("name: util\nversion: one\n"), 0o644))

		_, err := newSession(globalOptions{dir: dir}, &bytes.Buffer{}, &bytes.Buffer{})
		cliErr := clierrors.AsCLIError(err)
		require.NotNil(t, cliErr)
		assert.Equal(t, clierrors.Metadata, cliErr.Category)
	})
}

func TestSession_Explain(t *testing.T) {
	dir := newRepo(t)
	s, err := newSession(globalOptions{dir: dir}, &bytes.Buffer{}, &bytes.Buffer{})
	require.NoError(t, err)

	tests := map[string]struct {
		err          error
		wantCategory clierrors.ErrorCategory
		wantMessage  string
	}{
		"no package": {
			err:          release.ErrNoPackage,
			wantCategory: clierrors.Argument,
			wantMessage:  "no package given",
		},
		"unknown package": {
			err:          &graph.UnknownPackageError{Name: "nope"},
			wantCategory: clierrors.Argument,
			wantMessage:  `package "nope" is not a workspace member`,
		},
		"dirty worktree": {
			err:          release.ErrDirtyWorktree,
			wantCategory: clierrors.Repository,
			wantMessage:  "uncommitted changes",
		},
		"cycle": {
			err:          &plan.CycleError{Path: []string{"a", "b", "a"}},
			wantCategory: clierrors.Planning,
			wantMessage:  "cannot order packages",
		},
		"publish failure": {
			err:          &publish.Error{Published: []string{"a"}, Failed: "b", Stage: publish.StagePublish, Remaining: []string{"c"}},
			wantCategory: clierrors.Publish,
			wantMessage:  "publishing stopped",
		},
		"no publisher": {
			err:          release.ErrNoPublisher,
			wantCategory: clierrors.Configuration,
			wantMessage:  "publish.command is not configured",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cliErr := clierrors.AsCLIError(s.explain(tt.err))
			require.NotNil(t, cliErr)
			assert.Equal(t, tt.wantCategory, cliErr.Category)
			assert.Contains(t, cliErr.Message, tt.wantMessage)
		})
	}

	assert.Nil(t, s.explain(nil))
}

func TestChangelogPreview(t *testing.T) {
	dir := newRepo(t)
	s, err := newSession(globalOptions{dir: dir}, &bytes.Buffer{}, &bytes.Buffer{})
	require.NoError(t, err)

	updates, err := s.pipeline.UnreleasedChangelogs(context.Background(), release.Options{Packages: []string{"core", "util"}})
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.True(t, updates[0].Changed())
	assert.Contains(t, updates[0].After, "add parser")
	assert.False(t, updates[1].Changed(), "util has no commits since its tag")
}
