// Package git provides repository access for smart-release: release tag
// lookup, per-package commit enumeration, and the release commit and tags.
// It uses the go-git library so no git binary is required.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/ariel-frischer/smartrelease/internal/commit"
)

// DefaultPushTimeout bounds a push of the release commit and tags.
const DefaultPushTimeout = 60 * time.Second

// Logger receives debug output of repository operations.
type Logger interface {
	Debugf(format string, args ...any)
}

// RepositoryError reports a failed repository operation.
type RepositoryError struct {
	Op   string
	Path string
	Err  error
}

func (e *RepositoryError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("git %s (%s): %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("git %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// Repository wraps a go-git repository.
type Repository struct {
	repo   *git.Repository
	root   string
	logger Logger
}

// Open opens the repository containing path, searching parent directories.
// If path is empty, the current working directory is used.
func Open(path string, logger Logger) (*Repository, error) {
	if path == "" {
		var err error
		path, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting current directory: %w", err)
		}
	}

	r := &Repository{logger: logger}
	r.logDebug("[git] opening repository at %s", path)

	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, &RepositoryError{Op: "open", Path: path, Err: err}
	}
	r.repo = repo

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, &RepositoryError{Op: "worktree", Path: path, Err: err}
	}
	r.root = worktree.Filesystem.Root()

	r.logDebug("[git] repository opened at %s", r.root)
	return r, nil
}

// logDebug logs a debug message if a logger is set.
func (r *Repository) logDebug(format string, args ...any) {
	if r.logger != nil {
		r.logger.Debugf(format, args...)
	}
}

// Root returns the absolute path of the worktree root.
func (r *Repository) Root() string {
	return r.root
}

// CurrentBranch returns the name of the current branch, or "" when HEAD is
// detached.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", &RepositoryError{Op: "head", Err: err}
	}
	if !head.Name().IsBranch() {
		r.logDebug("[git] CurrentBranch: detached HEAD state")
		return "", nil
	}
	return head.Name().Short(), nil
}

// Head returns the commit HEAD points to.
func (r *Repository) Head() (plumbing.Hash, error) {
	head, err := r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, &RepositoryError{Op: "head", Err: err}
	}
	return head.Hash(), nil
}

// ResolveTag returns the commit a tag points to. Annotated tags are peeled.
// found is false when the tag does not exist.
func (r *Repository) ResolveTag(name string) (id plumbing.Hash, found bool, err error) {
	ref, err := r.repo.Tag(name)
	if errors.Is(err, git.ErrTagNotFound) {
		r.logDebug("[git] ResolveTag: %s not found", name)
		return plumbing.ZeroHash, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, false, &RepositoryError{Op: "resolve tag " + name, Err: err}
	}

	tag, err := r.repo.TagObject(ref.Hash())
	switch {
	case err == nil:
		c, err := tag.Commit()
		if err != nil {
			return plumbing.ZeroHash, false, &RepositoryError{Op: "peel tag " + name, Err: err}
		}
		return c.Hash, true, nil
	case errors.Is(err, plumbing.ErrObjectNotFound):
		// Lightweight tag.
		return ref.Hash(), true, nil
	default:
		return plumbing.ZeroHash, false, &RepositoryError{Op: "read tag " + name, Err: err}
	}
}

// IsClean reports whether the worktree has no uncommitted changes.
func (r *Repository) IsClean() (bool, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return false, &RepositoryError{Op: "worktree", Err: err}
	}
	status, err := worktree.Status()
	if err != nil {
		return false, &RepositoryError{Op: "status", Err: err}
	}
	return status.IsClean(), nil
}

// CommitsBetween returns the commits reachable from to but not from from,
// that touch files under dir, oldest first. A zero from means the whole
// history. An empty dir or "." matches every path.
func (r *Repository) CommitsBetween(ctx context.Context, from, to plumbing.Hash, dir string) ([]commit.Raw, error) {
	released, err := r.ancestors(ctx, from)
	if err != nil {
		return nil, err
	}

	iter, err := r.repo.Log(&git.LogOptions{From: to, PathFilter: pathFilter(dir)})
	if err != nil {
		return nil, &RepositoryError{Op: "log", Path: dir, Err: err}
	}
	defer iter.Close()

	var out []commit.Raw
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := released[c.Hash]; ok {
			return nil
		}
		out = append(out, commit.Raw{ID: c.Hash, Message: c.Message, Time: c.Author.When})
		return nil
	})
	if err != nil {
		return nil, &RepositoryError{Op: "log", Path: dir, Err: err}
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	r.logDebug("[git] CommitsBetween %s..%s in %q: %d commits", short(from), short(to), dir, len(out))
	return out, nil
}

func (r *Repository) ancestors(ctx context.Context, from plumbing.Hash) (map[plumbing.Hash]struct{}, error) {
	set := make(map[plumbing.Hash]struct{})
	if from.IsZero() {
		return set, nil
	}
	iter, err := r.repo.Log(&git.LogOptions{From: from})
	if err != nil {
		return nil, &RepositoryError{Op: "log", Err: err}
	}
	defer iter.Close()
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		set[c.Hash] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, &RepositoryError{Op: "log", Err: err}
	}
	return set, nil
}

func pathFilter(dir string) func(string) bool {
	dir = filepath.ToSlash(filepath.Clean(dir))
	if dir == "" || dir == "." {
		return nil
	}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	return func(p string) bool {
		return p == dir || strings.HasPrefix(p, prefix)
	}
}

func short(h plumbing.Hash) string {
	if h.IsZero() {
		return "<root>"
	}
	return h.String()[:7]
}

// Commit stages the given paths, relative to the worktree root, and creates
// a commit with message. It returns the new commit id.
func (r *Repository) Commit(paths []string, message string) (plumbing.Hash, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, &RepositoryError{Op: "worktree", Err: err}
	}
	for _, p := range paths {
		if _, err := worktree.Add(filepath.ToSlash(p)); err != nil {
			return plumbing.ZeroHash, &RepositoryError{Op: "add", Path: p, Err: err}
		}
	}

	sig := r.signature()
	id, err := worktree.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return plumbing.ZeroHash, &RepositoryError{Op: "commit", Err: err}
	}
	r.logDebug("[git] Commit: created %s", short(id))
	return id, nil
}

// CreateTag creates an annotated tag on target.
func (r *Repository) CreateTag(name string, target plumbing.Hash, message string) error {
	if _, err := r.repo.Tag(name); err == nil {
		return &RepositoryError{Op: "tag " + name, Err: git.ErrTagExists}
	}
	_, err := r.repo.CreateTag(name, target, &git.CreateTagOptions{
		Tagger:  r.signature(),
		Message: message,
	})
	if err != nil {
		return &RepositoryError{Op: "tag " + name, Err: err}
	}
	r.logDebug("[git] CreateTag: %s -> %s", name, short(target))
	return nil
}

// signature builds the author from the repository and global git config.
func (r *Repository) signature() *object.Signature {
	sig := &object.Signature{Name: "smart-release", Email: "smart-release@localhost", When: time.Now()}
	cfg, err := r.repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		r.logDebug("[git] reading config: %v", err)
		return sig
	}
	if cfg.User.Name != "" {
		sig.Name = cfg.User.Name
	}
	if cfg.User.Email != "" {
		sig.Email = cfg.User.Email
	}
	return sig
}

// Push pushes the current branch and the given tags to remote.
// SSH remotes are skipped when no SSH agent is available.
func (r *Repository) Push(ctx context.Context, remoteName string, tags []string) error {
	remote, err := r.repo.Remote(remoteName)
	if err != nil {
		return &RepositoryError{Op: "push", Path: remoteName, Err: err}
	}
	cfg := remote.Config()
	if len(cfg.URLs) == 0 {
		return &RepositoryError{Op: "push", Path: remoteName, Err: errors.New("remote has no URL")}
	}
	url := cfg.URLs[0]

	if isSSHURL(url) && !isSSHAgentAvailable() {
		return &RepositoryError{Op: "push", Path: remoteName, Err: errors.New("SSH remote without SSH agent (SSH_AUTH_SOCK unset)")}
	}

	branch, err := r.CurrentBranch()
	if err != nil {
		return err
	}
	var specs []config.RefSpec
	if branch != "" {
		specs = append(specs, config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)))
	}
	for _, tag := range tags {
		specs = append(specs, config.RefSpec(fmt.Sprintf("refs/tags/%s:refs/tags/%s", tag, tag)))
	}
	if len(specs) == 0 {
		return nil
	}

	r.logDebug("[git] pushing %d refs to '%s' (%s)", len(specs), remoteName, url)
	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   specs,
		Auth:       getAuthForURL(url, r.logDebug),
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return &RepositoryError{Op: "push", Path: remoteName, Err: err}
	}
	return nil
}

// getAuthForURL returns the appropriate authentication method for a remote URL.
// SSH URLs use SSH agent auth, HTTPS URLs use environment credentials.
func getAuthForURL(url string, logDebug func(string, ...any)) transport.AuthMethod {
	if isSSHURL(url) {
		auth, err := ssh.NewSSHAgentAuth("git")
		if err != nil {
			logDebug("[git] SSH agent auth failed: %v", err)
			return nil
		}
		return auth
	}

	username := os.Getenv("GIT_USERNAME")
	password := os.Getenv("GIT_PASSWORD")
	if username == "" {
		username = os.Getenv("GITHUB_TOKEN")
		if username != "" {
			password = "" // GitHub token can be used as username with empty password
		}
	}

	if username != "" {
		return &http.BasicAuth{
			Username: username,
			Password: password,
		}
	}

	return nil
}

// isSSHURL checks if a URL is an SSH URL.
// Detects git@ (SCP-style), ssh://, and git+ssh:// schemes.
func isSSHURL(url string) bool {
	return strings.HasPrefix(url, "git@") ||
		strings.HasPrefix(url, "ssh://") ||
		strings.HasPrefix(url, "git+ssh://")
}

// isSSHAgentAvailable checks if an SSH agent is available.
func isSSHAgentAvailable() bool {
	return strings.TrimSpace(os.Getenv("SSH_AUTH_SOCK")) != ""
}
