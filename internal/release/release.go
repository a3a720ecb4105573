// Package release wires the release pipeline: per-package commit
// classification, bump resolution, publish ordering, changelog generation,
// manifest edits, the release commit and tags, and publishing.
//
// Nothing is written unless Options.Execute is set. A dry run computes the
// same plan and reports what would change.
package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"golang.org/x/sync/errgroup"

	"github.com/ariel-frischer/smartrelease/internal/bump"
	"github.com/ariel-frischer/smartrelease/internal/changelog"
	"github.com/ariel-frischer/smartrelease/internal/commit"
	"github.com/ariel-frischer/smartrelease/internal/config"
	"github.com/ariel-frischer/smartrelease/internal/graph"
	"github.com/ariel-frischer/smartrelease/internal/output"
	"github.com/ariel-frischer/smartrelease/internal/plan"
	"github.com/ariel-frischer/smartrelease/internal/publish"
	"github.com/ariel-frischer/smartrelease/internal/workspace"
)

// ErrNoPackage is returned when no package was named and the working
// directory is not inside one.
var ErrNoPackage = errors.New("no package selected")

// ErrDirtyWorktree is returned by Execute when the worktree has uncommitted
// changes and Options.AllowDirty is not set.
var ErrDirtyWorktree = errors.New("working tree has uncommitted changes")

// Repository is the git access the pipeline needs.
type Repository interface {
	Root() string
	Head() (plumbing.Hash, error)
	ResolveTag(name string) (plumbing.Hash, bool, error)
	IsClean() (bool, error)
	CommitsBetween(ctx context.Context, from, to plumbing.Hash, dir string) ([]commit.Raw, error)
	Commit(paths []string, message string) (plumbing.Hash, error)
	CreateTag(name string, target plumbing.Hash, message string) error
	Push(ctx context.Context, remote string, tags []string) error
}

// Options are the per-run choices, typically taken from flags.
type Options struct {
	// Packages are the packages to release. Empty means the package that
	// contains WorkDir.
	Packages []string
	WorkDir  string
	// Bump is a minimum level for the named packages.
	Bump graph.BumpLevel
	// Breaking marks the named packages as having breaking changes.
	Breaking bool

	Execute     bool
	AllowDirty  bool
	NoChangelog bool
	NoPublish   bool
	NoTag       bool
	Push        bool
}

// Pipeline holds the collaborators of a release run.
type Pipeline struct {
	Config    *config.Configuration
	Workspace *workspace.Workspace
	Repo      Repository
	// Publisher is nil when publishing is not configured.
	Publisher publish.Publisher
	Index     publish.Index
	Logger    output.Logger
	// Out receives previews and spinner output.
	Out  io.Writer
	Caps output.TerminalCapabilities
	// Now is the clock used for release dates.
	Now func() time.Time

	tagFormat *template.Template
}

// New validates the tag format and fills defaults.
func New(p Pipeline) (*Pipeline, error) {
	if p.Config == nil || p.Workspace == nil || p.Repo == nil {
		return nil, errors.New("release pipeline needs config, workspace and repository")
	}
	tmpl, err := template.New("tag").Option("missingkey=error").Parse(p.Config.TagFormat)
	if err != nil {
		return nil, fmt.Errorf("parsing tag_format: %w", err)
	}
	p.tagFormat = tmpl
	if p.Logger == nil {
		p.Logger = output.Nop{}
	}
	if p.Out == nil {
		p.Out = io.Discard
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &p, nil
}

// TagName renders the release tag of a package version.
func (p *Pipeline) TagName(name, version string) (string, error) {
	var sb strings.Builder
	if err := p.tagFormat.Execute(&sb, struct{ Name, Version string }{name, version}); err != nil {
		return "", fmt.Errorf("rendering tag for %s: %w", name, err)
	}
	return sb.String(), nil
}

// PackageState is what the pipeline learned about one candidate package.
type PackageState struct {
	Package *workspace.Package
	// LastTag is the release tag the commit range starts at, "" when the
	// package was never released.
	LastTag string
	Commits []commit.Commit
	// Changelog is the parsed changelog, empty when the file does not exist.
	Changelog       *changelog.ChangeLog
	ChangelogPath   string
	ChangelogExists bool
}

// Plan is the outcome of planning a release.
type Plan struct {
	Graph     *graph.Graph
	Selected  []string
	Decisions []bump.Decision
	// Order lists the released packages that are published, dependencies first.
	Order    []string
	Packages map[string]*PackageState
}

// Decision returns the decision for a package.
func (pl *Plan) Decision(name string) (bump.Decision, bool) {
	for _, d := range pl.Decisions {
		if d.Name == name {
			return d, true
		}
	}
	return bump.Decision{}, false
}

// Select resolves the packages named in opts, falling back to the package
// containing the working directory.
func (p *Pipeline) Select(opts Options) ([]string, error) {
	if len(opts.Packages) > 0 {
		for _, name := range opts.Packages {
			if _, ok := p.Workspace.Package(name); !ok {
				return nil, &graph.UnknownPackageError{Name: name}
			}
		}
		return opts.Packages, nil
	}
	pkg, ok := p.Workspace.PackageAt(opts.WorkDir)
	if !ok {
		return nil, ErrNoPackage
	}
	if len(p.Workspace.Packages) > 1 {
		p.Logger.Warnf("No package named, releasing %s (the package at %s)", pkg.Name, opts.WorkDir)
	}
	return []string{pkg.Name}, nil
}

// Plan classifies the commits of the selected packages and their workspace
// dependencies, decides the bumps and orders the publishable packages.
func (p *Pipeline) Plan(ctx context.Context, opts Options) (*Plan, error) {
	selected, err := p.Select(opts)
	if err != nil {
		return nil, err
	}
	g, err := p.Workspace.Graph()
	if err != nil {
		return nil, err
	}
	candidates, err := g.DependencyClosure(selected)
	if err != nil {
		return nil, err
	}
	p.Logger.Debugf("Candidates: %s", strings.Join(candidates, ", "))

	states, err := p.classify(ctx, candidates)
	if err != nil {
		return nil, err
	}

	named := make(map[string]bool, len(selected))
	for _, name := range selected {
		named[name] = true
	}
	inputs := make(map[string]bump.Input, len(candidates))
	for _, name := range candidates {
		in := bump.Input{Commits: states[name].Commits}
		if named[name] {
			in.Override = opts.Bump
			in.Breaking = opts.Breaking
		}
		inputs[name] = in
	}

	decisions, err := bump.Resolve(g, candidates, inputs)
	if err != nil {
		return nil, err
	}

	var publishable []string
	for _, d := range decisions {
		if node, _ := g.Lookup(d.Name); node.Publish {
			publishable = append(publishable, d.Name)
		}
	}
	order, err := plan.Order(g, publishable)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Graph:     g,
		Selected:  selected,
		Decisions: decisions,
		Order:     order,
		Packages:  states,
	}, nil
}

// classify reads the last release tag, the commits since, and the changelog
// of every candidate, in parallel.
func (p *Pipeline) classify(ctx context.Context, names []string) (map[string]*PackageState, error) {
	head, err := p.Repo.Head()
	if err != nil {
		return nil, err
	}

	results := make([]*PackageState, len(names))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.Config.Parallelism)
	for i, name := range names {
		eg.Go(func() error {
			st, err := p.classifyPackage(ctx, name, head)
			if err != nil {
				return err
			}
			results[i] = st
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	states := make(map[string]*PackageState, len(names))
	for _, st := range results {
		states[st.Package.Name] = st
	}
	return states, nil
}

func (p *Pipeline) classifyPackage(ctx context.Context, name string, head plumbing.Hash) (*PackageState, error) {
	pkg, _ := p.Workspace.Package(name)
	st := &PackageState{Package: pkg, ChangelogPath: p.changelogPath(pkg)}

	tag, err := p.TagName(pkg.Name, pkg.Version.String())
	if err != nil {
		return nil, err
	}
	since, found, err := p.Repo.ResolveTag(tag)
	if err != nil {
		return nil, err
	}
	if found {
		st.LastTag = tag
	} else {
		p.Logger.Debugf("%s: tag %s not found, using the whole history", name, tag)
	}

	dir, err := p.repoRelative(pkg)
	if err != nil {
		return nil, err
	}
	raws, err := p.Repo.CommitsBetween(ctx, since, head, dir)
	if err != nil {
		return nil, err
	}

	log, exists, err := changelog.ReadFile(st.ChangelogPath)
	if err != nil {
		return nil, err
	}
	st.Changelog, st.ChangelogExists = log, exists

	st.Commits = commit.WithoutBookkeeping(commit.Classify(raws, log.RemovedIDs()))
	p.Logger.Debugf("%s: %d commits since %s, %d meaningful", name, len(raws), orRoot(st.LastTag), len(st.Commits))
	return st, nil
}

func orRoot(tag string) string {
	if tag == "" {
		return "the first commit"
	}
	return tag
}

func (p *Pipeline) changelogPath(pkg *workspace.Package) string {
	return filepath.Join(p.Workspace.Root, filepath.FromSlash(pkg.Dir), p.Config.ChangelogFile)
}

// repoRelative returns the package directory relative to the repository root.
func (p *Pipeline) repoRelative(pkg *workspace.Package) (string, error) {
	abs := filepath.Join(p.Workspace.Root, filepath.FromSlash(pkg.Dir))
	rel, err := filepath.Rel(p.Repo.Root(), abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("package %s at %s is outside the repository %s", pkg.Name, abs, p.Repo.Root())
	}
	return filepath.ToSlash(rel), nil
}
