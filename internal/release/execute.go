package release

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"golang.org/x/sync/errgroup"

	"github.com/ariel-frischer/smartrelease/internal/bump"
	"github.com/ariel-frischer/smartrelease/internal/changelog"
	"github.com/ariel-frischer/smartrelease/internal/publish"
	"github.com/ariel-frischer/smartrelease/internal/workspace"
)

// ChangelogUpdate is the regenerated changelog of one package.
type ChangelogUpdate struct {
	Package string
	Path    string
	Before  string
	After   string
	Log     *changelog.ChangeLog
}

// Changed reports whether the file content differs.
func (u ChangelogUpdate) Changed() bool {
	return u.Before != u.After
}

// Report is what a release run did, or would do in a dry run.
type Report struct {
	Plan       *Plan
	Changelogs []ChangelogUpdate
	// Manifests are the manifest files that were, or would be, rewritten.
	Manifests []string
	Commit    plumbing.Hash
	Tags      []string
	Published []string
	// Commands are the rendered publish commands of a dry run.
	Commands []string
}

// Run plans the release and, with opts.Execute, applies it.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	pl, err := p.Plan(ctx, opts)
	if err != nil {
		return nil, err
	}
	report := &Report{Plan: pl}
	if len(pl.Decisions) == 0 {
		p.Logger.Infof("Nothing to release")
		return report, nil
	}

	if opts.Execute && !opts.AllowDirty {
		clean, err := p.Repo.IsClean()
		if err != nil {
			return nil, err
		}
		if !clean {
			return nil, ErrDirtyWorktree
		}
	}

	if !opts.NoChangelog {
		report.Changelogs, err = p.releaseChangelogs(ctx, pl)
		if err != nil {
			return nil, err
		}
	}

	manifests, err := p.editManifests(pl.Decisions)
	if err != nil {
		return nil, err
	}
	for _, m := range manifests {
		report.Manifests = append(report.Manifests, m.Path())
	}

	if !opts.Execute {
		report.Tags, err = p.tagNames(pl.Decisions)
		if err != nil {
			return nil, err
		}
		report.Commands = p.dryRunCommands(pl, opts)
		return report, nil
	}

	if err := p.write(manifests, report.Changelogs); err != nil {
		return nil, err
	}
	if err := p.commitAndTag(ctx, pl, opts, report); err != nil {
		return nil, err
	}

	if opts.NoPublish || len(pl.Order) == 0 {
		return report, nil
	}
	if p.Publisher == nil {
		return report, ErrNoPublisher
	}
	report.Published, err = p.publish(ctx, pl)
	return report, err
}

// ErrNoPublisher is returned when publishing is due but no command is configured.
var ErrNoPublisher = errors.New("no publish command configured")

// releaseChangelogs merges the commits of every released package into its
// changelog under the new version.
func (p *Pipeline) releaseChangelogs(ctx context.Context, pl *Plan) ([]ChangelogUpdate, error) {
	now := p.Now()
	updates := make([]ChangelogUpdate, len(pl.Decisions))
	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(p.Config.Parallelism)
	for i, d := range pl.Decisions {
		st := pl.Packages[d.Name]
		eg.Go(func() error {
			before := ""
			if st.ChangelogExists {
				before = st.Changelog.Markdown()
			}
			_, err := st.Changelog.Generate(changelog.GenerateInput{
				Version:      changelog.Semantic(d.Next),
				Date:         &now,
				Commits:      st.Commits,
				HeadingLevel: p.Config.DefaultHeadingLevel,
			})
			if err != nil {
				return fmt.Errorf("changelog of %s: %w", d.Name, err)
			}
			updates[i] = ChangelogUpdate{
				Package: d.Name,
				Path:    st.ChangelogPath,
				Before:  before,
				After:   st.Changelog.Markdown(),
				Log:     st.Changelog,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return updates, nil
}

// editManifests sets the new versions and raises the requirements of every
// workspace package that depends on a released one. Manifests are edited in
// memory only.
func (p *Pipeline) editManifests(decisions []bump.Decision) ([]*workspace.Manifest, error) {
	byPath := map[string]*workspace.Manifest{}
	load := func(pkg *workspace.Package) (*workspace.Manifest, error) {
		if m, ok := byPath[pkg.ManifestPath]; ok {
			return m, nil
		}
		m, err := workspace.LoadManifest(pkg.ManifestPath)
		if err != nil {
			return nil, err
		}
		byPath[pkg.ManifestPath] = m
		return m, nil
	}

	for _, d := range decisions {
		pkg, _ := p.Workspace.Package(d.Name)
		m, err := load(pkg)
		if err != nil {
			return nil, err
		}
		m.SetVersion(d.Next)

		for _, other := range p.Workspace.Packages {
			if _, ok := other.Dependencies[d.Name]; !ok {
				continue
			}
			dm, err := load(other)
			if err != nil {
				return nil, err
			}
			if _, err := dm.SetDependencyRequirement(d.Name, d.Next); err != nil {
				return nil, err
			}
		}
	}

	paths := make([]string, 0, len(byPath))
	for path := range byPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	out := make([]*workspace.Manifest, 0, len(paths))
	for _, path := range paths {
		out = append(out, byPath[path])
	}
	return out, nil
}

func (p *Pipeline) write(manifests []*workspace.Manifest, updates []ChangelogUpdate) error {
	for _, m := range manifests {
		if err := m.Save(); err != nil {
			return err
		}
		p.Logger.Debugf("Wrote %s", m.Path())
	}
	for _, u := range updates {
		if !u.Changed() {
			continue
		}
		if err := u.Log.WriteFile(u.Path); err != nil {
			return err
		}
		p.Logger.Debugf("Wrote %s", u.Path)
	}
	return nil
}

func (p *Pipeline) tagNames(decisions []bump.Decision) ([]string, error) {
	tags := make([]string, 0, len(decisions))
	for _, d := range decisions {
		tag, err := p.TagName(d.Name, d.Next.String())
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// commitMessage lists the released packages, e.g. "Release a v1.2.0, b v0.3.1".
func commitMessage(decisions []bump.Decision) string {
	parts := make([]string, 0, len(decisions))
	for _, d := range decisions {
		parts = append(parts, fmt.Sprintf("%s v%s", d.Name, d.Next))
	}
	return "Release " + strings.Join(parts, ", ")
}

func (p *Pipeline) commitAndTag(ctx context.Context, pl *Plan, opts Options, report *Report) error {
	if !p.Config.Commit {
		p.Logger.Infof("Skipping the release commit (commit: false)")
		return nil
	}

	paths := append([]string(nil), report.Manifests...)
	for _, u := range report.Changelogs {
		if u.Changed() {
			paths = append(paths, u.Path)
		}
	}
	for i, path := range paths {
		rel, err := filepath.Rel(p.Repo.Root(), path)
		if err != nil {
			return fmt.Errorf("staging %s: %w", path, err)
		}
		paths[i] = rel
	}

	id, err := p.Repo.Commit(paths, commitMessage(pl.Decisions))
	if err != nil {
		return err
	}
	report.Commit = id
	p.Logger.Infof("Created release commit %s", id.String()[:7])

	if p.Config.Tag && !opts.NoTag {
		for _, d := range pl.Decisions {
			tag, err := p.TagName(d.Name, d.Next.String())
			if err != nil {
				return err
			}
			if err := p.Repo.CreateTag(tag, id, fmt.Sprintf("%s v%s", d.Name, d.Next)); err != nil {
				return err
			}
			report.Tags = append(report.Tags, tag)
		}
	}

	if opts.Push || p.Config.Push {
		if err := p.Repo.Push(ctx, p.Config.Remote, report.Tags); err != nil {
			return err
		}
		p.Logger.Infof("Pushed release commit and %d tags to %s", len(report.Tags), p.Config.Remote)
	}
	return nil
}

func (p *Pipeline) targets(pl *Plan) []publish.Target {
	targets := make([]publish.Target, 0, len(pl.Order))
	for _, name := range pl.Order {
		d, _ := pl.Decision(name)
		pkg, _ := p.Workspace.Package(name)
		targets = append(targets, publish.Target{
			Name:    name,
			Version: d.Next,
			Path:    filepath.Join(p.Workspace.Root, filepath.FromSlash(pkg.Dir)),
		})
	}
	return targets
}

func (p *Pipeline) publish(ctx context.Context, pl *Plan) ([]string, error) {
	ex := &publish.Executor{
		Publisher:     p.Publisher,
		Index:         p.Index,
		PublishPolicy: p.Config.PublishPolicy(),
		IndexPolicy:   p.Config.IndexPolicy(),
		Logger:        p.Logger,
		Out:           p.Out,
		Caps:          p.Caps,
	}
	return ex.Run(ctx, p.targets(pl))
}

// renderer is implemented by publishers that can show their command.
type renderer interface {
	Render(t publish.Target) (string, error)
}

func (p *Pipeline) dryRunCommands(pl *Plan, opts Options) []string {
	if opts.NoPublish {
		return nil
	}
	r, ok := p.Publisher.(renderer)
	if !ok {
		return nil
	}
	var out []string
	for _, t := range p.targets(pl) {
		cmd, err := r.Render(t)
		if err != nil {
			p.Logger.Warnf("%v", err)
			continue
		}
		out = append(out, cmd)
	}
	return out
}
