package release

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ariel-frischer/smartrelease/internal/changelog"
)

// UnreleasedChangelogs regenerates the Unreleased section of the selected
// packages from the commits since their last release. Versions are left
// alone and packages without commits are left unchanged. With opts.Execute
// the changed files are written.
func (p *Pipeline) UnreleasedChangelogs(ctx context.Context, opts Options) ([]ChangelogUpdate, error) {
	selected, err := p.Select(opts)
	if err != nil {
		return nil, err
	}
	states, err := p.classify(ctx, selected)
	if err != nil {
		return nil, err
	}

	updates := make([]ChangelogUpdate, len(selected))
	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(p.Config.Parallelism)
	for i, name := range selected {
		st := states[name]
		eg.Go(func() error {
			before := ""
			if st.ChangelogExists {
				before = st.Changelog.Markdown()
			}
			if len(st.Commits) == 0 {
				updates[i] = ChangelogUpdate{Package: name, Path: st.ChangelogPath, Before: before, After: before, Log: st.Changelog}
				return nil
			}
			if _, err := st.Changelog.Generate(changelog.GenerateInput{
				Version:      changelog.Unreleased(),
				Commits:      st.Commits,
				HeadingLevel: p.Config.DefaultHeadingLevel,
			}); err != nil {
				return fmt.Errorf("changelog of %s: %w", name, err)
			}
			updates[i] = ChangelogUpdate{
				Package: name,
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

	if !opts.Execute {
		return updates, nil
	}
	for _, u := range updates {
		if !u.Changed() {
			p.Logger.Debugf("%s is up to date", u.Path)
			continue
		}
		if err := u.Log.WriteFile(u.Path); err != nil {
			return nil, err
		}
		p.Logger.Infof("Updated %s", u.Path)
	}
	return updates, nil
}
