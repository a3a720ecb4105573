package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	clierrors "github.com/ariel-frischer/smartrelease/internal/errors"
	"github.com/ariel-frischer/smartrelease/internal/output"
	"github.com/ariel-frischer/smartrelease/internal/release"
)

// releaseOptions are the flags of the root command.
type releaseOptions struct {
	selection   selectionFlags
	execute     bool
	allowDirty  bool
	noChangelog bool
	noPublish   bool
	noTag       bool
	push        bool
}

var releaseFlags releaseOptions

func (o releaseOptions) options(args []string) (release.Options, error) {
	opts, err := o.selection.options(args)
	if err != nil {
		return opts, err
	}
	if o.push && !o.execute {
		return opts, clierrors.InvalidFlagCombination("--push without --execute", "a dry run never pushes")
	}
	opts.Execute = o.execute
	opts.AllowDirty = o.allowDirty
	opts.NoChangelog = o.noChangelog
	opts.NoPublish = o.noPublish
	opts.NoTag = o.noTag
	opts.Push = o.push
	return opts, nil
}

func runRelease(cmd *cobra.Command, args []string) error {
	opts, err := releaseFlags.options(args)
	if err != nil {
		return err
	}
	s, err := newSession(globals, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	opts.WorkDir = s.workDir

	rep, err := s.pipeline.Run(cmd.Context(), opts)
	if rep != nil {
		s.printReport(rep, opts)
	}
	return s.explain(err)
}

// printReport shows the plan and what was, or would be, changed.
func (s *session) printReport(rep *release.Report, opts release.Options) {
	out, p := s.out, s.palette
	output.RenderPlan(out, p, rep.Plan.Decisions, rep.Plan.Order)
	if len(rep.Plan.Decisions) == 0 {
		return
	}
	fmt.Fprintln(out)

	if opts.Execute {
		if len(rep.Tags) > 0 {
			printList(out, "Tagged", rep.Tags)
		}
		if len(rep.Published) > 0 {
			printList(out, "Published", rep.Published)
		}
		return
	}

	for _, u := range rep.Changelogs {
		output.RenderDiff(out, p, s.relPath(u.Path), u.Before, u.After)
	}
	manifests := make([]string, 0, len(rep.Manifests))
	for _, m := range rep.Manifests {
		manifests = append(manifests, s.relPath(m))
	}
	printList(out, "Would update", manifests)
	if len(rep.Tags) > 0 && s.cfg.Tag && !opts.NoTag {
		printList(out, "Would tag", rep.Tags)
	}
	if len(rep.Commands) > 0 {
		printList(out, "Would run", rep.Commands)
	}
	fmt.Fprintln(out, "\nDry run, nothing was changed. Pass --execute to release.")
}

func printList(out io.Writer, title string, items []string) {
	fmt.Fprintf(out, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(out, "  %s\n", item)
	}
}
