package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/smartrelease/internal/output"
)

var planFlags selectionFlags

var planCmd = &cobra.Command{
	Use:   "plan [package...]",
	Short: "Show the version bumps and publish order",
	Long: `Show what a release would do to versions without previewing files.

The plan lists every package that would be released with its current and
next version, the bump level and the reason, followed by the order in which
publishable packages would be published.

With --verbose the meaningful commits of each released package are listed.`,
	Example: `  # Plan the release of the package in the current directory
  smart-release plan

  # Plan a breaking release of core
  smart-release plan core --breaking`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := planFlags.options(args)
		if err != nil {
			return err
		}
		s, err := newSession(globals, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		opts.WorkDir = s.workDir

		pl, err := s.pipeline.Plan(cmd.Context(), opts)
		if err != nil {
			return s.explain(err)
		}
		output.RenderPlan(s.out, s.palette, pl.Decisions, pl.Order)

		if !globals.verbose {
			return nil
		}
		for _, d := range pl.Decisions {
			st := pl.Packages[d.Name]
			fmt.Fprintf(s.out, "\n%s since %s:\n", d.Name, orFirstCommit(st.LastTag))
			for _, c := range st.Commits {
				fmt.Fprintf(s.out, "  %s %s\n", c.ID.String()[:7], c.Title)
			}
		}
		return nil
	},
}

func init() {
	planCmd.GroupID = GroupRelease
	addSelectionFlags(planCmd, &planFlags)
	rootCmd.AddCommand(planCmd)
}

func orFirstCommit(tag string) string {
	if tag == "" {
		return "the first commit"
	}
	return tag
}
