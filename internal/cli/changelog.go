package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/smartrelease/internal/output"
	"github.com/ariel-frischer/smartrelease/internal/release"
)

var changelogExecute bool

var changelogCmd = &cobra.Command{
	Use:   "changelog [package...]",
	Short: "Update the Unreleased section of changelogs",
	Long: `Update the Unreleased section of package changelogs from the commits
since each package's last release.

Versions, manifests and tags are not touched. Hand-written text in the
changelog is kept; generated sections are replaced. Without --execute the
changes are shown as a diff.`,
	Example: `  # Preview the changelog of the package in the current directory
  smart-release changelog

  # Write the changelogs of two packages
  smart-release changelog core cli --execute`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(globals, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		opts := release.Options{Packages: args, WorkDir: s.workDir, Execute: changelogExecute}

		updates, err := s.pipeline.UnreleasedChangelogs(cmd.Context(), opts)
		if err != nil {
			return s.explain(err)
		}

		changed := 0
		for _, u := range updates {
			if !u.Changed() {
				continue
			}
			changed++
			if !changelogExecute {
				output.RenderDiff(s.out, s.palette, s.relPath(u.Path), u.Before, u.After)
			}
		}
		switch {
		case changed == 0:
			fmt.Fprintln(s.out, "Changelogs are up to date.")
		case !changelogExecute:
			fmt.Fprintln(s.out, "Dry run, nothing was changed. Pass --execute to write the changelogs.")
		}
		return nil
	},
}

func init() {
	changelogCmd.GroupID = GroupRelease
	changelogCmd.Flags().BoolVarP(&changelogExecute, "execute", "e", false, "Write the changelogs instead of previewing them")
	rootCmd.AddCommand(changelogCmd)
}
