// Package cli implements the smart-release command line.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	clierrors "github.com/ariel-frischer/smartrelease/internal/errors"
)

// Command groups shown in help output.
const (
	GroupRelease       = "release"
	GroupConfiguration = "configuration"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	dir        string
	verbose    bool
	noColor    bool
}

var globals globalOptions

var rootCmd = &cobra.Command{
	Use:   "smart-release [package...]",
	Short: "Release the packages of a multi-package repository",
	Long: `Release the packages of a multi-package repository.

smart-release reads the conventional commits of each package since its last
release tag, decides the version bumps, bumps the packages that depend on a
released one, updates changelogs and manifests, commits, tags and publishes
in dependency order.

Nothing is changed without --execute. Without --execute the planned bumps,
changelog previews, tags and publish commands are printed.

Without package arguments the package containing the current directory is
released.`,
	Example: `  # Preview the release of the package in the current directory
  smart-release

  # Release two packages and publish them
  smart-release core cli --execute

  # Force a minor bump and push the release commit and tags
  smart-release core --bump minor --execute --push`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if globals.noColor {
			color.NoColor = true
		}
	},
	RunE: runRelease,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupRelease, Title: "Release Commands:"},
		&cobra.Group{ID: GroupConfiguration, Title: "Configuration Commands:"},
	)

	rootCmd.PersistentFlags().StringVarP(&globals.configPath, "config", "c", "", "Project config file (default: .smart-release/config.yml)")
	rootCmd.PersistentFlags().StringVarP(&globals.dir, "dir", "C", "", "Run as if started in this directory")
	rootCmd.PersistentFlags().BoolVarP(&globals.verbose, "verbose", "v", false, "Print debug output")
	rootCmd.PersistentFlags().BoolVar(&globals.noColor, "no-color", false, "Disable colored output")

	addSelectionFlags(rootCmd, &releaseFlags.selection)
	rootCmd.Flags().BoolVarP(&releaseFlags.execute, "execute", "e", false, "Apply the release instead of previewing it")
	rootCmd.Flags().BoolVar(&releaseFlags.allowDirty, "allow-dirty", false, "Release even if the working tree has uncommitted changes")
	rootCmd.Flags().BoolVar(&releaseFlags.noChangelog, "no-changelog", false, "Do not update changelogs")
	rootCmd.Flags().BoolVar(&releaseFlags.noPublish, "no-publish", false, "Do not publish released packages")
	rootCmd.Flags().BoolVar(&releaseFlags.noTag, "no-tag", false, "Do not create release tags")
	rootCmd.Flags().BoolVar(&releaseFlags.push, "push", false, "Push the release commit and tags")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	return report(rootCmd.ErrOrStderr(), err)
}

// categoryExitCodes maps error categories to exit codes.
var categoryExitCodes = map[clierrors.ErrorCategory]int{
	clierrors.Argument:      ExitInvalidArguments,
	clierrors.Configuration: ExitConfiguration,
	clierrors.Metadata:      ExitConfiguration,
	clierrors.Publish:       ExitPublishFailed,
}

// report prints err and returns the exit code for it.
func report(w io.Writer, err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	clierrors.FprintError(w, err)
	if errors.Is(err, context.DeadlineExceeded) {
		return ExitTimeout
	}
	if cliErr := clierrors.AsCLIError(err); cliErr != nil {
		if code, ok := categoryExitCodes[cliErr.Category]; ok {
			return code
		}
	}
	return ExitCode(err)
}
