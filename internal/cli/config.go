package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ariel-frischer/smartrelease/internal/config"
	clierrors "github.com/ariel-frischer/smartrelease/internal/errors"
	"github.com/ariel-frischer/smartrelease/internal/git"
)

var (
	configUser  bool
	configForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage smart-release configuration",
	Long: `Manage smart-release configuration settings.

Configuration is loaded with the following priority (highest to lowest):
  1. Environment variables (SMART_RELEASE_*, also read from .env)
  2. Project config (.smart-release/config.yml)
  3. User config (~/.config/smart-release/config.yml)
  4. Built-in defaults`,
	Example: `  # Show the effective configuration
  smart-release config show

  # Set a configuration value in the project config
  smart-release config set publish.command "npm publish"

  # Create a commented user config
  smart-release config init --user`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := projectDir(globals)
		if err != nil {
			return err
		}
		cfg, err := config.LoadWithOptions(config.LoadOptions{
			ProjectDir:        dir,
			ProjectConfigPath: globals.configPath,
			WarningWriter:     cmd.ErrOrStderr(),
		})
		if err != nil {
			return clierrors.ConfigParseError(err)
		}
		return writeYAML(cmd.OutOrStdout(), cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configTarget(globals, configUser)
		if err != nil {
			return err
		}
		if err := config.WriteTemplate(path, configForce); err != nil {
			return clierrors.WrapWithMessage(err, clierrors.Configuration,
				"cannot write configuration", "Pass --force to overwrite an existing file")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value, keeping comments",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configTarget(globals, configUser)
		if err != nil {
			return err
		}
		if err := config.SetConfigValue(path, args[0], args[1]); err != nil {
			return clierrors.WrapWithMessage(err, clierrors.Configuration,
				"cannot set "+args[0], "List the known keys with: smart-release config keys")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", args[0], args[1], path)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the configuration keys",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printKeys(cmd.OutOrStdout())
	},
}

func init() {
	configCmd.GroupID = GroupConfiguration
	configCmd.PersistentFlags().BoolVar(&configUser, "user", false, "Use the user config instead of the project config")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd, configSetCmd, configKeysCmd)
	rootCmd.AddCommand(configCmd)
}

// projectDir is the repository root around the working directory, or the
// working directory itself outside a repository.
func projectDir(g globalOptions) (string, error) {
	dir := g.dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = wd
	}
	if repo, err := git.Open(dir, nil); err == nil {
		return repo.Root(), nil
	}
	return filepath.Abs(dir)
}

// configTarget is the config file that init and set write to.
func configTarget(g globalOptions, user bool) (string, error) {
	if user {
		path, err := config.UserConfigPath()
		if err != nil {
			return "", clierrors.WrapWithMessage(err, clierrors.Configuration, "cannot locate the user config directory")
		}
		return path, nil
	}
	if g.configPath != "" {
		return g.configPath, nil
	}
	dir, err := projectDir(g)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, config.ProjectConfigPath()), nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	return enc.Close()
}

func printKeys(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range config.KeyNames() {
		schema := config.KnownKeys[name]
		kind := schema.Type.String()
		if len(schema.AllowedValues) > 0 {
			kind = fmt.Sprintf("%s %v", kind, schema.AllowedValues)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, kind, schema.Description)
	}
	tw.Flush()
}
