package errors

import (
	"fmt"
	"strings"
)

// Common error messages for the smart-release CLI.
// These templates ensure consistent, actionable error messages.

// UnknownPackage creates an error for a package name missing from the workspace.
func UnknownPackage(name string, known []string) *CLIError {
	return NewArgumentErrorWithUsage(
		fmt.Sprintf("package %q is not a workspace member", name),
		"smart-release [package...]",
		"Known packages: "+strings.Join(known, ", "),
		"Run without arguments inside a package directory to release that package",
	)
}

// NoPackageSelected creates an error when no package was named and none contains the working directory.
func NoPackageSelected(dir string) *CLIError {
	return NewArgumentErrorWithUsage(
		fmt.Sprintf("no package given and %s is not inside a workspace package", dir),
		"smart-release [package...]",
		"Name the packages to release",
		"Or run the command from a package directory",
	)
}

// InvalidBumpLevel creates an error for an unparseable --bump value.
func InvalidBumpLevel(value string) *CLIError {
	return NewArgumentErrorWithUsage(
		fmt.Sprintf("invalid bump level: %q", value),
		"smart-release --bump major|minor|patch [package...]",
	)
}

// InvalidFlagCombination creates an error for incompatible flag combinations.
func InvalidFlagCombination(flags string, reason string) *CLIError {
	return NewArgumentError(
		fmt.Sprintf("invalid flag combination: %s", flags),
		reason,
		"Use 'smart-release <command> --help' to see valid options",
	)
}

// ConfigParseError creates an error for an invalid config file.
func ConfigParseError(err error) *CLIError {
	return WrapWithMessage(err, Configuration,
		"failed to load configuration",
		"Check .smart-release/config.yml for syntax errors",
		"Print the effective configuration with: smart-release config show",
		"Recreate a commented default with: smart-release config init --force",
	)
}

// WorkspaceMetadata creates an error for unreadable workspace or package manifests.
func WorkspaceMetadata(err error) *CLIError {
	return WrapWithMessage(err, Metadata,
		"cannot read workspace metadata",
		"Check workspace.yml and the package.yml of each member",
		"Each package.yml needs at least a name and a semantic version",
	)
}

// GitNotRepository creates an error when the directory is not inside a git repository.
func GitNotRepository(err error) *CLIError {
	return WrapWithMessage(err, Repository,
		"not a git repository",
		"Run smart-release from inside the repository that holds the workspace",
		"Initialize one with: git init",
	)
}

// DirtyWorkingTree creates an error when uncommitted changes would end up in the release commit.
func DirtyWorkingTree() *CLIError {
	return &CLIError{
		Category: Repository,
		Message:  "working tree has uncommitted changes",
		Remediation: []string{
			"Commit or stash your changes first",
			"Or pass --allow-dirty to release anyway",
		},
	}
}

// DependencyCycle creates an error when the packages to publish depend on each other in a cycle.
func DependencyCycle(err error, path []string) *CLIError {
	return WrapWithMessage(err, Planning,
		"cannot order packages for publishing",
		"Break the cycle: "+strings.Join(path, " -> "),
	)
}

// PublishFailed creates an error for a release that stopped at a package.
func PublishFailed(err error, published, remaining []string) *CLIError {
	steps := []string{}
	if len(published) > 0 {
		steps = append(steps, "Already published: "+strings.Join(published, ", "))
	}
	if len(remaining) > 0 {
		steps = append(steps, "Not attempted: "+strings.Join(remaining, ", "))
	}
	steps = append(steps, "Fix the failure and run smart-release again for the remaining packages")
	return WrapWithMessage(err, Publish, "publishing stopped", steps...)
}

// MissingPublishCommand creates an error when publishing is requested without a command.
func MissingPublishCommand() *CLIError {
	return NewConfigError(
		"publish.command is not configured",
		"Set it with: smart-release config set publish.command \"<command>\"",
		"Or skip publishing with --no-publish",
	)
}
