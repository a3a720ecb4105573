// smart-release - Automated multi-package release management
// Author: Ariel Frischer
// Source: https://github.com/ariel-frischer/smartrelease

// Package config provides hierarchical configuration management for smart-release using koanf.
// Configuration is loaded with priority: environment variables > project config (.smart-release/config.yml)
// > user config (~/.config/smart-release/config.yml) > defaults. A .env file in the project directory
// is loaded into the process environment first, so registry credentials and SMART_RELEASE_* overrides
// can live there.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ariel-frischer/smartrelease/internal/retry"
)

// EnvPrefix is the prefix of environment variables that override configuration keys.
const EnvPrefix = "SMART_RELEASE_"

// Index kinds understood by the publisher.
const (
	IndexHTTP = "http"
	IndexDir  = "dir"
	IndexNone = "none"
)

// Configuration represents the smart-release configuration
type Configuration struct {
	// WorkspaceFile is the workspace description relative to the project root.
	WorkspaceFile string `koanf:"workspace_file" yaml:"workspace_file" validate:"required"`
	// ChangelogFile is the changelog file name inside each package directory.
	ChangelogFile string `koanf:"changelog_file" yaml:"changelog_file" validate:"required"`
	// TagFormat is a text/template over {Name, Version} naming release tags.
	// Example: "{{.Name}}-v{{.Version}}"
	TagFormat string `koanf:"tag_format" yaml:"tag_format" validate:"required"`

	Commit bool   `koanf:"commit" yaml:"commit"`
	Tag    bool   `koanf:"tag" yaml:"tag"`
	Push   bool   `koanf:"push" yaml:"push"`
	Remote string `koanf:"remote" yaml:"remote" validate:"required_if=Push true"`

	// Parallelism bounds per-package classification and changelog generation.
	Parallelism int `koanf:"parallelism" yaml:"parallelism" validate:"min=1"`
	// DefaultHeadingLevel is used for the first release of a new changelog.
	DefaultHeadingLevel int `koanf:"default_heading_level" yaml:"default_heading_level" validate:"min=1,max=6"`

	Publish PublishConfig `koanf:"publish" yaml:"publish"`
	Index   IndexConfig   `koanf:"index" yaml:"index"`
}

// PublishConfig configures the publish command and its retry budget.
type PublishConfig struct {
	// Command is a text/template over {Name, Version, Path} run through sh -c.
	// Can be set via SMART_RELEASE_PUBLISH_COMMAND env var.
	Command        string        `koanf:"command" yaml:"command"`
	Attempts       int           `koanf:"attempts" yaml:"attempts" validate:"min=1"`
	InitialBackoff time.Duration `koanf:"initial_backoff" yaml:"initial_backoff" validate:"min=0s"`
	MaxBackoff     time.Duration `koanf:"max_backoff" yaml:"max_backoff" validate:"min=0s"`
}

// IndexConfig configures how published versions are checked for visibility.
type IndexConfig struct {
	// Kind is one of http, dir or none.
	Kind string `koanf:"kind" yaml:"kind" validate:"oneof=http dir none"`
	// URL is a text/template over {Name, Version} answering 200 once visible.
	URL string `koanf:"url" yaml:"url" validate:"required_if=Kind http"`
	// Dir holds one file per package listing published versions.
	Dir            string        `koanf:"dir" yaml:"dir" validate:"required_if=Kind dir"`
	Attempts       int           `koanf:"attempts" yaml:"attempts" validate:"min=0,required_unless=Kind none"`
	InitialBackoff time.Duration `koanf:"initial_backoff" yaml:"initial_backoff" validate:"min=0s"`
	MaxBackoff     time.Duration `koanf:"max_backoff" yaml:"max_backoff" validate:"min=0s"`
}

// PublishPolicy is the retry policy for transient publish failures.
func (c *Configuration) PublishPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    c.Publish.Attempts,
		InitialBackoff: c.Publish.InitialBackoff,
		MaxBackoff:     c.Publish.MaxBackoff,
		Multiplier:     2,
	}
}

// IndexPolicy is the polling policy of the registry index wait.
func (c *Configuration) IndexPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    c.Index.Attempts,
		InitialBackoff: c.Index.InitialBackoff,
		MaxBackoff:     c.Index.MaxBackoff,
		Multiplier:     1.5,
	}
}

// LoadOptions configures how configuration is loaded
type LoadOptions struct {
	// ProjectDir is the directory holding .smart-release/ and .env (default: current directory)
	ProjectDir string
	// ProjectConfigPath overrides the project config path (default: .smart-release/config.yml)
	ProjectConfigPath string
	// UserConfigPath overrides the user config path (default: XDG config dir)
	UserConfigPath string
	// SkipDotEnv disables loading <ProjectDir>/.env
	SkipDotEnv bool
	// WarningWriter receives deprecation warnings (default: os.Stderr)
	WarningWriter io.Writer
	// SkipWarnings suppresses deprecation warnings
	SkipWarnings bool
}

// Load loads configuration from user, project, and environment sources.
// Priority: Environment variables > Project config > User config > Defaults
func Load(projectConfigPath string) (*Configuration, error) {
	return LoadWithOptions(LoadOptions{ProjectConfigPath: projectConfigPath})
}

// LoadWithOptions loads configuration with custom options
func LoadWithOptions(opts LoadOptions) (*Configuration, error) {
	k := koanf.New(".")
	warningWriter := getWarningWriter(opts.WarningWriter)

	if !opts.SkipDotEnv {
		if err := loadDotEnv(opts.ProjectDir); err != nil {
			return nil, err
		}
	}

	loadDefaults(k)

	if err := loadUserConfig(k, opts.UserConfigPath); err != nil {
		return nil, err
	}

	if err := loadProjectConfig(k, opts, warningWriter); err != nil {
		return nil, err
	}

	if err := loadEnvironmentConfig(k); err != nil {
		return nil, err
	}

	return finalizeConfig(k)
}

// getWarningWriter returns the warning writer or defaults to stderr
func getWarningWriter(w io.Writer) io.Writer {
	if w == nil {
		return os.Stderr
	}
	return w
}

// loadDotEnv exports <dir>/.env into the process environment.
// Variables already set in the environment win.
func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// loadDefaults applies default configuration values
func loadDefaults(k *koanf.Koanf) {
	for key, value := range GetDefaults() {
		k.Set(key, value)
	}
}

// loadUserConfig loads the user-level YAML config if present.
func loadUserConfig(k *koanf.Koanf, customPath string) error {
	path := customPath
	if path == "" {
		path, _ = UserConfigPath()
	}
	if !fileExists(path) {
		return nil
	}
	if err := loadYAMLConfig(k, path, "user"); err != nil {
		return fmt.Errorf("loading user YAML config: %w", err)
	}
	return nil
}

// loadProjectConfig loads project-level config (YAML preferred, legacy JSON supported).
// Warns if both exist (YAML used, JSON ignored) or if only legacy JSON exists.
func loadProjectConfig(k *koanf.Koanf, opts LoadOptions, warningWriter io.Writer) error {
	projectYAMLPath := filepath.Join(opts.ProjectDir, ProjectConfigPath())
	if opts.ProjectConfigPath != "" {
		projectYAMLPath = opts.ProjectConfigPath
	}
	legacyProjectPath := filepath.Join(opts.ProjectDir, LegacyProjectConfigPath())

	projectYAMLExists := fileExists(projectYAMLPath)
	legacyProjectExists := fileExists(legacyProjectPath)

	if projectYAMLExists {
		if err := loadYAMLConfig(k, projectYAMLPath, "project"); err != nil {
			return fmt.Errorf("loading project YAML config: %w", err)
		}
		if legacyProjectExists && !opts.SkipWarnings {
			fmt.Fprintf(warningWriter, "Warning: Legacy JSON config found at %s (ignored, using %s)\n\n", legacyProjectPath, projectYAMLPath)
		}
	} else if legacyProjectExists {
		if err := loadLegacyJSONConfig(k, legacyProjectPath, warningWriter, opts.SkipWarnings); err != nil {
			return fmt.Errorf("loading legacy project JSON config: %w", err)
		}
	}
	return nil
}

// loadYAMLConfig validates and loads a YAML config file
func loadYAMLConfig(k *koanf.Koanf, path, configType string) error {
	if err := ValidateYAMLSyntax(path); err != nil {
		return fmt.Errorf("validating YAML syntax for %s config: %w", configType, err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load %s config %s: %w", configType, path, err)
	}
	return nil
}

// loadLegacyJSONConfig loads legacy JSON and warns about the format
func loadLegacyJSONConfig(k *koanf.Koanf, path string, warningWriter io.Writer, skipWarnings bool) error {
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return fmt.Errorf("failed to load legacy project config %s: %w", path, err)
	}
	if !skipWarnings {
		fmt.Fprintf(warningWriter, "Warning: Using deprecated JSON config at %s\n", path)
		fmt.Fprintf(warningWriter, "  Move the settings to %s.\n\n", ProjectConfigPath())
	}
	return nil
}

// loadEnvironmentConfig loads environment variable overrides
func loadEnvironmentConfig(k *koanf.Koanf) error {
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return fmt.Errorf("failed to load environment config: %w", err)
	}
	return nil
}

// finalizeConfig unmarshals, validates, and applies final transformations
func finalizeConfig(k *koanf.Koanf) (*Configuration, error) {
	var cfg Configuration
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Index.Kind = strings.ToLower(strings.TrimSpace(cfg.Index.Kind))
	cfg.Index.Dir = expandHomePath(cfg.Index.Dir)

	if err := ValidateConfigValues(&cfg, "config"); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// fileExists returns true if the file exists and is readable
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// sections are the nested config blocks reachable from the environment.
var sections = []string{"publish", "index"}

// envTransform converts environment variable names to config keys.
// Example: SMART_RELEASE_INDEX_INITIAL_BACKOFF -> index.initial_backoff
func envTransform(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// expandHomePath expands ~ to the user's home directory
func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
