package config

import "time"

// GetDefaultConfigTemplate returns a fully commented config template
// that helps users understand all available options
func GetDefaultConfigTemplate() string {
	return `# smart-release configuration
# Every key can be overridden with SMART_RELEASE_<KEY>, e.g. SMART_RELEASE_INDEX_KIND=dir

workspace_file: workspace.yml         # Workspace description at the repository root
changelog_file: CHANGELOG.md          # Changelog inside each package directory
tag_format: "{{.Name}}-v{{.Version}}" # Release tag template over {Name, Version}

# Repository changes made with --execute
commit: true                          # Commit manifests and changelogs
tag: true                             # Create one annotated tag per released package
push: false                           # Push the commit and tags afterwards
remote: origin                        # Remote used by push

parallelism: 4                        # Packages classified and rendered concurrently
default_heading_level: 2              # Heading level of releases in new changelogs

# Publishing
publish:
  command: ""                         # e.g. "registry-cli upload --name {{.Name}} --version {{.Version}} {{.Path}}"
  attempts: 3                         # Attempts per package on transient failures
  initial_backoff: 2s
  max_backoff: 30s

# Waiting until a published version is resolvable
index:
  kind: none                          # http | dir | none
  url: ""                             # http: template answering 200 once visible
  dir: ""                             # dir: one file per package, one version per line
  attempts: 10
  initial_backoff: 1s
  max_backoff: 15s
`
}

// GetDefaults returns the default configuration values keyed by koanf path
func GetDefaults() map[string]interface{} {
	return map[string]interface{}{
		"workspace_file":          "workspace.yml",
		"changelog_file":          "CHANGELOG.md",
		"tag_format":              "{{.Name}}-v{{.Version}}",
		"commit":                  true,
		"tag":                     true,
		"push":                    false,
		"remote":                  "origin",
		"parallelism":             4,
		"default_heading_level":   2,
		"publish.command":         "",
		"publish.attempts":        3,
		"publish.initial_backoff": 2 * time.Second,
		"publish.max_backoff":     30 * time.Second,
		"index.kind":              IndexNone,
		"index.url":               "",
		"index.dir":               "",
		"index.attempts":          10,
		"index.initial_backoff":   time.Second,
		"index.max_backoff":       15 * time.Second,
	}
}
