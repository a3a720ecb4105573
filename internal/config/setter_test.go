package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const projectConfig = `# Release settings for the monorepo
tag_format: "v{{.Version}}" # one tag stream for every package

publish:
  # uploads a single package directory
  command: "make -C {{.Path}} publish"
`

func TestValidateValue(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		key     string
		value   string
		want    interface{}
		wantErr string
	}{
		"duration is normalized": {key: "publish.initial_backoff", value: "90s", want: "1m30s"},
		"sub second duration":    {key: "index.initial_backoff", value: "250ms", want: "250ms"},
		"duration without unit":  {key: "index.max_backoff", value: "15", wantErr: "invalid duration"},
		"index kind":             {key: "index.kind", value: "dir", want: "dir"},
		"index kind is an enum":  {key: "index.kind", value: "ftp", wantErr: "valid options: http, dir, none"},
		"index kind is exact":    {key: "index.kind", value: "HTTP", wantErr: "invalid value"},
		"push accepts any case":  {key: "push", value: "TRUE", want: true},
		"push rejects yes":       {key: "push", value: "yes", wantErr: "invalid boolean"},
		"parallelism":            {key: "parallelism", value: "8", want: 8},
		"parallelism in words":   {key: "parallelism", value: "eight", wantErr: "invalid integer"},
		"publish command":        {key: "publish.command", value: "npm publish {{.Path}}", want: "npm publish {{.Path}}"},
		"unknown publish key":    {key: "publish.retries", value: "3", wantErr: "unknown configuration key: publish.retries"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := ValidateValue(tt.key, tt.value)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Parsed)
			assert.Equal(t, tt.value, got.Raw)
		})
	}
}

func TestSetConfigValue_ProjectConfig(t *testing.T) {
	t.Parallel()
	opts, dir := isolated(t)
	path := filepath.Join(dir, ProjectConfigPath())
	writeFile(t, path, projectConfig)

	sets := [][2]string{
		{"publish.attempts", "5"},
		{"publish.max_backoff", "2m"},
		{"index.kind", "dir"},
		{"index.dir", "/srv/index"},
		{"push", "true"},
	}
	for _, kv := range sets {
		require.NoError(t, SetConfigValue(path, kv[0], kv[1]), kv[0])
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "# Release settings for the monorepo")
	assert.Contains(t, text, "# one tag stream for every package")
	assert.Contains(t, text, "# uploads a single package directory")

	cfg, err := LoadWithOptions(opts)
	require.NoError(t, err)
	assert.Equal(t, "v{{.Version}}", cfg.TagFormat)
	assert.Equal(t, "make -C {{.Path}} publish", cfg.Publish.Command)
	assert.Equal(t, 5, cfg.Publish.Attempts)
	assert.Equal(t, 2*time.Minute, cfg.Publish.MaxBackoff)
	assert.Equal(t, 2*time.Second, cfg.Publish.InitialBackoff, "untouched keys keep their default")
	assert.Equal(t, IndexDir, cfg.Index.Kind)
	assert.Equal(t, "/srv/index", cfg.Index.Dir)
	assert.True(t, cfg.Push)
}

func TestSetConfigValue_CreatesNestedKeys(t *testing.T) {
	t.Parallel()
	opts, dir := isolated(t)
	path := filepath.Join(dir, ProjectConfigPath())

	require.NoError(t, SetConfigValue(path, "publish.command", "cargo publish -p {{.Name}}"))
	require.NoError(t, SetConfigValue(path, "publish.initial_backoff", "500ms"))

	var root yaml.Node
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &root))

	command := GetNestedValue(&root, []string{"publish", "command"})
	require.NotNil(t, command)
	assert.Equal(t, "cargo publish -p {{.Name}}", command.Value)
	assert.Nil(t, GetNestedValue(&root, []string{"index"}))

	cfg, err := LoadWithOptions(opts)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Publish.InitialBackoff)
	assert.Equal(t, 3, cfg.Publish.Attempts)
}

func TestSetConfigValue_Rejects(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content string
		key     string
		value   string
		wantErr string
	}{
		"index kind outside the enum": {
			content: projectConfig,
			key:     "index.kind",
			value:   "s3",
			wantErr: "valid options",
		},
		"duration typo": {
			content: projectConfig,
			key:     "publish.max_backoff",
			value:   "2 minutes",
			wantErr: "invalid duration",
		},
		"unknown key": {
			content: projectConfig,
			key:     "index.token",
			value:   "secret",
			wantErr: "unknown configuration key",
		},
		"publish written as a scalar": {
			content: "publish: make publish\n",
			key:     "publish.command",
			value:   "make publish",
			wantErr: "publish is not a mapping",
		},
		"broken yaml": {
			content: "index:\n  kind: [dir\n",
			key:     "index.kind",
			value:   "dir",
			wantErr: "config.yml",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), ProjectConfigPath())
			writeFile(t, path, tt.content)

			err := SetConfigValue(path, tt.key, tt.value)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			data, readErr := os.ReadFile(path)
			require.NoError(t, readErr)
			assert.Equal(t, tt.content, string(data), "file is left untouched")
		})
	}
}

func TestSetNestedValue(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		initial   string
		keyPath   []string
		value     interface{}
		wantValue string
		wantTag   string
		wantErr   bool
	}{
		"replace enum keeps position": {
			initial:   "index:\n  kind: none # no index yet\n  attempts: 10\n",
			keyPath:   []string{"index", "kind"},
			value:     "http",
			wantValue: "http",
			wantTag:   "!!str",
		},
		"add int under existing mapping": {
			initial:   "publish:\n  command: make publish\n",
			keyPath:   []string{"publish", "attempts"},
			value:     5,
			wantValue: "5",
			wantTag:   "!!int",
		},
		"create mapping in empty document": {
			keyPath:   []string{"index", "initial_backoff"},
			value:     "250ms",
			wantValue: "250ms",
			wantTag:   "!!str",
		},
		"scalar in the way": {
			initial: "index: none\n",
			keyPath: []string{"index", "kind"},
			value:   "dir",
			wantErr: true,
		},
		"empty path": {
			initial: "push: false\n",
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var root yaml.Node
			if tt.initial != "" {
				require.NoError(t, yaml.Unmarshal([]byte(tt.initial), &root))
			}

			err := SetNestedValue(&root, tt.keyPath, tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			node := GetNestedValue(&root, tt.keyPath)
			require.NotNil(t, node)
			assert.Equal(t, tt.wantValue, node.Value)
			assert.Equal(t, tt.wantTag, node.Tag)
		})
	}
}

func TestSetNestedValue_KeepsComments(t *testing.T) {
	t.Parallel()

	var root yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("index:\n  kind: none # no index yet\n  attempts: 10\n"), &root))
	require.NoError(t, SetNestedValue(&root, []string{"index", "kind"}, "http"))

	out, err := yaml.Marshal(&root)
	require.NoError(t, err)
	assert.Contains(t, string(out), "kind: http # no index yet")
}

func TestParseKeyPath(t *testing.T) {
	t.Parallel()

	got, err := ParseKeyPath("publish.initial_backoff")
	require.NoError(t, err)
	assert.Equal(t, []string{"publish", "initial_backoff"}, got)

	_, err = ParseKeyPath(" ")
	assert.ErrorIs(t, err, ErrEmptyKeyPath)
}
