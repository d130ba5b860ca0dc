package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albertocavalcante/uptodate/pkg/snapshot"
)

// isolate points the global config at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func loadString(t *testing.T, name, content string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	writeFile(t, path, content)
	cfg, err := loadConfigFile(path)
	require.NoError(t, err)
	return cfg
}

const tomlProject = `
[state]
backend = "sqlite"

[check]
hash = "xxh3"
max_reported = 0
ignore_timestamps = false

[[tasks]]
name = "compile"
command = "go build -o bin/app ./cmd/app"
exclude = ["**/*_test.go"]

  [[tasks.inputs]]
  name = "sources"
  paths = ["cmd", "internal", "go.mod"]

  [[tasks.inputs]]
  name = "assets"
  paths = ["web/**/*.css"]

  [[tasks.outputs]]
  name = "binary"
  paths = ["bin/app"]

[[tasks]]
name = "test"
command = "go test ./..."

  [[tasks.inputs]]
  name = "sources"
  paths = ["."]
`

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ".uptodate", cfg.State.Dir)
	assert.Equal(t, "json", cfg.State.Backend)
	assert.Equal(t, "xxhash", cfg.Check.Hash)

	opts := cfg.CheckerOptions()
	assert.True(t, opts.AllowReuse)
	assert.True(t, opts.IgnoreTimestamps)
	assert.False(t, opts.IgnoreRemovedInputs)
	assert.Equal(t, 3, opts.MaxReported)

	assert.NoError(t, cfg.Validate(), "defaults should validate")
}

func TestMerge(t *testing.T) {
	base := NewConfig()
	falseVal, trueVal := false, true
	zero := 0
	other := &Config{
		State: StateConfig{Backend: "sqlite"},
		Check: CheckConfig{
			IgnoreTimestamps:    &falseVal,
			IgnoreRemovedInputs: &trueVal,
			MaxReported:         &zero,
			Exclude:             []string{"**/*.tmp"},
		},
		Tasks: []TaskConfig{{Name: "lint"}},
	}

	base.Merge(other)

	assert.Equal(t, "sqlite", base.State.Backend)
	assert.Equal(t, ".uptodate", base.State.Dir, "unset fields keep their value")

	opts := base.CheckerOptions()
	assert.False(t, opts.IgnoreTimestamps)
	assert.True(t, opts.IgnoreRemovedInputs)
	assert.Zero(t, opts.MaxReported, "an explicit 0 overrides the default")
	assert.True(t, opts.AllowReuse, "allow_snapshot_reuse keeps its default")
	assert.Equal(t, []string{"**/*.tmp"}, base.Check.Exclude)
	assert.Equal(t, []TaskConfig{{Name: "lint"}}, base.Tasks, "tasks are replaced")

	assert.NotPanics(t, func() { base.Merge(nil) })
}

func TestLoadConfigFile(t *testing.T) {
	cfg := loadString(t, "uptodate.toml", tomlProject)

	assert.Equal(t, "sqlite", cfg.State.Backend)
	require.NotNil(t, cfg.Check.MaxReported)
	assert.Zero(t, *cfg.Check.MaxReported)
	require.Len(t, cfg.Tasks, 2)

	compile := cfg.Tasks[0]
	assert.Equal(t, "compile", compile.Name)
	require.Len(t, compile.Inputs, 2)
	assert.Len(t, compile.Outputs, 1)
	assert.Equal(t, "sources", compile.Inputs[0].Name, "declaration order is kept")
	assert.Equal(t, "assets", compile.Inputs[1].Name)
}

func TestLoadConfigFile_YAML(t *testing.T) {
	cfg := loadString(t, "uptodate.yaml", `
state:
  dir: build/state
check:
  allow_snapshot_reuse: false
  ignore_removed_inputs: true
tasks:
  - name: bundle
    command: npm run build
    inputs:
      - name: sources
        paths: [src, package.json]
    outputs:
      - name: dist
        paths: [dist]
`)

	assert.Equal(t, "build/state", cfg.State.Dir)
	require.NotNil(t, cfg.Check.AllowSnapshotReuse)
	assert.False(t, *cfg.Check.AllowSnapshotReuse)
	require.NotNil(t, cfg.Check.IgnoreRemovedInputs)
	assert.True(t, *cfg.Check.IgnoreRemovedInputs)
	require.Len(t, cfg.Tasks, 1)
	assert.Equal(t, []string{"dist"}, cfg.Tasks[0].Outputs[0].Paths)
}

func TestLoadConfigFile_Errors(t *testing.T) {
	dir := t.TempDir()

	cfg, err := loadConfigFile(filepath.Join(dir, "missing.toml"))
	assert.NoError(t, err, "a missing file is not an error")
	assert.Nil(t, cfg)

	unknown := filepath.Join(dir, "unknown.toml")
	writeFile(t, unknown, "[languages]\nenabled = [\"go\"]\n")
	_, err = loadConfigFile(unknown)
	assert.ErrorContains(t, err, "unknown keys")

	broken := filepath.Join(dir, "broken.yaml")
	writeFile(t, broken, "state: [unterminated\n")
	_, err = loadConfigFile(broken)
	assert.Error(t, err, "malformed YAML is rejected")
}

func TestApplyEnvironmentVariables(t *testing.T) {
	cfg := NewConfig()

	t.Setenv("UPTODATE_STATE_BACKEND", "sqlite")
	t.Setenv("UPTODATE_CHECK_IGNORE_TIMESTAMPS", "no")
	t.Setenv("UPTODATE_CHECK_IGNORE_REMOVED_INPUTS", "true")
	t.Setenv("UPTODATE_CHECK_MAX_REPORTED", "10")
	t.Setenv("UPTODATE_CHECK_EXCLUDE", "**/*.log, **/tmp/**")
	t.Setenv("UPTODATE_LOG_FORMAT", "json")

	require.NoError(t, applyEnvironmentVariables(cfg))

	assert.Equal(t, "sqlite", cfg.State.Backend)
	opts := cfg.CheckerOptions()
	assert.False(t, opts.IgnoreTimestamps)
	assert.True(t, opts.IgnoreRemovedInputs)
	assert.Equal(t, 10, opts.MaxReported)
	assert.Equal(t, []string{"**/*.log", "**/tmp/**"}, cfg.Check.Exclude)
	assert.Equal(t, "json", cfg.Log.Format)

	t.Setenv("UPTODATE_CHECK_MAX_REPORTED", "lots")
	assert.Error(t, applyEnvironmentVariables(cfg), "non-numeric max_reported fails")
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"**/*.log,**/*.tmp", []string{"**/*.log", "**/*.tmp"}},
		{" **/*.log , **/*.tmp ", []string{"**/*.log", "**/*.tmp"}},
		{"build", []string{"build"}},
		{"", []string{}},
		{" , , ", []string{}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, splitAndTrim(tt.input), "input %q", tt.input)
	}
}

func TestProjectConfigSearch(t *testing.T) {
	isolate(t)
	projectRoot := filepath.Join(t.TempDir(), "project")
	subdir := filepath.Join(projectRoot, "pkg", "sub")
	require.NoError(t, os.MkdirAll(subdir, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(projectRoot, ".git"), 0o755))
	writeFile(t, filepath.Join(projectRoot, ConfigFileName), tomlProject)

	cfg, err := LoadFrom(subdir)
	require.NoError(t, err)

	assert.Equal(t, projectRoot, cfg.Root)
	assert.Equal(t, filepath.Join(projectRoot, ConfigFileName), cfg.Source)
	assert.Len(t, cfg.Tasks, 2)
	assert.Equal(t, filepath.Join(projectRoot, ".uptodate"), cfg.StateDir(), "state dir resolves against root")
	assert.NoError(t, cfg.Validate())
}

func TestProjectConfigSearch_ConfigDir(t *testing.T) {
	isolate(t)
	projectRoot := t.TempDir()
	writeFile(t, filepath.Join(projectRoot, ConfigDirName, "config.toml"), "[state]\nbackend = \"sqlite\"\n")
	writeFile(t, filepath.Join(projectRoot, ConfigFileName), "[state]\nbackend = \"json\"\n")

	cfg, err := LoadFrom(projectRoot)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.State.Backend, ".uptodate/config.toml wins")
	assert.Equal(t, projectRoot, cfg.Root)
}

func TestGlobalConfigLayer(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".config", GlobalConfigDir, "config.toml"), "[check]\nhash = \"xxh3\"\n[log]\nformat = \"json\"\n")

	projectRoot := t.TempDir()
	writeFile(t, filepath.Join(projectRoot, ConfigFileName), "[log]\nformat = \"text\"\n")

	cfg, err := LoadFrom(projectRoot)
	require.NoError(t, err)
	assert.Equal(t, "xxh3", cfg.Check.Hash, "global settings apply")
	assert.Equal(t, "text", cfg.Log.Format, "project config overrides global")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad backend", func(c *Config) { c.State.Backend = "redis" }, "State.Backend"},
		{"bad hash", func(c *Config) { c.Check.Hash = "md5" }, "Check.Hash"},
		{"empty state dir", func(c *Config) { c.State.Dir = "" }, "State.Dir"},
		{"negative max reported", func(c *Config) { n := -1; c.Check.MaxReported = &n }, "Check.MaxReported"},
		{"bad exclude", func(c *Config) { c.Check.Exclude = []string{"[unclosed"} }, "globpattern"},
		{"duplicate task", func(c *Config) {
			c.Tasks = []TaskConfig{{Name: "build"}, {Name: "build"}}
		}, "Tasks"},
		{"unnamed task", func(c *Config) { c.Tasks = []TaskConfig{{Command: "make"}} }, "Name"},
		{"duplicate property", func(c *Config) {
			c.Tasks = []TaskConfig{{Name: "build", Inputs: []PropertyConfig{
				{Name: "src", Paths: []string{"a"}},
				{Name: "src", Paths: []string{"b"}},
			}}}
		}, "Inputs"},
		{"property without paths", func(c *Config) {
			c.Tasks = []TaskConfig{{Name: "build", Outputs: []PropertyConfig{{Name: "bin"}}}}
		}, "Paths"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestTaskLookupAndConversion(t *testing.T) {
	cfg := loadString(t, "uptodate.toml", tomlProject)

	assert.Equal(t, []string{"compile", "test"}, cfg.TaskNames())

	_, err := cfg.Task("deploy")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	tc, err := cfg.Task("compile")
	require.NoError(t, err)
	task := tc.Task()
	assert.Equal(t, "compile", task.Name)
	assert.Equal(t, "go build -o bin/app ./cmd/app", task.Command)
	require.Len(t, task.Inputs, 2)
	assert.Equal(t, "sources", task.Inputs[0].Name)
	assert.Equal(t, []string{"**/*_test.go"}, task.Inputs[0].Files.Excludes, "task excludes apply to properties")
	assert.Equal(t, []string{"bin/app"}, task.Outputs[0].Files.Paths)
}

func TestWorkspaceRootDetection(t *testing.T) {
	for _, marker := range []string{".git", ".hg"} {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, marker), 0o755))
		assert.True(t, isWorkspaceRoot(dir), "directory with %s", marker)
	}

	for _, marker := range []string{"go.work", "MODULE.bazel", "settings.gradle.kts"} {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, marker), "")
		assert.True(t, isWorkspaceRoot(dir), "directory with %s", marker)
	}

	assert.False(t, isWorkspaceRoot(t.TempDir()), "an empty directory is not a workspace root")
}

func TestSnapshotConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.Root = "/work/project"
	cfg.Check.Exclude = []string{"**/*.tmp"}
	cfg.Check.Hash = "xxh3"

	sc, err := cfg.SnapshotConfig()
	require.NoError(t, err)
	assert.Equal(t, "/work/project", sc.Root)
	assert.Equal(t, snapshot.XXH3, sc.Algorithm)
	assert.Equal(t, []string{"**/*.tmp", ".uptodate", ".uptodate/**"}, sc.Excludes)

	// A state directory outside the project adds no exclude.
	cfg.State.Dir = "/var/cache/uptodate"
	sc, err = cfg.SnapshotConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"**/*.tmp"}, sc.Excludes)

	// Settings that skipped Validate still cannot select an unknown hash.
	cfg.Check.Hash = "sha1"
	_, err = cfg.SnapshotConfig()
	assert.ErrorContains(t, err, "unknown hash algorithm")
}

func TestEncodeTasksRoundTrip(t *testing.T) {
	tasks := []TaskConfig{
		{
			Name:    "compile",
			Command: "make",
			Inputs: []PropertyConfig{
				{Name: "sources", Paths: []string{"src"}},
				{Name: "headers", Paths: []string{"include/**/*.h"}},
			},
			Outputs: []PropertyConfig{{Name: "binary", Paths: []string{"out"}}},
		},
		{Name: "check", Inputs: []PropertyConfig{{Name: "sources", Paths: []string{"src"}}}},
	}

	for _, format := range []string{"toml", "yaml"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, EncodeTasks(&buf, format, tasks))
			assert.NotContains(t, buf.String(), "exclude", "empty fields are omitted")

			cfg := loadString(t, "uptodate."+format, buf.String())
			require.Len(t, cfg.Tasks, 2)
			got := cfg.Tasks[0]
			assert.Equal(t, "compile", got.Name)
			assert.Equal(t, "make", got.Command)
			require.Len(t, got.Inputs, 2)
			assert.Equal(t, "headers", got.Inputs[1].Name, "input order is preserved")
		})
	}
}

func TestEncodeTasksUnknownFormat(t *testing.T) {
	assert.Error(t, EncodeTasks(&bytes.Buffer{}, "ini", nil))
}
