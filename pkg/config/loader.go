package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the project-level TOML config file.
const ConfigFileName = "uptodate.toml"

// YAMLConfigFileNames are the accepted project-level YAML config files.
var YAMLConfigFileNames = []string{"uptodate.yaml", "uptodate.yml"}

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".uptodate"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "uptodate"

// Load loads configuration starting from the working directory.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return LoadFrom(wd)
}

// LoadFrom loads configuration from all layers in order of precedence:
//  1. Built-in defaults
//  2. Global user config (~/.config/uptodate/config.toml)
//  3. Project config, searched from dir up to the workspace root
//  4. Environment variables (UPTODATE_*)
//
// CLI flags are applied by the caller, which should then call Validate.
// A missing file is not an error; a malformed one is.
func LoadFrom(dir string) (*Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	cfg := NewConfig()
	cfg.Root = dir

	// Layer 2: Global user config
	if path := GetGlobalConfigPath(); path != "" {
		globalCfg, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Merge(globalCfg)
	}

	// Layer 3: Project config
	projectCfg, source, err := loadProjectConfigFrom(dir)
	if err != nil {
		return nil, err
	}
	if projectCfg != nil {
		cfg.Merge(projectCfg)
		cfg.Source = source
		cfg.Root = projectRoot(source)
	}

	// Layer 4: Environment variables
	if err := applyEnvironmentVariables(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// projectRoot maps a config file to the directory tasks are relative to.
func projectRoot(source string) string {
	dir := filepath.Dir(source)
	if filepath.Base(dir) == ConfigDirName {
		return filepath.Dir(dir)
	}
	return dir
}

// loadProjectConfigFrom looks for project configuration starting from the given directory.
func loadProjectConfigFrom(dir string) (*Config, string, error) {
	current := dir
	for {
		for _, path := range GetProjectConfigPaths(current) {
			cfg, err := loadConfigFile(path)
			if err != nil {
				return nil, "", err
			}
			if cfg != nil {
				return cfg, path, nil
			}
		}

		// Stop at filesystem root or workspace root
		if isWorkspaceRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil, "", nil
}

// isWorkspaceRoot checks if the directory is a VCS or build workspace root.
func isWorkspaceRoot(dir string) bool {
	markers := []string{".git", ".hg", "go.work", "MODULE.bazel", "settings.gradle", "settings.gradle.kts"}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile decodes a TOML or YAML file, chosen by extension. A missing
// file yields nil and no error.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	default:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys in config %s: %v", path, undecoded)
		}
	}

	return &cfg, nil
}

// applyEnvironmentVariables applies UPTODATE_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) error {
	if v := os.Getenv("UPTODATE_STATE_DIR"); v != "" {
		cfg.State.Dir = v
	}
	if v := os.Getenv("UPTODATE_STATE_BACKEND"); v != "" {
		cfg.State.Backend = v
	}

	applyBoolEnv("UPTODATE_CHECK_ALLOW_SNAPSHOT_REUSE", &cfg.Check.AllowSnapshotReuse)
	applyBoolEnv("UPTODATE_CHECK_IGNORE_TIMESTAMPS", &cfg.Check.IgnoreTimestamps)
	applyBoolEnv("UPTODATE_CHECK_IGNORE_REMOVED_INPUTS", &cfg.Check.IgnoreRemovedInputs)
	if v := os.Getenv("UPTODATE_CHECK_HASH"); v != "" {
		cfg.Check.Hash = v
	}
	if v := os.Getenv("UPTODATE_CHECK_MAX_REPORTED"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid UPTODATE_CHECK_MAX_REPORTED %q: %w", v, err)
		}
		cfg.Check.MaxReported = &n
	}
	if v := os.Getenv("UPTODATE_CHECK_EXCLUDE"); v != "" {
		cfg.Check.Exclude = append(cfg.Check.Exclude, splitAndTrim(v)...)
	}

	if v := os.Getenv("UPTODATE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("UPTODATE_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	return nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	if v := os.Getenv(envVar); v != "" {
		v = strings.ToLower(v)
		if v == "true" || v == "1" || v == "yes" {
			t := true
			*target = &t
		} else if v == "false" || v == "0" || v == "no" {
			f := false
			*target = &f
		}
	}
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given
// directory, in lookup order.
func GetProjectConfigPaths(dir string) []string {
	paths := []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
	for _, name := range YAMLConfigFileNames {
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths
}

// tasksFile is the on-disk shape written by EncodeTasks.
type tasksFile struct {
	Tasks []TaskConfig `toml:"tasks" yaml:"tasks"`
}

// EncodeTasks writes tasks as a project config file in the given format
// ("toml" or "yaml").
func EncodeTasks(w io.Writer, format string, tasks []TaskConfig) error {
	doc := tasksFile{Tasks: tasks}
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return enc.Close()
	case "toml", "":
		if err := toml.NewEncoder(w).Encode(doc); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown config format %q", format)
	}
}
