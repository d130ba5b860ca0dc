// Package config provides configuration management for uptodate.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/uptodate/config.toml)
//  3. Project config (.uptodate/config.toml, uptodate.toml or uptodate.yaml)
//  4. Environment variables (UPTODATE_*)
//  5. CLI flags (highest priority)
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/albertocavalcante/uptodate/pkg/snapshot"
	"github.com/albertocavalcante/uptodate/pkg/taskstate"
	"github.com/albertocavalcante/uptodate/pkg/uptodate"
)

// ErrTaskNotFound is returned when a task name is not configured.
var ErrTaskNotFound = errors.New("task not found")

// Config is the main configuration struct for uptodate.
type Config struct {
	// State configures where execution history is kept.
	State StateConfig `toml:"state" yaml:"state"`

	// Check configures up-to-date checking.
	Check CheckConfig `toml:"check" yaml:"check"`

	// Log configures log output.
	Log LogConfig `toml:"log" yaml:"log"`

	// Tasks declares the tasks and their file properties.
	Tasks []TaskConfig `toml:"tasks" yaml:"tasks" validate:"unique=Name,dive"`

	// Root is the directory the project config was found in. Relative task
	// paths and the state directory resolve against it.
	Root string `toml:"-" yaml:"-"`

	// Source is the project config file that was loaded, if any.
	Source string `toml:"-" yaml:"-"`
}

// StateConfig holds history storage settings.
type StateConfig struct {
	// Dir is the state directory, relative to Root unless absolute.
	Dir string `toml:"dir" yaml:"dir" validate:"required"`

	// Backend is the history store ("json" or "sqlite").
	Backend string `toml:"backend" yaml:"backend" validate:"oneof=json sqlite"`
}

// CheckConfig holds change detection settings.
type CheckConfig struct {
	// AllowSnapshotReuse lets a process reuse snapshots it already took.
	AllowSnapshotReuse *bool `toml:"allow_snapshot_reuse" yaml:"allow_snapshot_reuse"`

	// IgnoreTimestamps compares files by content hash only.
	IgnoreTimestamps *bool `toml:"ignore_timestamps" yaml:"ignore_timestamps"`

	// IgnoreRemovedInputs keeps deleted input files from making a task stale.
	IgnoreRemovedInputs *bool `toml:"ignore_removed_inputs" yaml:"ignore_removed_inputs"`

	// Hash is the content hash algorithm ("xxhash" or "xxh3").
	Hash string `toml:"hash" yaml:"hash" validate:"hashalgo"`

	// MaxReported caps the changes reported per task; 0 is unlimited.
	MaxReported *int `toml:"max_reported" yaml:"max_reported" validate:"omitnil,min=0"`

	// Concurrency bounds parallel file hashing; 0 uses GOMAXPROCS.
	Concurrency int `toml:"concurrency" yaml:"concurrency" validate:"min=0"`

	// Exclude patterns apply to every task.
	Exclude []string `toml:"exclude" yaml:"exclude" validate:"dive,globpattern"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Format is "text" or "json".
	Format string `toml:"format" yaml:"format" validate:"oneof=text json"`

	// File receives a copy of the log, rotated by size.
	File string `toml:"file" yaml:"file"`

	MaxSizeMB  int `toml:"max_size_mb" yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int `toml:"max_backups" yaml:"max_backups" validate:"min=0"`
}

// TaskConfig declares one task.
type TaskConfig struct {
	Name    string           `toml:"name" yaml:"name" validate:"required"`
	Command string           `toml:"command,omitempty" yaml:"command,omitempty"`
	Inputs  []PropertyConfig `toml:"inputs,omitempty" yaml:"inputs,omitempty" validate:"unique=Name,dive"`
	Outputs []PropertyConfig `toml:"outputs,omitempty" yaml:"outputs,omitempty" validate:"unique=Name,dive"`
	Exclude []string         `toml:"exclude,omitempty" yaml:"exclude,omitempty" validate:"dive,globpattern"`
}

// PropertyConfig is a named file property. Paths are files, directories or
// doublestar patterns.
type PropertyConfig struct {
	Name  string   `toml:"name" yaml:"name" validate:"required"`
	Paths []string `toml:"paths" yaml:"paths" validate:"min=1,dive,required"`
}

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	trueVal := true
	maxReported := 3
	return &Config{
		State: StateConfig{
			Dir:     ".uptodate",
			Backend: "json",
		},
		Check: CheckConfig{
			AllowSnapshotReuse: &trueVal,
			IgnoreTimestamps:   &trueVal,
			Hash:               string(snapshot.XXHash),
			MaxReported:        &maxReported,
		},
		Log: LogConfig{
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// StateDir returns the absolute state directory.
func (c *Config) StateDir() string {
	if filepath.IsAbs(c.State.Dir) {
		return c.State.Dir
	}
	return filepath.Join(c.Root, c.State.Dir)
}

// Task returns the named task.
func (c *Config) Task(name string) (*TaskConfig, error) {
	for i := range c.Tasks {
		if c.Tasks[i].Name == name {
			return &c.Tasks[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
}

// TaskNames returns configured task names in declaration order.
func (c *Config) TaskNames() []string {
	names := make([]string, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		names = append(names, t.Name)
	}
	return names
}

// CheckerOptions converts the check section to checker options.
func (c *Config) CheckerOptions() uptodate.Options {
	opts := uptodate.DefaultOptions()
	if c.Check.AllowSnapshotReuse != nil {
		opts.AllowReuse = *c.Check.AllowSnapshotReuse
	}
	if c.Check.IgnoreTimestamps != nil {
		opts.IgnoreTimestamps = *c.Check.IgnoreTimestamps
	}
	if c.Check.IgnoreRemovedInputs != nil {
		opts.IgnoreRemovedInputs = *c.Check.IgnoreRemovedInputs
	}
	if c.Check.MaxReported != nil {
		opts.MaxReported = *c.Check.MaxReported
	}
	return opts
}

// SnapshotConfig converts the check section to snapshotter settings. A
// state directory inside the project is always excluded.
func (c *Config) SnapshotConfig() (snapshot.Config, error) {
	algorithm, err := snapshot.ParseAlgorithm(c.Check.Hash)
	if err != nil {
		return snapshot.Config{}, err
	}
	excludes := slices.Clone(c.Check.Exclude)
	if rel, err := filepath.Rel(c.Root, c.StateDir()); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		rel = filepath.ToSlash(rel)
		excludes = append(excludes, rel, rel+"/**")
	}
	return snapshot.Config{
		Root:        c.Root,
		Algorithm:   algorithm,
		Concurrency: c.Check.Concurrency,
		Excludes:    excludes,
	}, nil
}

// Task converts the declaration to a checkable task. Task excludes apply to
// every property.
func (t TaskConfig) Task() uptodate.Task {
	return uptodate.Task{
		Name:    t.Name,
		Command: t.Command,
		Inputs:  t.properties(t.Inputs),
		Outputs: t.properties(t.Outputs),
	}
}

func (t TaskConfig) properties(props []PropertyConfig) []taskstate.FileProperty {
	out := make([]taskstate.FileProperty, 0, len(props))
	for _, p := range props {
		fp := taskstate.NewFileProperty(p.Name, p.Paths...)
		if len(t.Exclude) > 0 {
			fp.Files = fp.Files.Exclude(t.Exclude...)
		}
		out = append(out, fp)
	}
	return out
}

// Merge merges another config into this one (other takes precedence).
// Tasks are replaced as a whole when other declares any.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.State.Dir != "" {
		c.State.Dir = other.State.Dir
	}
	if other.State.Backend != "" {
		c.State.Backend = other.State.Backend
	}

	if other.Check.AllowSnapshotReuse != nil {
		c.Check.AllowSnapshotReuse = other.Check.AllowSnapshotReuse
	}
	if other.Check.IgnoreTimestamps != nil {
		c.Check.IgnoreTimestamps = other.Check.IgnoreTimestamps
	}
	if other.Check.IgnoreRemovedInputs != nil {
		c.Check.IgnoreRemovedInputs = other.Check.IgnoreRemovedInputs
	}
	if other.Check.Hash != "" {
		c.Check.Hash = other.Check.Hash
	}
	if other.Check.MaxReported != nil {
		c.Check.MaxReported = other.Check.MaxReported
	}
	if other.Check.Concurrency != 0 {
		c.Check.Concurrency = other.Check.Concurrency
	}
	if len(other.Check.Exclude) > 0 {
		c.Check.Exclude = append(c.Check.Exclude, other.Check.Exclude...)
	}

	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
	if other.Log.MaxSizeMB != 0 {
		c.Log.MaxSizeMB = other.Log.MaxSizeMB
	}
	if other.Log.MaxBackups != 0 {
		c.Log.MaxBackups = other.Log.MaxBackups
	}

	if len(other.Tasks) > 0 {
		c.Tasks = other.Tasks
	}
}
