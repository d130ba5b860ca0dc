// Package detect suggests starter tasks for a project.
//
// # Detection Algorithm
//
// Detection is DETERMINISTIC: given the same directory contents, it always
// produces the same tasks in the same order. The algorithm:
//
//  1. Look for each known build-system marker file at the project root
//  2. For every marker present, emit that ecosystem's task templates
//  3. Keep only the optional manifests that actually exist
//
// Markers are checked in the order of the Ecosystems table. Only the root
// directory is inspected; nested projects are not discovered.
package detect

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/albertocavalcante/uptodate/pkg/config"
)

// Ecosystem describes how to recognize a build system and the tasks it
// usually needs.
type Ecosystem struct {
	Name   string
	Marker string
	// Manifests are extra files added as a "manifests" input when present.
	Manifests []string
	Tasks     []config.TaskConfig
}

// Ecosystems is the single source of truth for detection.
var Ecosystems = []Ecosystem{
	{
		Name:      "go",
		Marker:    "go.mod",
		Manifests: []string{"go.mod", "go.sum"},
		Tasks: []config.TaskConfig{
			{
				Name:    "go-build",
				Command: "go build -o bin/ ./...",
				Inputs:  []config.PropertyConfig{{Name: "sources", Paths: []string{"**/*.go"}}},
				Outputs: []config.PropertyConfig{{Name: "binaries", Paths: []string{"bin"}}},
			},
			{
				Name:    "go-test",
				Command: "go test ./...",
				Inputs:  []config.PropertyConfig{{Name: "sources", Paths: []string{"**/*.go", "**/testdata/**"}}},
			},
		},
	},
	{
		Name:      "cargo",
		Marker:    "Cargo.toml",
		Manifests: []string{"Cargo.toml", "Cargo.lock"},
		Tasks: []config.TaskConfig{
			{
				Name:    "cargo-build",
				Command: "cargo build --release",
				Inputs:  []config.PropertyConfig{{Name: "sources", Paths: []string{"src"}}},
				Outputs: []config.PropertyConfig{{Name: "release", Paths: []string{"target/release"}}},
				Exclude: []string{"target/release/.fingerprint/**", "target/release/incremental/**"},
			},
		},
	},
	{
		Name:      "npm",
		Marker:    "package.json",
		Manifests: []string{"package.json", "package-lock.json"},
		Tasks: []config.TaskConfig{
			{
				Name:    "npm-build",
				Command: "npm run build",
				Inputs:  []config.PropertyConfig{{Name: "sources", Paths: []string{"src"}}},
				Outputs: []config.PropertyConfig{{Name: "dist", Paths: []string{"dist"}}},
			},
		},
	},
	{
		Name:      "gradle",
		Marker:    "build.gradle.kts",
		Manifests: []string{"build.gradle.kts", "settings.gradle.kts", "gradle.properties"},
		Tasks: []config.TaskConfig{
			{
				Name:    "gradle-assemble",
				Command: "./gradlew assemble",
				Inputs:  []config.PropertyConfig{{Name: "sources", Paths: []string{"src/main"}}},
				Outputs: []config.PropertyConfig{{Name: "libs", Paths: []string{"build/libs"}}},
			},
		},
	},
}

// Tasks suggests tasks for the project rooted at root.
//
// This function is DETERMINISTIC: tasks follow the order of Ecosystems and
// of each ecosystem's templates. The returned tasks are copies; callers may
// modify them.
func Tasks(root string) []config.TaskConfig {
	var tasks []config.TaskConfig
	for _, eco := range Ecosystems {
		if !exists(filepath.Join(root, eco.Marker)) {
			continue
		}

		var manifests []string
		for _, m := range eco.Manifests {
			if exists(filepath.Join(root, m)) {
				manifests = append(manifests, m)
			}
		}

		for _, tmpl := range eco.Tasks {
			task := clone(tmpl)
			if len(manifests) > 0 {
				task.Inputs = append(task.Inputs, config.PropertyConfig{Name: "manifests", Paths: manifests})
			}
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// Names returns the names of the ecosystems detected at root.
func Names(root string) []string {
	var names []string
	for _, eco := range Ecosystems {
		if exists(filepath.Join(root, eco.Marker)) {
			names = append(names, eco.Name)
		}
	}
	return names
}

func clone(t config.TaskConfig) config.TaskConfig {
	props := func(in []config.PropertyConfig) []config.PropertyConfig {
		if in == nil {
			return nil
		}
		out := make([]config.PropertyConfig, len(in))
		for i, p := range in {
			out[i] = config.PropertyConfig{Name: p.Name, Paths: slices.Clone(p.Paths)}
		}
		return out
	}
	t.Inputs = props(t.Inputs)
	t.Outputs = props(t.Outputs)
	t.Exclude = slices.Clone(t.Exclude)
	return t
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
