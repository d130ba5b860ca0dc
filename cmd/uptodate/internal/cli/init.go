package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/uptodate/cmd/uptodate/internal/detect"
	"github.com/albertocavalcante/uptodate/pkg/config"
)

// ErrNotConfigured is returned by 'init --check' when no project config exists.
var ErrNotConfigured = errors.New("project is not configured")

var initFlags struct {
	check  bool
	dryRun bool
	format string
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create a starter uptodate config",
	Long: `Creates a project config with suggested tasks.

This command will:
1. Detect build systems from marker files (go.mod, Cargo.toml, package.json, ...)
2. Suggest a task per common build step, with inputs and outputs
3. Write uptodate.toml (or uptodate.yaml with --format yaml)

An existing config is never overwritten.

Use --check to verify a config exists without making changes (useful for CI).
Use --dry-run to preview the config without writing it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initFlags.check, "check", false,
		"Check if the project has a config (exit 1 if not)")
	initCmd.Flags().BoolVar(&initFlags.dryRun, "dry-run", false,
		"Show the config that would be written")
	initCmd.Flags().StringVar(&initFlags.format, "format", "toml",
		"Config format (toml, yaml)")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := globalFlags.dir
	if len(args) > 0 {
		path = args[0]
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	out := cmd.OutOrStdout()
	existing := existingConfig(absPath)

	if initFlags.check {
		return runInitCheck(out, existing)
	}
	if existing != "" {
		fmt.Fprintf(out, "Config already exists at %s (skipping)\n", existing)
		return nil
	}

	configFile, err := configFileFor(absPath, initFlags.format)
	if err != nil {
		return err
	}

	if names := detect.Names(absPath); len(names) > 0 {
		fmt.Fprintf(out, "Detected: %s\n", strings.Join(names, ", "))
	} else {
		fmt.Fprintln(out, "No build system detected; writing an example task.")
	}

	content, err := generateConfigContent(detect.Tasks(absPath), initFlags.format)
	if err != nil {
		return err
	}

	if initFlags.dryRun {
		return runInitDryRun(out, configFile, content)
	}
	return runInitApply(out, configFile, content)
}

// existingConfig returns the first project config file in dir, if any.
func existingConfig(dir string) string {
	for _, path := range config.GetProjectConfigPaths(dir) {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func configFileFor(dir, format string) (string, error) {
	switch format {
	case "toml":
		return filepath.Join(dir, config.ConfigFileName), nil
	case "yaml":
		return filepath.Join(dir, config.YAMLConfigFileNames[0]), nil
	default:
		return "", fmt.Errorf("unknown config format %q (expected toml or yaml)", format)
	}
}

// exampleTask is written when nothing is detected.
var exampleTask = config.TaskConfig{
	Name:    "build",
	Command: "make",
	Inputs:  []config.PropertyConfig{{Name: "sources", Paths: []string{"src"}}},
	Outputs: []config.PropertyConfig{{Name: "artifacts", Paths: []string{"build"}}},
}

func generateConfigContent(tasks []config.TaskConfig, format string) (string, error) {
	if len(tasks) == 0 {
		tasks = []config.TaskConfig{exampleTask}
	}
	var buf bytes.Buffer
	if err := config.EncodeTasks(&buf, format, tasks); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func runInitCheck(out io.Writer, existing string) error {
	if existing == "" {
		return fmt.Errorf("%w: run 'uptodate init' to create %s", ErrNotConfigured, config.ConfigFileName)
	}
	fmt.Fprintf(out, "Project is configured (%s)\n", existing)
	return nil
}

func runInitDryRun(out io.Writer, configFile, content string) error {
	fmt.Fprintf(out, "Would create %s:\n", configFile)
	fmt.Fprintln(out, content)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func runInitApply(out io.Writer, configFile, content string) error {
	if err := os.WriteFile(configFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(configFile), err)
	}
	fmt.Fprintf(out, "Created %s\n", configFile)

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Review the task commands, inputs and outputs")
	fmt.Fprintln(out, "  2. Run 'uptodate status' to see which tasks need to run")
	return nil
}
