package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/uptodate/pkg/snapshot"
	"github.com/albertocavalcante/uptodate/pkg/uptodate"
)

// ErrNotTracked is returned when a path belongs to none of a task's properties.
var ErrNotTracked = errors.New("path is not tracked by task")

var fingerprintFlags struct {
	outputs bool
	json    bool
}

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint <task> <path>",
	Short: "Show the current fingerprint of a task file",
	Long: `Captures the task's input files (or output files with --outputs) and
prints the fingerprint recorded for one path, together with the property
that covers it. A file covered by several properties resolves to the first
one declared.`,
	Args: cobra.ExactArgs(2),
	RunE: runFingerprint,
}

func init() {
	fingerprintCmd.Flags().BoolVar(&fingerprintFlags.outputs, "outputs", false,
		"Look the path up among output files")
	fingerprintCmd.Flags().BoolVar(&fingerprintFlags.json, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(fingerprintCmd)
}

// FingerprintOutput is the JSON output format for uptodate fingerprint.
type FingerprintOutput struct {
	Task     string        `json:"task"`
	Property string        `json:"property"`
	Path     string        `json:"path"`
	Kind     snapshot.Kind `json:"kind"`
	Hash     string        `json:"hash,omitempty"`
	Size     int64         `json:"size,omitempty"`
	ModTime  *time.Time    `json:"mtime,omitempty"`
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	tasks, err := ws.tasks(args[:1])
	if err != nil {
		return err
	}
	task := tasks[0]

	state, err := ws.checker.Begin(cmd.Context(), task)
	if err != nil {
		return err
	}

	kind, files := uptodate.InputTitle, state.Inputs()
	if fingerprintFlags.outputs {
		kind, files = uptodate.OutputTitle, state.Outputs()
	}

	path := ws.snapshotter.Normalize(args[1])
	property, fp, ok := files.UnifiedSnapshot().Find(path)
	if !ok {
		return fmt.Errorf("%w: %s is not an %s file of %s", ErrNotTracked, path, strings.ToLower(kind), task.Name)
	}

	output := FingerprintOutput{
		Task:     task.Name,
		Property: property,
		Path:     path,
		Kind:     fp.Kind,
		Hash:     fp.Hash,
		Size:     fp.Size,
	}
	if fp.ModTime != 0 {
		mtime := time.Unix(0, fp.ModTime)
		output.ModTime = &mtime
	}

	if fingerprintFlags.json {
		return outputJSON(cmd.OutOrStdout(), output)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s property '%s' %s %s\n", kind, property, fp.Kind, path)
	if fp.Hash != "" {
		fmt.Fprintf(out, "  hash:  %s\n", fp.Hash)
		fmt.Fprintf(out, "  size:  %d\n", fp.Size)
	}
	if output.ModTime != nil {
		fmt.Fprintf(out, "  mtime: %s\n", output.ModTime.Format(time.RFC3339Nano))
	}
	return nil
}
