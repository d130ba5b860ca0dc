package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/uptodate/cmd/uptodate/internal/runner"
	"github.com/albertocavalcante/uptodate/internal/log"
	"github.com/albertocavalcante/uptodate/pkg/uptodate"
)

var runFlags struct {
	force  bool
	dryRun bool
	shell  string
}

var runCmd = &cobra.Command{
	Use:   "run [task...]",
	Short: "Run tasks that are out of date",
	Long: `Runs each task whose command, inputs or outputs changed since its last
successful run, in the order given (or declaration order when no tasks are
named). Up-to-date tasks are skipped.

A successful run records the task's input and output files as the new
baseline. A failed run keeps the previous baseline and stops the build.

Use --force to run tasks regardless of their state.
Use --dry-run to show which tasks would run without running them.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.force, "force", false,
		"Run tasks even when they are up to date")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false,
		"Show which tasks would run without running them")
	runCmd.Flags().StringVar(&runFlags.shell, "shell", "",
		"Shell used to run task commands (defaults to sh on PATH)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	tasks, err := ws.tasks(args)
	if err != nil {
		return err
	}

	r := runner.New(
		runner.WithShell(runFlags.shell),
		runner.WithDir(ws.cfg.Root),
		runner.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	)

	out := cmd.OutOrStdout()
	for _, task := range tasks {
		if err := runTask(cmd, ws, r, task, out); err != nil {
			return err
		}
	}
	return nil
}

// runTask runs one task if it is stale and records the outcome.
func runTask(cmd *cobra.Command, ws *workspace, r *runner.Runner, task uptodate.Task, out io.Writer) error {
	ctx := cmd.Context()
	logger := log.Task("run", task.Name)

	state, err := ws.checker.Begin(ctx, task)
	if err != nil {
		return err
	}

	if state.UpToDate() && !runFlags.force {
		fmt.Fprintf(out, "> Task %s UP-TO-DATE\n", task.Name)
		return nil
	}

	fmt.Fprintf(out, "> Task %s\n", task.Name)
	for ch := range state.Changes() {
		fmt.Fprintf(out, "  %s\n", ch.Message())
	}

	if runFlags.dryRun {
		return nil
	}
	if task.Command == "" {
		return fmt.Errorf("task %s: %w", task.Name, runner.ErrNoCommand)
	}

	start := time.Now()
	runErr := r.Run(ctx, task.Command)
	logger.Info("task finished", "duration", time.Since(start), "error", runErr)

	if err := state.AfterTask(ctx, runErr); err != nil {
		return fmt.Errorf("task %s: %w", task.Name, err)
	}
	// Later tasks may consume what this one wrote.
	ws.snapshotter.Invalidate()

	if runErr != nil {
		return fmt.Errorf("task %s failed: %w", task.Name, runErr)
	}
	return nil
}
