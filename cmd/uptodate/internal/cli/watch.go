package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/uptodate/cmd/uptodate/internal/runner"
	"github.com/albertocavalcante/uptodate/cmd/uptodate/internal/watch"
)

var watchFlags struct {
	debounce int
	run      bool
	shell    string
	verbose  bool
	json     bool
	noColor  bool
}

var watchCmd = &cobra.Command{
	Use:   "watch [task...]",
	Short: "Re-check tasks whenever their files change",
	Long: `Watches the project for file changes and re-checks tasks when changes
are detected. With --run, stale tasks are run as soon as they go out of
date.

Example output:

  $ uptodate watch --run

  uptodate: watching 42 directories in /path/to/project
  uptodate: tasks: generate, compile
  uptodate: ready

  [14:32:15] src/main.c changed, checking tasks...
  [14:32:15] ✓ generate is up to date
  [14:32:15] ~ compile is out of date
      Input property 'sources' file src/main.c has changed.
  [14:32:16] ✓ compile ran in 1.2s

Press Ctrl+C to stop watching.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchFlags.debounce, "debounce", 500,
		"Debounce window in milliseconds")
	watchCmd.Flags().BoolVar(&watchFlags.run, "run", false,
		"Run tasks when they go out of date")
	watchCmd.Flags().StringVar(&watchFlags.shell, "shell", "",
		"Shell used to run task commands (defaults to sh on PATH)")
	watchCmd.Flags().BoolVar(&watchFlags.verbose, "verbose", false,
		"Show file-level changes")
	watchCmd.Flags().BoolVar(&watchFlags.json, "json", false,
		"Stream JSON events (for tooling integration)")
	watchCmd.Flags().BoolVar(&watchFlags.noColor, "no-color", false,
		"Disable colored output")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	tasks, err := ws.tasks(args)
	if err != nil {
		return err
	}

	// Setup signal handling for graceful shutdown
	// Include SIGHUP to handle terminal hangup
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	cfg := watch.Config{
		Root:      ws.cfg.Root,
		Tasks:     tasks,
		Checker:   ws.checker,
		Snapshots: ws.snapshotter,
		Debounce:  watchFlags.debounce,
		Verbose:   watchFlags.verbose,
		NoColor:   watchFlags.noColor,
		JSON:      watchFlags.json,
		Writer:    cmd.OutOrStdout(),
	}
	if watchFlags.run {
		cfg.Runner = runner.New(
			runner.WithShell(watchFlags.shell),
			runner.WithDir(ws.cfg.Root),
			runner.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		)
	}

	w, err := watch.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	return w.Run(ctx)
}
