package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/uptodate/cmd/uptodate/internal/daemon"
	"github.com/albertocavalcante/uptodate/internal/log"
)

var daemonStartFlags struct {
	foreground bool
	noWatch    bool
	debounce   int
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon process",
	Long: `Start the uptodate daemon for this project.

By default the daemon runs in the background and writes its log to
daemon.log in the state directory. Use --foreground to run it in the
terminal for debugging.

The daemon watches the project from the start so cached snapshots never
outlive a file change. With --no-watch it drops its cache before every
status request instead.

Examples:
  uptodate daemon start              # Start in background
  uptodate daemon start --foreground # Run in foreground (Ctrl+C to stop)
  uptodate daemon start --no-watch   # Serve requests without watching`,
	RunE: runDaemonStart,
}

func init() {
	daemonStartCmd.Flags().BoolVar(&daemonStartFlags.foreground, "foreground", false,
		"Run in foreground (don't daemonize)")
	daemonStartCmd.Flags().BoolVar(&daemonStartFlags.noWatch, "no-watch", false,
		"Don't watch the project for changes")
	daemonStartCmd.Flags().IntVar(&daemonStartFlags.debounce, "debounce", 500,
		"Debounce window for file events in milliseconds")

	daemonCmd.AddCommand(daemonStartCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	paths, err := daemonPaths(cmd)
	if err != nil {
		return err
	}

	status := daemon.GetStatus(paths)
	if status.Running {
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon already running (PID: %d)\n", status.PID)
		return nil
	}
	if status.Stale {
		if _, err := daemon.CleanupStale(paths); err != nil {
			log.Warn("failed to clean up stale files", "error", err)
		}
	}

	if daemonStartFlags.foreground {
		return runDaemonForeground(cmd, paths)
	}
	return runDaemonBackground(cmd, paths)
}

// runDaemonForeground serves until interrupted or asked to shut down.
func runDaemonForeground(cmd *cobra.Command, paths *daemon.Paths) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	handler, err := daemon.NewHandler(daemon.HandlerConfig{
		Root:      ws.cfg.Root,
		Checker:   ws.checker,
		Snapshots: ws.snapshotter,
		Resolve:   ws.tasks,
	})
	if err != nil {
		return err
	}
	defer handler.Stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Starting daemon in foreground (PID: %d)\n", os.Getpid())
	fmt.Fprintf(out, "Socket: %s\n", paths.Socket)

	if !daemonStartFlags.noWatch {
		if _, err := handler.Watch(cmd.Context(), daemonStartFlags.debounce); err != nil {
			log.Warn("not watching the project", "error", err)
		}
	}

	server := daemon.NewServer(daemon.ServerConfig{
		Paths:   paths,
		Version: Version,
		Handler: handler,
	})
	return server.Start(cmd.Context())
}

// runDaemonBackground re-executes this binary in foreground mode, detached
// from the terminal, and waits for it to answer.
func runDaemonBackground(cmd *cobra.Command, paths *daemon.Paths) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// The child inherits the working directory, so --dir resolves the same.
	args := []string{"--dir", globalFlags.dir, "--verbosity", strconv.Itoa(globalFlags.verbosity),
		"daemon", "start", "--foreground",
		"--debounce", strconv.Itoa(daemonStartFlags.debounce)}
	if daemonStartFlags.noWatch {
		args = append(args, "--no-watch")
	}

	if err := paths.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	logFile, err := os.OpenFile(paths.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	child := exec.Command(executable, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = daemonSysProcAttr()

	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	_ = child.Process.Release()

	if !waitForDaemon(paths, 5*time.Second) {
		return fmt.Errorf("daemon failed to start (check %s for details)", paths.Log)
	}

	status := daemon.GetStatus(paths)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Daemon started (PID: %d)\n", status.PID)
	fmt.Fprintf(out, "Socket: %s\n", paths.Socket)
	fmt.Fprintf(out, "Log: %s\n", paths.Log)
	return nil
}

// waitForDaemon polls until the daemon answers a ping.
func waitForDaemon(paths *daemon.Paths, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if client, err := daemon.Connect(paths.Socket); err == nil {
			_, err = client.Ping()
			_ = client.Close()
			if err == nil {
				return true
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
