package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/uptodate/cmd/uptodate/internal/daemon"
)

// daemonCmd is the parent command for daemon operations.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the background daemon",
	Long: `Manage the uptodate background daemon for this project.

The daemon keeps file snapshots in memory and watches the project so they
are dropped as soon as files change. 'uptodate status --daemon' asks it
instead of hashing every file again.

There is at most one daemon per state directory. Its socket, PID file and
log live there.

Commands:
  start   - Start the daemon process
  stop    - Stop the running daemon
  status  - Show daemon status
  restart - Restart the daemon

Examples:
  uptodate daemon start              # Start daemon in background
  uptodate daemon start --foreground # Run daemon in foreground (for debugging)
  uptodate daemon status             # Check if daemon is running
  uptodate daemon stop               # Stop the daemon`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

// daemonPaths locates the daemon files of the current project.
func daemonPaths(cmd *cobra.Command) (*daemon.Paths, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return daemon.StatePaths(cfg.StateDir()), nil
}

// stopDaemon stops the daemon recorded in paths. Without force a daemon
// that ignores the shutdown request is left running.
func stopDaemon(cmd *cobra.Command, paths *daemon.Paths, force bool) error {
	out := cmd.OutOrStdout()
	status := daemon.GetStatus(paths)

	if status.Stale {
		fmt.Fprintln(out, "Daemon not running (cleaning up stale files)")
		return paths.Cleanup()
	}
	if !status.Running {
		fmt.Fprintln(out, "Daemon not running")
		return nil
	}

	fmt.Fprintf(out, "Stopping daemon (PID: %d)...\n", status.PID)

	if err := requestShutdown(paths); err == nil && waitForExit(status.PID, 5*time.Second) {
		fmt.Fprintln(out, "Daemon stopped")
		return nil
	}

	if !force {
		fmt.Fprintln(out, "Graceful shutdown timed out. Use --force to kill.")
		return fmt.Errorf("shutdown timed out")
	}

	fmt.Fprintln(out, "Forcing shutdown...")
	if err := daemon.KillProcess(status.PID); err != nil && daemon.IsProcessRunning(status.PID) {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}
	if !waitForExit(status.PID, 2*time.Second) {
		return fmt.Errorf("failed to stop daemon")
	}
	fmt.Fprintln(out, "Daemon stopped (forced)")
	return paths.Cleanup()
}

// requestShutdown asks the daemon to exit over its socket.
func requestShutdown(paths *daemon.Paths) error {
	client, err := daemon.Connect(paths.Socket)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	_, err = client.Shutdown()
	return err
}

// waitForExit polls until pid exits or the timeout passes.
func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !daemon.IsProcessRunning(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
