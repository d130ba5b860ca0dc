package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/uptodate/cmd/uptodate/internal/daemon"
)

var daemonStatusFlags struct {
	json bool
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show whether the project's daemon is running, its PID, socket,
uptime and watch state.

Examples:
  uptodate daemon status        # Show status as text
  uptodate daemon status --json # Show status as JSON`,
	RunE: runDaemonStatus,
}

var daemonStopFlags struct {
	force bool
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Long: `Stop the project's daemon.

Sends a shutdown request over the socket and waits up to 5 seconds for the
process to exit. With --force the process is killed if it does not.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := daemonPaths(cmd)
		if err != nil {
			return err
		}
		return stopDaemon(cmd, paths, daemonStopFlags.force)
	},
}

var daemonRestartFlags struct {
	force bool
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the daemon",
	Long: `Restart the project's daemon in the background.

Equivalent to 'uptodate daemon stop' followed by 'uptodate daemon start'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := daemonPaths(cmd)
		if err != nil {
			return err
		}
		if err := stopDaemon(cmd, paths, daemonRestartFlags.force); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Starting daemon...")
		daemonStartFlags.foreground = false
		return runDaemonStart(cmd, args)
	},
}

func init() {
	daemonStatusCmd.Flags().BoolVar(&daemonStatusFlags.json, "json", false,
		"Output as JSON")
	daemonStopCmd.Flags().BoolVar(&daemonStopFlags.force, "force", false,
		"Force kill if graceful shutdown fails")
	daemonRestartCmd.Flags().BoolVar(&daemonRestartFlags.force, "force", false,
		"Force kill if graceful shutdown fails")

	daemonCmd.AddCommand(daemonStatusCmd, daemonStopCmd, daemonRestartCmd)
}

// DaemonStatusOutput is the JSON output format for daemon status.
type DaemonStatusOutput struct {
	Running    bool     `json:"running"`
	PID        int      `json:"pid,omitempty"`
	Socket     string   `json:"socket"`
	Version    string   `json:"version,omitempty"`
	Root       string   `json:"root,omitempty"`
	Uptime     string   `json:"uptime,omitempty"`
	StartTime  string   `json:"start_time,omitempty"`
	Watching   bool     `json:"watching"`
	WatchTasks []string `json:"watch_tasks,omitempty"`
	LastEvent  string   `json:"last_event,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	paths, err := daemonPaths(cmd)
	if err != nil {
		return err
	}

	status := daemon.GetStatus(paths)
	output := DaemonStatusOutput{
		Running: status.Running,
		PID:     status.PID,
		Socket:  paths.Socket,
	}

	switch {
	case status.Running:
		if err := queryDaemon(paths, &output); err != nil {
			output.Error = err.Error()
		}
	case status.Stale:
		output.Error = "stale PID file (daemon crashed)"
	}

	if daemonStatusFlags.json {
		return outputJSON(cmd.OutOrStdout(), output)
	}
	printDaemonStatus(cmd.OutOrStdout(), output, status)
	return nil
}

// queryDaemon fills output with what the daemon reports about itself.
func queryDaemon(paths *daemon.Paths, output *DaemonStatusOutput) error {
	client, err := daemon.Connect(paths.Socket)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = client.Close() }()

	ping, err := client.Ping()
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	output.Version = ping.Version
	output.Root = ping.Root
	output.Uptime = ping.Uptime
	output.StartTime = ping.StartTime

	watch, err := client.WatchStatus()
	if err != nil {
		return fmt.Errorf("watch status failed: %w", err)
	}
	output.Watching = watch.Watching
	output.WatchTasks = watch.Tasks
	output.LastEvent = watch.LastEvent
	return nil
}

func printDaemonStatus(w io.Writer, output DaemonStatusOutput, status *daemon.Status) {
	if !output.Running {
		fmt.Fprintln(w, "Daemon: not running")
		if status.Stale {
			fmt.Fprintf(w, "  (stale PID file found for PID %d)\n", status.PID)
			fmt.Fprintln(w, "  Run 'uptodate daemon start' to start the daemon")
		}
		return
	}

	fmt.Fprintf(w, "Daemon: running (PID: %d)\n", output.PID)
	fmt.Fprintf(w, "Socket: %s\n", output.Socket)
	if output.Root != "" {
		fmt.Fprintf(w, "Root: %s\n", output.Root)
	}
	if output.Version != "" {
		fmt.Fprintf(w, "Version: %s\n", output.Version)
	}
	if output.Uptime != "" {
		fmt.Fprintf(w, "Uptime: %s\n", formatUptime(output.Uptime))
	}

	if output.Watching {
		fmt.Fprintln(w, "Watching: yes")
		for _, task := range output.WatchTasks {
			fmt.Fprintf(w, "  - %s\n", task)
		}
		if output.LastEvent != "" {
			fmt.Fprintf(w, "Last event: %s\n", output.LastEvent)
		}
	} else {
		fmt.Fprintln(w, "Watching: no")
	}

	if output.Error != "" {
		fmt.Fprintf(w, "Warning: %s\n", output.Error)
	}
}

// formatUptime shortens a duration string to its two largest units.
func formatUptime(uptime string) string {
	d, err := time.ParseDuration(uptime)
	if err != nil {
		return uptime
	}

	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}
