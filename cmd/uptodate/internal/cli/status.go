package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/uptodate/cmd/uptodate/internal/daemon"
)

// ErrStale is returned by 'status --check' when a task is out of date.
var ErrStale = errors.New("tasks are out of date")

var statusFlags struct {
	all    bool
	json   bool
	check  bool
	daemon bool
}

var statusCmd = &cobra.Command{
	Use:   "status [task...]",
	Short: "Show which tasks are out of date and why",
	Long: `Shows whether each task is up to date.

Compares the task's command, output files and input files against the
history of its last successful run. For stale tasks the first few reasons
are listed; use --all to list every changed file.

The --json flag outputs the result as JSON for scripting.
The --check flag exits non-zero when any task is out of date.
The --daemon flag asks the running daemon, which may answer from snapshots
it already holds.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.all, "all", false,
		"List every change instead of the first few")
	statusCmd.Flags().BoolVar(&statusFlags.json, "json", false,
		"Output as JSON")
	statusCmd.Flags().BoolVar(&statusFlags.check, "check", false,
		"Exit with an error if any task is out of date")
	statusCmd.Flags().BoolVar(&statusFlags.daemon, "daemon", false,
		"Ask the running daemon instead of checking in-process")

	rootCmd.AddCommand(statusCmd)
}

// TaskStatus is the status of one task.
type TaskStatus = daemon.TaskStatus

// StatusOutput is the JSON output format for uptodate status.
type StatusOutput struct {
	UpToDate bool         `json:"up_to_date"`
	Tasks    []TaskStatus `json:"tasks"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	var (
		output StatusOutput
		err    error
	)
	if statusFlags.daemon {
		output, err = statusFromDaemon(cmd, args)
	} else {
		output, err = statusInProcess(cmd, args)
	}
	if err != nil {
		return err
	}

	if statusFlags.json {
		if err := outputJSON(cmd.OutOrStdout(), output); err != nil {
			return err
		}
	} else {
		printStatus(cmd.OutOrStdout(), output.Tasks)
	}

	if statusFlags.check && !output.UpToDate {
		return ErrStale
	}
	return nil
}

func statusInProcess(cmd *cobra.Command, args []string) (StatusOutput, error) {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return StatusOutput{}, err
	}
	defer func() { _ = ws.Close() }()

	tasks, err := ws.tasks(args)
	if err != nil {
		return StatusOutput{}, err
	}

	statuses := daemon.CheckTasks(cmd.Context(), ws.checker, tasks, statusFlags.all)
	output := StatusOutput{UpToDate: true, Tasks: statuses}
	for _, s := range statuses {
		if !s.UpToDate {
			output.UpToDate = false
		}
	}
	return output, nil
}

func statusFromDaemon(cmd *cobra.Command, args []string) (StatusOutput, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return StatusOutput{}, err
	}

	client, err := daemon.Connect(daemon.StatePaths(cfg.StateDir()).Socket)
	if err != nil {
		return StatusOutput{}, fmt.Errorf("%w (start it with 'uptodate daemon start')", err)
	}
	defer func() { _ = client.Close() }()

	result, err := client.StatusGet(&daemon.StatusGetParams{Tasks: args, All: statusFlags.all})
	if err != nil {
		return StatusOutput{}, err
	}
	return StatusOutput{UpToDate: result.UpToDate, Tasks: result.Tasks}, nil
}

func printStatus(w io.Writer, statuses []TaskStatus) {
	for _, s := range statuses {
		switch {
		case s.Error != "":
			fmt.Fprintf(w, "%s: error: %s\n", s.Task, s.Error)
		case s.UpToDate:
			fmt.Fprintf(w, "%s: up to date\n", s.Task)
		default:
			fmt.Fprintf(w, "%s: out of date\n", s.Task)
			for _, msg := range s.Changes {
				fmt.Fprintf(w, "  %s\n", msg)
			}
		}
	}
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
