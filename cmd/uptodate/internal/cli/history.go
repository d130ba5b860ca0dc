package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/uptodate/pkg/taskstate"
)

var historyFlags struct {
	json bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or clear recorded task executions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks with a recorded execution",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear [task...]",
	Short: "Forget recorded executions so tasks run again",
	Long: `Removes the recorded execution of each named task, or of every task
when none are named. The next check reports "No history is available."`,
	RunE: runHistoryClear,
}

func init() {
	historyListCmd.Flags().BoolVar(&historyFlags.json, "json", false,
		"Output as JSON")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

// HistoryEntry is the JSON output format for uptodate history list.
type HistoryEntry struct {
	Task        string    `json:"task"`
	Command     string    `json:"command,omitempty"`
	ExecutedAt  time.Time `json:"executed_at"`
	Duration    string    `json:"duration"`
	InputFiles  int       `json:"input_files"`
	OutputFiles int       `json:"output_files"`
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	names, err := ws.store.Tasks()
	if err != nil {
		return err
	}

	entries := make([]HistoryEntry, 0, len(names))
	for _, name := range names {
		rec, err := ws.store.Load(name)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		entries = append(entries, HistoryEntry{
			Task:        rec.Task,
			Command:     rec.Command,
			ExecutedAt:  rec.ExecutedAt,
			Duration:    rec.Duration.String(),
			InputFiles:  fileCount(rec.InputFiles),
			OutputFiles: fileCount(rec.OutputFiles),
		})
	}

	if historyFlags.json {
		return outputJSON(cmd.OutOrStdout(), entries)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No recorded executions.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\t%s\t%s\t%d inputs, %d outputs\n",
			e.Task, e.ExecutedAt.Local().Format(time.DateTime), e.Duration, e.InputFiles, e.OutputFiles)
	}
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		if err := ws.store.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Cleared all recorded executions.")
		return nil
	}

	for _, name := range args {
		if err := ws.store.Remove(name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Cleared %s.\n", name)
	}
	return nil
}

// fileCount totals the files recorded across properties.
func fileCount(m *taskstate.PropertySnapshotMap) int {
	n := 0
	for _, snap := range m.All() {
		n += snap.Len()
	}
	return n
}
