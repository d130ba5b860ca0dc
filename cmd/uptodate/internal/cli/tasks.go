package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/uptodate/pkg/config"
)

var tasksFlags struct {
	json bool
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List configured tasks",
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

func init() {
	tasksCmd.Flags().BoolVar(&tasksFlags.json, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, _ []string) error {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	if tasksFlags.json {
		tasks := ws.cfg.Tasks
		if tasks == nil {
			tasks = []config.TaskConfig{}
		}
		return outputJSON(cmd.OutOrStdout(), tasks)
	}

	out := cmd.OutOrStdout()
	if len(ws.cfg.Tasks) == 0 {
		fmt.Fprintln(out, "No tasks configured. Run 'uptodate init' to create a config.")
		return nil
	}
	for _, t := range ws.cfg.Tasks {
		fmt.Fprintf(out, "%s\n", t.Name)
		if t.Command != "" {
			fmt.Fprintf(out, "  command: %s\n", t.Command)
		}
		for _, p := range t.Inputs {
			fmt.Fprintf(out, "  input  %s: %s\n", p.Name, strings.Join(p.Paths, ", "))
		}
		for _, p := range t.Outputs {
			fmt.Fprintf(out, "  output %s: %s\n", p.Name, strings.Join(p.Paths, ", "))
		}
	}
	return nil
}
