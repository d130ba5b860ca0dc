// Package history persists the record of each task's last successful
// execution. The record's snapshot maps are the baselines the next
// up-to-date check compares against.
package history

import (
	"fmt"
	"time"

	"github.com/albertocavalcante/uptodate/pkg/taskstate"
)

// ExecutionVersion is the current version of the execution record format.
const ExecutionVersion = 1

// TaskExecution is what a task looked like when it last succeeded.
// A nil snapshot map means that kind of history is not available.
type TaskExecution struct {
	Version     int                            `json:"version"`
	Task        string                         `json:"task"`
	Command     string                         `json:"command,omitempty"`
	InputFiles  *taskstate.PropertySnapshotMap `json:"input_files,omitempty"`
	OutputFiles *taskstate.PropertySnapshotMap `json:"output_files,omitempty"`
	ExecutedAt  time.Time                      `json:"executed_at"`
	Duration    time.Duration                  `json:"duration"`
}

// NewTaskExecution starts a record for task.
func NewTaskExecution(task, command string) *TaskExecution {
	return &TaskExecution{
		Version: ExecutionVersion,
		Task:    task,
		Command: command,
	}
}

func (e *TaskExecution) checkVersion() error {
	if e.Version > ExecutionVersion {
		return fmt.Errorf("history record for task %q has version %d, newer than supported version %d",
			e.Task, e.Version, ExecutionVersion)
	}
	return nil
}
