// Package uptodate decides whether a task must run by comparing its command,
// output files and input files against the history of its last successful
// execution, and records a new execution once the task succeeds.
package uptodate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/albertocavalcante/uptodate/internal/log"
	"github.com/albertocavalcante/uptodate/pkg/change"
	"github.com/albertocavalcante/uptodate/pkg/history"
	"github.com/albertocavalcante/uptodate/pkg/taskstate"
)

// Property kind titles used in change messages.
const (
	InputTitle  = "Input"
	OutputTitle = "Output"
)

// Task is a unit of work with declared file properties.
type Task struct {
	Name    string
	Command string
	Inputs  []taskstate.FileProperty
	Outputs []taskstate.FileProperty
}

// Options tunes a Checker.
type Options struct {
	// AllowReuse lets input and output captures reuse snapshots already
	// taken in this process.
	AllowReuse bool
	// IgnoreTimestamps compares files by content only.
	IgnoreTimestamps bool
	// IgnoreRemovedInputs drops removed input files from the input changes.
	IgnoreRemovedInputs bool
	// MaxReported caps the number of changes Changes yields; 0 is unlimited.
	MaxReported int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		AllowReuse:       true,
		IgnoreTimestamps: true,
		MaxReported:      3,
	}
}

// Checker creates per-execution States for tasks.
type Checker struct {
	store       history.Store
	snapshotter taskstate.Snapshotter
	opts        Options
}

// NewChecker creates a checker backed by store and snapshotter.
func NewChecker(store history.Store, snapshotter taskstate.Snapshotter, opts Options) *Checker {
	return &Checker{store: store, snapshotter: snapshotter, opts: opts}
}

// Options returns the checker's options.
func (c *Checker) Options() Options {
	return c.opts
}

func (c *Checker) filters() change.Filters {
	if c.opts.IgnoreTimestamps {
		return change.NewFilters(change.IgnoreTimestamps)
	}
	return change.NewFilters()
}

func (c *Checker) inputFilters() change.Filters {
	if c.opts.IgnoreRemovedInputs {
		return c.filters().With(change.IgnoreRemovedFiles)
	}
	return c.filters()
}

// Begin loads the task's previous execution and captures its current inputs
// and outputs.
func (c *Checker) Begin(ctx context.Context, task Task) (*State, error) {
	if task.Name == "" {
		return nil, errors.New("task has no name")
	}
	logger := log.Task("uptodate", task.Name)

	previous, err := c.store.Load(task.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if previous == nil {
		logger.Debug("no previous execution")
	}

	s := &State{
		task:     task,
		checker:  c,
		logger:   logger,
		previous: previous,
		current:  history.NewTaskExecution(task.Name, task.Command),
		started:  time.Now(),
	}

	s.outputs, err = taskstate.New(ctx, taskstate.Options{
		TaskName:    task.Name,
		Title:       OutputTitle,
		Properties:  task.Outputs,
		Snapshotter: c.snapshotter,
		AllowReuse:  c.opts.AllowReuse,
		Filters:     c.filters().With(change.IgnoreAddedFiles),
		Previous:    baseline(previous, func(e *history.TaskExecution) *taskstate.PropertySnapshotMap { return e.OutputFiles }),
		Committer:   taskstate.CommitFunc(s.commitOutputs),
	})
	if err != nil {
		return nil, err
	}

	s.inputs, err = taskstate.New(ctx, taskstate.Options{
		TaskName:    task.Name,
		Title:       InputTitle,
		Properties:  task.Inputs,
		Snapshotter: c.snapshotter,
		AllowReuse:  c.opts.AllowReuse,
		Filters:     c.inputFilters(),
		Previous:    baseline(previous, func(e *history.TaskExecution) *taskstate.PropertySnapshotMap { return e.InputFiles }),
		Committer:   taskstate.CommitFunc(s.commitInputs),
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

func baseline(previous *history.TaskExecution, pick func(*history.TaskExecution) *taskstate.PropertySnapshotMap) taskstate.Baseline {
	if previous == nil {
		return taskstate.NoBaseline()
	}
	return taskstate.BaselineOf(pick(previous))
}

// State is one task execution's up-to-date state. Call AfterTask once the
// task's work has finished.
type State struct {
	task     Task
	checker  *Checker
	logger   *slog.Logger
	previous *history.TaskExecution
	current  *history.TaskExecution
	inputs   *taskstate.NamedFileChanges
	outputs  *taskstate.NamedFileChanges
	started  time.Time
	done     bool
}

func (s *State) commitInputs(m *taskstate.PropertySnapshotMap)  { s.current.InputFiles = m }
func (s *State) commitOutputs(m *taskstate.PropertySnapshotMap) { s.current.OutputFiles = m }

// Task returns the task being checked.
func (s *State) Task() Task { return s.task }

// Previous returns the last recorded execution, or nil.
func (s *State) Previous() *history.TaskExecution { return s.previous }

// Inputs returns the input change pass.
func (s *State) Inputs() *taskstate.NamedFileChanges { return s.inputs }

// Outputs returns the output change pass.
func (s *State) Outputs() *taskstate.NamedFileChanges { return s.outputs }

// Changes returns why the task is out of date, capped at MaxReported
// records. Only the first source with changes is reported, in this order:
// missing history, command, outputs, inputs.
func (s *State) Changes() iter.Seq[change.Change] {
	return s.summary(s.checker.opts.MaxReported)
}

// AllChanges is Changes without the cap.
func (s *State) AllChanges() iter.Seq[change.Change] {
	return s.summary(0)
}

// UpToDate reports whether nothing changed since the last execution.
func (s *State) UpToDate() bool {
	for range s.Changes() {
		return false
	}
	return true
}

func (s *State) summary(limit int) iter.Seq[change.Change] {
	sources := []iter.Seq[change.Change]{
		s.historyChanges,
		s.commandChanges,
		s.outputs.Changes(),
		s.inputs.Changes(),
	}
	return func(yield func(change.Change) bool) {
		for _, source := range sources {
			n := 0
			for ch := range source {
				n++
				if !yield(ch) || (limit > 0 && n >= limit) {
					return
				}
			}
			if n > 0 {
				return
			}
		}
	}
}

func (s *State) historyChanges(yield func(change.Change) bool) {
	if s.previous == nil {
		yield(change.Describe("No history is available."))
	}
}

func (s *State) commandChanges(yield func(change.Change) bool) {
	if s.previous != nil && s.previous.Command != s.task.Command {
		yield(change.Describe("Task '%s' command has changed.", s.task.Name))
	}
}

// AfterTask records the execution when taskErr is nil: outputs are captured
// again without reuse, the captured inputs become the new input baseline
// and the record is saved. A failed task leaves the previous history in
// place. When capturing or saving fails, AfterTask may be called again.
func (s *State) AfterTask(ctx context.Context, taskErr error) error {
	if taskErr != nil {
		s.logger.Debug("task failed, keeping previous history", "error", taskErr)
		return nil
	}
	if s.done {
		return taskstate.ErrAlreadyCommitted
	}

	after, err := taskstate.New(ctx, taskstate.Options{
		TaskName:    s.task.Name,
		Title:       OutputTitle,
		Properties:  s.task.Outputs,
		Snapshotter: s.checker.snapshotter,
		AllowReuse:  false,
		Previous:    s.outputs.Previous(),
		Committer:   taskstate.CommitFunc(s.commitOutputs),
	})
	if err != nil {
		return err
	}

	// Inputs stay committed across a retry after a failed capture or save.
	if err := s.inputs.Commit(); err != nil && !errors.Is(err, taskstate.ErrAlreadyCommitted) {
		return err
	}
	if err := after.Commit(); err != nil {
		return err
	}

	s.current.ExecutedAt = time.Now()
	s.current.Duration = time.Since(s.started)
	if err := s.checker.store.Save(s.current); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	s.done = true
	s.logger.Info("recorded execution", "duration", s.current.Duration)
	return nil
}
