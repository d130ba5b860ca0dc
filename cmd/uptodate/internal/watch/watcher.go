package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/albertocavalcante/uptodate/internal/log"
	"github.com/albertocavalcante/uptodate/pkg/uptodate"
)

// DefaultDebounce is the debounce window used when none is configured.
const DefaultDebounce = 500 * time.Millisecond

// Checker begins an up-to-date check for a task.
type Checker interface {
	Begin(ctx context.Context, task uptodate.Task) (*uptodate.State, error)
}

// Snapshots is the part of the snapshotter the watcher drives.
type Snapshots interface {
	Invalidate()
	Excluded(path string) bool
}

// Runner executes task commands.
type Runner interface {
	Run(ctx context.Context, command string) error
}

// Config configures the watcher.
type Config struct {
	Root      string
	Tasks     []uptodate.Task
	Checker   Checker
	Snapshots Snapshots
	Runner    Runner // nil only reports; otherwise stale tasks are run
	Debounce  int    // debounce window in milliseconds
	Verbose   bool
	NoColor   bool
	JSON      bool
	Writer    io.Writer
}

// Watcher watches the workspace and re-checks tasks when files change.
type Watcher struct {
	config    Config
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	logger    *Logger
	dirCount  int

	// checkMu serializes check passes
	checkMu sync.Mutex
}

// New creates a new watcher with the given configuration.
func New(cfg Config) (*Watcher, error) {
	if cfg.Checker == nil || cfg.Snapshots == nil {
		return nil, errors.New("watch: checker and snapshots are required")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	logger := NewLogger(LoggerConfig{
		Writer:  cfg.Writer,
		Verbose: cfg.Verbose,
		NoColor: cfg.NoColor,
		JSON:    cfg.JSON,
	})

	return &Watcher{
		config:    cfg,
		fsWatcher: fsWatcher,
		logger:    logger,
	}, nil
}

// Logger returns the watcher's event logger.
func (w *Watcher) Logger() *Logger {
	return w.logger
}

// Run checks every task once, then watches for changes until the context is
// cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	debounceWindow := time.Duration(w.config.Debounce) * time.Millisecond
	if debounceWindow <= 0 {
		debounceWindow = DefaultDebounce
	}
	w.debouncer = NewDebouncer(debounceWindow, func(paths []string) {
		w.check(ctx, paths)
	})
	defer w.debouncer.Stop()

	if err := w.addRecursive(w.config.Root); err != nil {
		return fmt.Errorf("failed to watch workspace: %w", err)
	}

	names := make([]string, len(w.config.Tasks))
	for i, t := range w.config.Tasks {
		names[i] = t.Name
	}
	w.logger.Ready(names, w.dirCount, w.config.Root)

	w.check(ctx, nil)

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown()
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err)
		}
	}
}

// addRecursive adds a directory and all subdirectories to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				if w.config.Verbose {
					w.logger.Error(fmt.Errorf("permission denied: %s", path))
				}
				return nil
			}
			w.logger.Error(fmt.Errorf("walk error at %s: %w", path, err))
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if path != w.config.Root && w.config.Snapshots.Excluded(path) {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("%w for %s: %w\n"+
					"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288", ErrWatchLimitReached, path, err)
			}
			if w.config.Verbose {
				w.logger.Error(fmt.Errorf("failed to watch %s: %w", path, err))
			}
			return nil
		}
		w.dirCount++

		return nil
	})
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if w.config.Snapshots.Excluded(path) {
		return
	}

	// New directories are watched and their files reported as one change.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addRecursive(path); err != nil {
				w.logger.Error(fmt.Errorf("failed to watch new directory %s: %w", path, err))
			}
		}
	}

	var changeType ChangeType
	switch {
	case event.Has(fsnotify.Create):
		changeType = ChangeAdded
	case event.Has(fsnotify.Write):
		changeType = ChangeModified
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		changeType = ChangeDeleted
	default:
		return // chmod
	}

	relPath, err := filepath.Rel(w.config.Root, path)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)

	w.logger.FileChanged(relPath, changeType)
	w.debouncer.Add(relPath)
}

// check runs one pass over every task. Cached snapshots are dropped first
// since the files they describe have changed.
func (w *Watcher) check(ctx context.Context, paths []string) {
	if ctx.Err() != nil {
		return
	}

	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	w.logger.Checking(paths)
	w.config.Snapshots.Invalidate()

	for _, task := range w.config.Tasks {
		if ctx.Err() != nil {
			return
		}
		w.checkTask(ctx, task)
	}
}

func (w *Watcher) checkTask(ctx context.Context, task uptodate.Task) {
	logger := log.Task("watch", task.Name)

	state, err := w.config.Checker.Begin(ctx, task)
	if err != nil {
		w.logger.Error(fmt.Errorf("task %s: %w", task.Name, err))
		return
	}

	if state.UpToDate() {
		w.logger.UpToDate(task.Name)
		return
	}

	var reasons []string
	for ch := range state.Changes() {
		reasons = append(reasons, ch.Message())
	}
	w.logger.Stale(task.Name, reasons)

	if w.config.Runner == nil || task.Command == "" {
		return
	}

	logger.Debug("running task", "command", task.Command)
	start := time.Now()
	runErr := w.config.Runner.Run(ctx, task.Command)
	w.logger.Ran(task.Name, time.Since(start), runErr)

	if err := state.AfterTask(ctx, runErr); err != nil {
		w.logger.Error(fmt.Errorf("task %s: %w", task.Name, err))
	}
	w.config.Snapshots.Invalidate()
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")
