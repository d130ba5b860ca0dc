package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/uptodate/internal/log"
	"github.com/albertocavalcante/uptodate/pkg/config"
	"github.com/albertocavalcante/uptodate/pkg/history"
	"github.com/albertocavalcante/uptodate/pkg/snapshot"
	"github.com/albertocavalcante/uptodate/pkg/uptodate"
)

// ErrNoTasks is returned when the project declares no tasks.
var ErrNoTasks = errors.New("no tasks configured")

// workspace bundles the collaborators every task command needs.
type workspace struct {
	cfg         *config.Config
	store       history.Store
	snapshotter *snapshot.Snapshotter
	checker     *uptodate.Checker
	logCloser   io.Closer
}

// loadConfig loads the layered config and applies CLI flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFrom(globalFlags.dir)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-format") {
		cfg.Log.Format = globalFlags.logFormat
	}
	if flags.Changed("log-file") {
		cfg.Log.File = globalFlags.logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openWorkspace loads the config and opens the history store.
func openWorkspace(cmd *cobra.Command) (*workspace, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logCloser := log.Setup(log.Options{
		Verbosity:  globalFlags.verbosity,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	snapshotCfg, err := cfg.SnapshotConfig()
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	store, err := history.Open(cfg.State.Backend, cfg.StateDir())
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	snapshotter := snapshot.NewSnapshotter(snapshotCfg)
	log.Info("workspace opened",
		"root", cfg.Root,
		"config", cfg.Source,
		"state", cfg.StateDir(),
		"backend", cfg.State.Backend)

	return &workspace{
		cfg:         cfg,
		store:       store,
		snapshotter: snapshotter,
		checker:     uptodate.NewChecker(store, snapshotter, cfg.CheckerOptions()),
		logCloser:   logCloser,
	}, nil
}

// tasks resolves task names to tasks, in the order given. No names selects
// every configured task in declaration order.
func (w *workspace) tasks(names []string) ([]uptodate.Task, error) {
	if len(names) == 0 {
		names = w.cfg.TaskNames()
	}
	if len(names) == 0 {
		return nil, ErrNoTasks
	}

	tasks := make([]uptodate.Task, 0, len(names))
	for _, name := range names {
		tc, err := w.cfg.Task(name)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, tc.Task())
	}
	return tasks, nil
}

// Close releases the history store and the log file.
func (w *workspace) Close() error {
	return errors.Join(w.store.Close(), w.logCloser.Close())
}
