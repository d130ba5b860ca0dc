package history

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Backends accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// ErrNoTask is returned when saving a record without a task name.
var ErrNoTask = errors.New("execution record has no task name")

// Store persists task execution records, one per task.
type Store interface {
	// Load returns the task's record, or nil and no error when there is none.
	Load(task string) (*TaskExecution, error)
	// Save replaces the task's record.
	Save(e *TaskExecution) error
	// Remove deletes the task's record. Removing an absent record is not an error.
	Remove(task string) error
	// Tasks lists the tasks that have a record, sorted.
	Tasks() ([]string, error)
	// Clear removes every record.
	Clear() error
	Close() error
}

// Open returns the store for backend rooted at stateDir.
func Open(backend, stateDir string) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return NewJSONStore(stateDir), nil
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(stateDir, "history.db"))
	default:
		return nil, fmt.Errorf("unknown history backend %q (want %s or %s)", backend, BackendJSON, BackendSQLite)
	}
}
