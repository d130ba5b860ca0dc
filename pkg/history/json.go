package history

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const historyDir = "history"

// JSONStore keeps one JSON file per task under <state dir>/history.
type JSONStore struct {
	dir string
}

// NewJSONStore creates a store under stateDir. Nothing is written until the
// first Save.
func NewJSONStore(stateDir string) *JSONStore {
	return &JSONStore{dir: filepath.Join(stateDir, historyDir)}
}

// Dir returns the directory holding the records.
func (s *JSONStore) Dir() string {
	return s.dir
}

func (s *JSONStore) path(task string) string {
	return filepath.Join(s.dir, url.PathEscape(task)+".json")
}

// Load reads a task's record.
func (s *JSONStore) Load(task string) (*TaskExecution, error) {
	data, err := os.ReadFile(s.path(task))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history for task %q: %w", task, err)
	}

	var e TaskExecution
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to parse history for task %q: %w", task, err)
	}
	if err := e.checkVersion(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Save writes a task's record atomically.
func (s *JSONStore) Save(e *TaskExecution) error {
	if e == nil {
		return fmt.Errorf("cannot save nil execution record")
	}
	if e.Task == "" {
		return ErrNoTask
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	e.Version = ExecutionVersion
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now()
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history for task %q: %w", e.Task, err)
	}

	path := s.path(e.Task)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp history file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename history file: %w", err)
	}
	return nil
}

// Remove deletes a task's record.
func (s *JSONStore) Remove(task string) error {
	if err := os.Remove(s.path(task)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove history for task %q: %w", task, err)
	}
	return nil
}

// Tasks lists the tasks with a record.
func (s *JSONStore) Tasks() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	var tasks []string
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".json")
		if !ok || entry.IsDir() {
			continue
		}
		task, err := url.PathUnescape(name)
		if err != nil {
			continue
		}
		tasks = append(tasks, task)
	}
	slices.Sort(tasks)
	return tasks, nil
}

// Clear removes the history directory.
func (s *JSONStore) Clear() error {
	return os.RemoveAll(s.dir)
}

// Close is a no-op.
func (s *JSONStore) Close() error {
	return nil
}
