package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/albertocavalcante/uptodate/internal/log"
)

// SQLiteStore keeps execution records in a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := log.Component("history").With("db_path", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", path, err)
	}
	// One writer at a time; SQLite serializes them anyway.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	logger.Debug("history database ready")
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const query = `
	CREATE TABLE IF NOT EXISTS task_history (
		task TEXT PRIMARY KEY,
		record TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Load reads a task's record.
func (s *SQLiteStore) Load(task string) (*TaskExecution, error) {
	var record string
	err := s.db.QueryRow(`SELECT record FROM task_history WHERE task = ?`, task).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query history for task %q: %w", task, err)
	}

	var e TaskExecution
	if err := json.Unmarshal([]byte(record), &e); err != nil {
		return nil, fmt.Errorf("failed to parse history for task %q: %w", task, err)
	}
	if err := e.checkVersion(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Save upserts a task's record.
func (s *SQLiteStore) Save(e *TaskExecution) error {
	if e == nil {
		return fmt.Errorf("cannot save nil execution record")
	}
	if e.Task == "" {
		return ErrNoTask
	}

	e.Version = ExecutionVersion
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal history for task %q: %w", e.Task, err)
	}

	const query = `INSERT INTO task_history (task, record, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(task) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`
	if _, err := s.db.Exec(query, e.Task, string(data), time.Now().UTC()); err != nil {
		s.logger.Error("failed to save execution record", "task", e.Task, "error", err)
		return fmt.Errorf("failed to save history for task %q: %w", e.Task, err)
	}
	s.logger.Debug("saved execution record", "task", e.Task)
	return nil
}

// Remove deletes a task's record.
func (s *SQLiteStore) Remove(task string) error {
	if _, err := s.db.Exec(`DELETE FROM task_history WHERE task = ?`, task); err != nil {
		return fmt.Errorf("failed to remove history for task %q: %w", task, err)
	}
	return nil
}

// Tasks lists the tasks with a record.
func (s *SQLiteStore) Tasks() ([]string, error) {
	rows, err := s.db.Query(`SELECT task FROM task_history ORDER BY task`)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var tasks []string
	for rows.Next() {
		var task string
		if err := rows.Scan(&task); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Clear removes every record.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM task_history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
