package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// ChangeType represents the type of file change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "+"
	ChangeModified ChangeType = "~"
	ChangeDeleted  ChangeType = "-"
)

// Logger handles watch mode output formatting.
type Logger struct {
	writer  io.Writer
	isTTY   bool
	verbose bool
	noColor bool
	jsonOut bool

	statsMu sync.Mutex
	stats   WatchStats
}

// WatchStats tracks statistics for the watch session.
type WatchStats struct {
	CheckCount int
	StaleCount int
	RunCount   int
	ErrorCount int
	StartTime  time.Time
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LoggerConfig) *Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	isTTY := false
	if f, ok := writer.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	return &Logger{
		writer:  writer,
		isTTY:   isTTY,
		verbose: cfg.Verbose,
		noColor: cfg.NoColor,
		jsonOut: cfg.JSON,
		stats: WatchStats{
			StartTime: time.Now(),
		},
	}
}

// Ready logs the initial ready message.
func (l *Logger) Ready(tasks []string, dirCount int, path string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "ready",
			"tasks": tasks,
			"dirs":  dirCount,
			"path":  path,
		})
		return
	}

	l.printf("uptodate: watching %d directories in %s\n", dirCount, path)
	if len(tasks) > 0 {
		l.printf("uptodate: tasks: ")
		for i, task := range tasks {
			if i > 0 {
				l.printf(", ")
			}
			l.printf("%s", task)
		}
		l.println()
	}
	l.println("uptodate: ready")
	l.println()
}

// FileChanged logs a file change event.
func (l *Logger) FileChanged(path string, change ChangeType) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":  "file_changed",
			"path":   path,
			"change": string(change),
			"time":   time.Now().Format(time.RFC3339),
		})
		return
	}

	if l.verbose {
		l.printf("[%s] %s %s\n", l.timestamp(), l.colorize(string(change), change), path)
	}
}

// Checking logs that a check pass is starting. paths is empty for the
// initial pass.
func (l *Logger) Checking(paths []string) {
	l.statsMu.Lock()
	l.stats.CheckCount++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "checking",
			"paths": paths,
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	switch len(paths) {
	case 0:
		l.printf("[%s] checking tasks...\n", l.timestamp())
	case 1:
		l.printf("[%s] %s changed, checking tasks...\n", l.timestamp(), paths[0])
	default:
		l.printf("[%s] %d files changed, checking tasks...\n", l.timestamp(), len(paths))
	}
}

// UpToDate logs that a task needs no work.
func (l *Logger) UpToDate(task string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "up_to_date",
			"task":  task,
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	checkmark := l.colorize("✓", ChangeAdded)
	l.printf("[%s] %s %s is up to date\n", l.timestamp(), checkmark, task)
}

// Stale logs that a task is out of date, with the reported reasons.
func (l *Logger) Stale(task string, reasons []string) {
	l.statsMu.Lock()
	l.stats.StaleCount++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":   "stale",
			"task":    task,
			"reasons": reasons,
			"time":    time.Now().Format(time.RFC3339),
		})
		return
	}

	marker := l.colorize("~", ChangeModified)
	l.printf("[%s] %s %s is out of date\n", l.timestamp(), marker, task)
	for _, reason := range reasons {
		l.printf("    %s\n", reason)
	}
}

// Ran logs the outcome of executing a task.
func (l *Logger) Ran(task string, took time.Duration, err error) {
	l.statsMu.Lock()
	l.stats.RunCount++
	if err != nil {
		l.stats.ErrorCount++
	}
	l.statsMu.Unlock()

	if l.jsonOut {
		event := map[string]any{
			"event":    "ran",
			"task":     task,
			"duration": took.String(),
			"time":     time.Now().Format(time.RFC3339),
		}
		if err != nil {
			event["error"] = err.Error()
		}
		l.writeJSON(event)
		return
	}

	if err != nil {
		xmark := l.colorize("✗", ChangeDeleted)
		l.printf("[%s] %s %s failed after %s: %v\n", l.timestamp(), xmark, task, took.Round(time.Millisecond), err)
		return
	}
	checkmark := l.colorize("✓", ChangeAdded)
	l.printf("[%s] %s %s ran in %s\n", l.timestamp(), checkmark, task, took.Round(time.Millisecond))
}

// Error logs an error.
func (l *Logger) Error(err error) {
	l.statsMu.Lock()
	l.stats.ErrorCount++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "error",
			"error": err.Error(),
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	xmark := l.colorize("✗", ChangeDeleted)
	l.printf("[%s] %s error: %v\n", l.timestamp(), xmark, err)
}

// Shutdown logs the shutdown message with statistics.
func (l *Logger) Shutdown() {
	l.statsMu.Lock()
	stats := l.stats
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":    "shutdown",
			"checks":   stats.CheckCount,
			"runs":     stats.RunCount,
			"errors":   stats.ErrorCount,
			"duration": time.Since(stats.StartTime).String(),
		})
		return
	}

	l.println()
	l.printf("uptodate: shutting down (%d checks, %d runs, %d errors)\n",
		stats.CheckCount, stats.RunCount, stats.ErrorCount)
}

// Stats returns the current watch statistics.
func (l *Logger) Stats() WatchStats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// timestamp returns the current time formatted as HH:MM:SS.
func (l *Logger) timestamp() string {
	return time.Now().Format("15:04:05")
}

// colorize applies ANSI color codes based on change type.
func (l *Logger) colorize(s string, change ChangeType) string {
	if l.noColor || !l.isTTY {
		return s
	}

	var color string
	switch change {
	case ChangeAdded:
		color = "\033[32m" // green
	case ChangeModified:
		color = "\033[33m" // yellow
	case ChangeDeleted:
		color = "\033[31m" // red
	default:
		return s
	}
	return color + s + "\033[0m"
}

// writeJSON writes a JSON object to the output.
func (l *Logger) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l.println(`{"event":"internal_error","error":"json marshal failed"}`)
		return
	}
	l.println(string(data))
}

// printf writes a formatted string to the writer, ignoring errors.
func (l *Logger) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(l.writer, format, args...)
}

// println writes a line to the writer, ignoring errors.
func (l *Logger) println(args ...any) {
	_, _ = fmt.Fprintln(l.writer, args...)
}
