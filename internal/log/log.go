// Package log provides leveled structured logging for uptodate.
// It wraps log/slog with kubectl-style -v verbosity and optional rotating
// file output.
package log

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
)

var (
	logger    atomic.Pointer[slog.Logger]
	level     *slog.LevelVar
	verbosity atomic.Int32
)

func init() {
	level = new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	h, _ := NewHandler(HandlerOptions{Level: level, Format: "text"})
	logger.Store(slog.New(h))
}

// Options configures Setup.
type Options struct {
	Verbosity int
	Format    string    // "text" or "json"
	Output    io.Writer // defaults to stderr

	// File, when set, receives a copy of every record. The file is rotated
	// once it reaches MaxSizeMB, keeping MaxBackups old files.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Setup installs the global logger. The returned closer releases the log
// file, if any; it is safe to call when no file was configured.
func Setup(opts Options) io.Closer {
	verbosity.Store(int32(opts.Verbosity))
	level.Set(VerbosityToLevel(opts.Verbosity))

	h, closer := NewHandler(HandlerOptions{
		Level:      level,
		Format:     opts.Format,
		Output:     opts.Output,
		File:       opts.File,
		MaxSizeMB:  opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	})
	l := slog.New(h)
	logger.Store(l)
	slog.SetDefault(l)
	return closer
}

// Init installs a stderr-only logger.
func Init(v int, format string) {
	Setup(Options{Verbosity: v, Format: format})
}

// SetVerbosity changes verbosity at runtime.
func SetVerbosity(v int) {
	verbosity.Store(int32(v))
	level.Set(VerbosityToLevel(v))
}

// Verbosity returns the current verbosity level.
func Verbosity() int {
	return int(verbosity.Load())
}

// Logger returns the current logger instance.
func Logger() *slog.Logger {
	return logger.Load()
}

// Error logs at error level (v=0).
func Error(msg string, args ...any) {
	logger.Load().Error(msg, args...)
}

// Warn logs at warn level (v=1).
func Warn(msg string, args ...any) {
	logger.Load().Warn(msg, args...)
}

// Info logs at info level (v=2).
func Info(msg string, args ...any) {
	logger.Load().Info(msg, args...)
}

// Debug logs at debug level (v=3).
func Debug(msg string, args ...any) {
	logger.Load().Debug(msg, args...)
}

// Trace logs at trace level (v=4).
func Trace(msg string, args ...any) {
	logger.Load().Log(context.Background(), LevelTrace, msg, args...)
}

// V returns a logger that only logs if verbosity >= v.
//
//	log.V(3).Info("snapshot reused", "files", key)
func V(v int) *slog.Logger {
	if int(verbosity.Load()) >= v {
		return logger.Load()
	}
	return slog.New(slog.DiscardHandler)
}

// With returns a logger with additional context.
func With(args ...any) *slog.Logger {
	return logger.Load().With(args...)
}

// Component returns a logger tagged with a component name.
func Component(name string) *slog.Logger {
	return logger.Load().With("component", name)
}

// Task returns a component logger further tagged with a task name.
func Task(component, task string) *slog.Logger {
	return Component(component).With("task", task)
}
