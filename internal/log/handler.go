package log

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// HandlerOptions configures a handler and where its records go.
type HandlerOptions struct {
	Level  slog.Leveler
	Format string    // "text" or "json"
	Output io.Writer // defaults to stderr; stdout belongs to command output

	// File, when set, receives a copy of every record. The file is rotated
	// once it reaches MaxSizeMB, keeping MaxBackups old files.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// NewHandler creates the handler described by opts. The closer releases the
// log file and is a no-op when File is empty.
func NewHandler(opts HandlerOptions) (slog.Handler, io.Closer) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		out = io.MultiWriter(out, rotating)
		closer = rotating
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       opts.Level,
		ReplaceAttr: renderLevel,
	}
	if opts.Format == "json" {
		return slog.NewJSONHandler(out, handlerOpts), closer
	}
	return slog.NewTextHandler(out, handlerOpts), closer
}

// renderLevel prints LevelTrace as TRACE instead of DEBUG-4.
func renderLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if l, ok := a.Value.Any().(slog.Level); ok {
		a.Value = slog.StringValue(LevelName(l))
	}
	return a
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
