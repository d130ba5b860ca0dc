package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs installs a global logger at verbosity v writing to a buffer.
func captureLogs(t *testing.T, v int, format string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	closer := Setup(Options{Verbosity: v, Format: format, Output: &buf})
	t.Cleanup(func() {
		_ = closer.Close()
		Init(VerbosityWarn, "text")
	})
	return &buf
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		expected  slog.Level
	}{
		{0, slog.LevelError},
		{-1, slog.LevelError},
		{1, slog.LevelWarn},
		{2, slog.LevelInfo},
		{3, slog.LevelDebug},
		{4, LevelTrace},
		{5, LevelTrace}, // anything > 4 maps to trace
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, VerbosityToLevel(tt.verbosity), "verbosity %d", tt.verbosity)
	}
}

func TestLevelToVerbosity(t *testing.T) {
	tests := []struct {
		level    slog.Level
		expected int
	}{
		{slog.LevelError, VerbosityError},
		{slog.LevelWarn, VerbosityWarn},
		{slog.LevelInfo, VerbosityInfo},
		{slog.LevelDebug, VerbosityDebug},
		{LevelTrace, VerbosityTrace},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, LevelToVerbosity(tt.level), "level %v", tt.level)
	}
}

func TestLevelName(t *testing.T) {
	tests := []struct {
		level    slog.Level
		expected string
	}{
		{LevelTrace, "TRACE"},
		{slog.LevelDebug - 1, "DEBUG-1"},
		{slog.LevelDebug, "DEBUG"},
		{slog.LevelInfo, "INFO"},
		{slog.LevelWarn, "WARN"},
		{slog.LevelError, "ERROR"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, LevelName(tt.level))
	}
}

func TestVerbosity(t *testing.T) {
	t.Cleanup(func() { Init(VerbosityWarn, "text") })

	Init(2, "text")
	assert.Equal(t, 2, Verbosity())

	SetVerbosity(3)
	assert.Equal(t, 3, Verbosity())
	assert.Equal(t, slog.LevelDebug, level.Level())

	SetVerbosity(0)
	assert.Equal(t, 0, Verbosity())
}

func TestV(t *testing.T) {
	buf := captureLogs(t, VerbosityInfo, "text")

	V(2).Info("should appear", "key", "value")
	assert.Contains(t, buf.String(), "should appear")

	buf.Reset()
	V(3).Info("should not appear", "key", "value")
	assert.Empty(t, buf.String(), "V(3) is silent at verbosity 2")
}

func TestLevelFiltering(t *testing.T) {
	buf := captureLogs(t, VerbosityWarn, "text")

	Info("hidden")
	Debug("hidden")
	Warn("shown")
	Error("shown too")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=WARN msg=shown")
	assert.Contains(t, out, "level=ERROR")
}

func TestWith(t *testing.T) {
	buf := captureLogs(t, VerbosityInfo, "text")

	With("store", "json").Info("opened")
	assert.Contains(t, buf.String(), "store=json")
}

func TestComponent(t *testing.T) {
	buf := captureLogs(t, VerbosityInfo, "text")

	Component("snapshot").Info("captured")
	assert.Contains(t, buf.String(), "component=snapshot")
}

func TestTask(t *testing.T) {
	buf := captureLogs(t, VerbosityInfo, "text")

	Task("checker", "compile").Info("up to date")

	out := buf.String()
	assert.Contains(t, out, "component=checker")
	assert.Contains(t, out, "task=compile")
}

func TestTrace(t *testing.T) {
	buf := captureLogs(t, VerbosityTrace, "text")

	Trace("hashed file", "path", "src/a.go")
	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	h, closer := NewHandler(HandlerOptions{Level: slog.LevelInfo, Format: "json", Output: &buf})
	defer func() { _ = closer.Close() }()

	slog.New(h).Info("test", "key", "value")
	assert.Contains(t, buf.String(), `"key":"value"`)
}

func TestNewHandler_DefaultOutput(t *testing.T) {
	h, closer := NewHandler(HandlerOptions{Level: slog.LevelInfo, Format: "text"})
	assert.NotNil(t, h)
	assert.NoError(t, closer.Close(), "no file means nothing to close")
}

func TestNewHandler_FileCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "uptodate.log")
	var buf bytes.Buffer

	h, closer := NewHandler(HandlerOptions{
		Level:      slog.LevelInfo,
		Format:     "text",
		Output:     &buf,
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	})
	slog.New(h).Info("saved execution", "task", "compile")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err, "log file not written")
	assert.Contains(t, string(data), "task=compile")
	assert.Equal(t, buf.String(), string(data), "file and output receive the same records")
}

func TestSetup_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uptodate.log")
	var buf bytes.Buffer

	closer := Setup(Options{Verbosity: VerbosityInfo, Format: "json", Output: &buf, File: path, MaxSizeMB: 1, MaxBackups: 1})
	Component("store").Info("saved execution", "task", "compile")
	require.NoError(t, closer.Close())
	Init(VerbosityWarn, "text")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, want := range []string{`"msg":"saved execution"`, `"component":"store"`, `"level":"INFO"`} {
		assert.Contains(t, string(data), want)
	}
}

func TestSetup_NoFile(t *testing.T) {
	t.Cleanup(func() { Init(VerbosityWarn, "text") })

	closer := Setup(Options{Verbosity: VerbosityDebug, Format: "text"})
	assert.NoError(t, closer.Close())
	assert.Equal(t, VerbosityDebug, Verbosity())
}
