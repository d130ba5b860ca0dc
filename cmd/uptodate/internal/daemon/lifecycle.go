package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// File names inside the state directory.
const (
	SocketName = "daemon.sock"
	PIDName    = "daemon.pid"
	LogName    = "daemon.log"
)

// Paths locates one project's daemon files.
type Paths struct {
	Dir    string
	Socket string
	PID    string
	Log    string
}

// StatePaths returns the daemon files kept in a project's state directory.
// There is at most one daemon per state directory.
func StatePaths(stateDir string) *Paths {
	return &Paths{
		Dir:    stateDir,
		Socket: filepath.Join(stateDir, SocketName),
		PID:    filepath.Join(stateDir, PIDName),
		Log:    filepath.Join(stateDir, LogName),
	}
}

// EnsureDir creates the state directory if needed.
func (p *Paths) EnsureDir() error {
	return os.MkdirAll(p.Dir, 0o755)
}

// WritePID records the current process ID.
func (p *Paths) WritePID() error {
	if err := p.EnsureDir(); err != nil {
		return err
	}
	return os.WriteFile(p.PID, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

// ReadPID reads the recorded process ID.
func (p *Paths) ReadPID() (int, error) {
	data, err := os.ReadFile(p.PID)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file contents: %w", err)
	}
	return pid, nil
}

// Cleanup removes the PID file and the socket. Missing files are fine.
func (p *Paths) Cleanup() error {
	var errs []error
	for _, path := range []string{p.PID, p.Socket} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err))
		}
	}
	return errors.Join(errs...)
}

// IsProcessRunning reports whether pid names a live process.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks existence without delivering anything
	return process.Signal(syscall.Signal(0)) == nil
}

// Status is what the PID file says about the daemon.
type Status struct {
	Running bool
	PID     int
	Socket  string
	Stale   bool // PID file left behind by a dead process
}

// GetStatus reads the daemon status. Nil paths read as not running.
func GetStatus(paths *Paths) *Status {
	if paths == nil {
		return &Status{}
	}
	status := &Status{Socket: paths.Socket}

	pid, err := paths.ReadPID()
	if err != nil {
		return status
	}
	status.PID = pid
	if IsProcessRunning(pid) {
		status.Running = true
	} else {
		status.Stale = true
	}
	return status
}

// CleanupStale removes files left by a daemon that is no longer running,
// including a socket without a PID file. It reports whether anything was
// removed.
func CleanupStale(paths *Paths) (bool, error) {
	if paths == nil {
		return false, nil
	}
	status := GetStatus(paths)
	if status.Running {
		return false, nil
	}

	if !status.Stale {
		if _, err := os.Stat(paths.Socket); err != nil {
			return false, nil
		}
		if err := os.Remove(paths.Socket); err != nil {
			return false, fmt.Errorf("failed to remove orphan socket: %w", err)
		}
		return true, nil
	}

	if err := paths.Cleanup(); err != nil {
		return false, err
	}
	return true, nil
}

// StopProcess asks a process to terminate.
func StopProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	return process.Signal(syscall.SIGTERM)
}

// KillProcess kills a process.
func KillProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	return process.Signal(syscall.SIGKILL)
}
