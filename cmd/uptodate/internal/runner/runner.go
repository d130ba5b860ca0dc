// Package runner executes task commands through a shell.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// ErrShellNotFound is returned when no shell can be located.
var ErrShellNotFound = errors.New("shell not found")

// ErrNoCommand is returned when a task declares no command.
var ErrNoCommand = errors.New("no command to run")

// Runner runs commands with "<shell> -c <command>" in a working directory.
type Runner struct {
	shell  string
	dir    string
	env    []string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Option configures a Runner.
type Option func(*Runner)

// WithShell sets the shell binary. Used primarily for testing.
func WithShell(path string) Option {
	return func(r *Runner) {
		r.shell = path
	}
}

// WithDir sets the working directory for commands.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// WithOutput redirects command stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// New creates a new Runner with the given options.
func New(opts ...Option) *Runner {
	r := &Runner{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindShell locates the shell using the following search order:
// 1. The shell set with WithShell
// 2. "sh" on PATH
func (r *Runner) FindShell() (string, error) {
	if r.shell != "" {
		if fileExists(r.shell) {
			return r.shell, nil
		}
		return "", fmt.Errorf("%w: %s", ErrShellNotFound, r.shell)
	}
	if path, err := exec.LookPath("sh"); err == nil {
		return path, nil
	}
	return "", ErrShellNotFound
}

func (r *Runner) command(ctx context.Context, command string) (*exec.Cmd, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrNoCommand
	}
	shell, err := r.FindShell()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = r.dir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	return cmd, nil
}

// Run executes command and returns after it completes. A non-zero exit is
// returned as an *exec.ExitError.
func (r *Runner) Run(ctx context.Context, command string) error {
	cmd, err := r.command(ctx, command)
	if err != nil {
		return err
	}
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	return cmd.Run()
}

// RunWithOutput executes command and captures its combined output.
func (r *Runner) RunWithOutput(ctx context.Context, command string) ([]byte, error) {
	cmd, err := r.command(ctx, command)
	if err != nil {
		return nil, err
	}
	return cmd.CombinedOutput()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
