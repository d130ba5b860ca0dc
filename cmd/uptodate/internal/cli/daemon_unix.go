//go:build unix

package cli

import "syscall"

// daemonSysProcAttr starts the background daemon in its own session so it
// outlives the terminal.
func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
