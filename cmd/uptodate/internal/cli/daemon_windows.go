//go:build windows

package cli

import "syscall"

// daemonSysProcAttr starts the background daemon in a new process group so
// console signals sent to the parent do not reach it.
func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
