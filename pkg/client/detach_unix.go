//go:build unix

package client

import "syscall"

// detachAttr puts the spawned daemon in its own session so it survives this
// client process exiting.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
