//go:build unix

package executor

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup arranges for cmd's child (and anything it forks, e.g. a
// shell running a piped prover invocation) to live in its own process
// group, so the watchdog can kill the whole group rather than just the
// immediate child (spec §4.2 step 3).
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the process group led by pid (spec
// §4.2 step 3: "sends a terminal signal to the child's process group").
func killProcessGroup(pid int) error {
	return unix.Kill(-pid, unix.SIGKILL)
}
