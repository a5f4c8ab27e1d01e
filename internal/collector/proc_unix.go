//go:build !windows

package collector

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr puts the collector in its own process group so a terminal
// interrupt aimed at the daemon does not reach an in-flight run.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func elevatePriority(pid int, p Priority) error {
	nice := -20
	if p == PriorityHigh {
		nice = -10
	}
	return unix.Setpriority(unix.PRIO_PROCESS, pid, nice)
}

// killRun kills the collector's whole process group so helpers it spawned do
// not outlive a timed-out run.
func killRun(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return cmd.Process.Kill()
	}
	return nil
}
