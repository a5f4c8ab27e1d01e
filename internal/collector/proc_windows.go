//go:build windows

package collector

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// sysProcAttr keeps the collector's console window hidden.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}

// elevatePriority requests REALTIME_PRIORITY_CLASS for "highest". Without the
// required privilege Windows silently grants HIGH_PRIORITY_CLASS instead.
func elevatePriority(pid int, p Priority) error {
	class := uint32(windows.REALTIME_PRIORITY_CLASS)
	if p == PriorityHigh {
		class = windows.HIGH_PRIORITY_CLASS
	}
	h, err := windows.OpenProcess(windows.PROCESS_SET_INFORMATION, false, uint32(pid))
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)
	return windows.SetPriorityClass(h, class)
}

func killRun(cmd *exec.Cmd) error { return cmd.Process.Kill() }
