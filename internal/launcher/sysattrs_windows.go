//go:build windows

package launcher

import (
	"os/exec"
	"syscall"
)

// setDetachedSysProcAttr detaches the child on Windows via process creation
// flags (no setsid equivalent).
func setDetachedSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | 0x00000008, // DETACHED_PROCESS
	}
}
