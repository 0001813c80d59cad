//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// setDetachedSysProcAttr starts the child in a new session (setsid) so it is
// detached from the supervisor's controlling terminal and keeps running when
// the supervisor exits or is restarted.
func setDetachedSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
