//go:build !windows

package health

import (
	"os/exec"
	"syscall"
)

// detach puts the server in its own session so a terminal hangup or a
// signal to zamad's process group does not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
