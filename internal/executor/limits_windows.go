//go:build windows

package executor

import "os/exec"

// setProcessGroup is a no-op on Windows; installers are POSIX-only and the
// pull command does not fork helpers there.
func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
