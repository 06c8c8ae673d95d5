//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places cmd in a new process group so a single signal to
// -pid reaches every descendant it spawns.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
