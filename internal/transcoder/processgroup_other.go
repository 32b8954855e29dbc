//go:build !windows

package transcoder

import (
	"os/exec"
	"syscall"
)

// prepareCommand puts cmd in its own process group so a hung ffmpeg's
// spawned helper processes die with it, adapted from teacher's
// hls/processgroup_other.go.
func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killGroup sends SIGKILL to the whole process group started by
// prepareCommand, rather than just the direct child.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
