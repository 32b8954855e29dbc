//go:build windows

package transcoder

import (
	"os/exec"
	"strconv"
	"syscall"
)

// prepareCommand is a no-op on Windows; killGroup uses taskkill /T instead
// of a process-group signal, adapted from teacher's hls/processgroup_win.go.
func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: 0x00000200} // CREATE_NEW_PROCESS_GROUP
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid))
	return kill.Run()
}
