//go:build unix

package engine

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// isolate runs cmd in its own process group and kills the whole group when
// the task is cancelled, so programs started by the command do not outlive it.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
}
