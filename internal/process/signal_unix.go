//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// terminate sends SIGTERM to the child's process group so that wrappers
// (e.g. a JVM launcher script) go down with it.
func terminate(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

func kill(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
