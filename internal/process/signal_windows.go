//go:build windows

package process

import "os/exec"

// Windows has no SIGTERM for console-less children; both paths terminate.
func terminate(cmd *exec.Cmd) error { return cmd.Process.Kill() }

func kill(cmd *exec.Cmd) error { return cmd.Process.Kill() }
