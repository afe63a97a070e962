//go:build windows

package command

import "os/exec"

// killProcessGroupOnCancel keeps the os/exec default: the process is killed
// when the context ends. Windows has no process groups to signal here.
func killProcessGroupOnCancel(cmd *exec.Cmd) {}
