//go:build windows

package executor

import (
	"context"
	"os/exec"
	"syscall"
)

const isWindows = true

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	return exec.CommandContext(ctx, "cmd", "/C", command)
}

// detach starts the child in a new process group so console Ctrl+C events
// aimed at this process do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
