//go:build !windows

package executor

import (
	"context"
	"os/exec"
	"syscall"
)

const isWindows = false

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	return exec.CommandContext(ctx, "sh", "-c", command)
}

// detach puts the child in its own process group so terminal signals aimed
// at this process do not reach it and the whole group can be killed at once.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
