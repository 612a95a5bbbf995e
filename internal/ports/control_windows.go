//go:build windows

package ports

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

type windowsControl struct{}

// NewProcessControl returns the ProcessControl for this OS
func NewProcessControl() ProcessControl {
	return windowsControl{}
}

func (windowsControl) ListListeners(ctx context.Context, port int) ([]int, error) {
	out, err := exec.CommandContext(ctx, "netstat", "-ano", "-p", "tcp").Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return listenersFromConnections(ctx, port)
		}
		return nil, fmt.Errorf("netstat: %w", err)
	}

	pids := parseNetstat(string(out), port)
	if len(pids) == 0 {
		return nil, ErrNoListener
	}
	return pids, nil
}

func (windowsControl) ForceKill(pid int) error {
	return taskkill("/F", "/PID", strconv.Itoa(pid))
}

func (windowsControl) ForceKillTree(pid int) error {
	return taskkill("/F", "/T", "/PID", strconv.Itoa(pid))
}

func taskkill(args ...string) error {
	out, err := exec.Command("taskkill", args...).CombinedOutput()
	if err != nil {
		// 128: the process is already gone
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 128 {
			return nil
		}
		return fmt.Errorf("taskkill %v: %w: %s", args, err, out)
	}
	return nil
}
