//go:build !windows

package ports

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

type unixControl struct{}

// NewProcessControl returns the ProcessControl for this OS
func NewProcessControl() ProcessControl {
	return unixControl{}
}

func (unixControl) ListListeners(ctx context.Context, port int) ([]int, error) {
	out, err := exec.CommandContext(ctx, "lsof", "-ti", fmt.Sprintf(":%d", port), "-sTCP:LISTEN").Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return listenersFromConnections(ctx, port)
		}
		// lsof exits 1 with no output when nothing matches
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && strings.TrimSpace(string(out)) == "" {
			return nil, ErrNoListener
		}
		return nil, fmt.Errorf("lsof :%d: %w", port, err)
	}

	pids := parsePIDs(string(out))
	if len(pids) == 0 {
		return nil, ErrNoListener
	}
	return pids, nil
}

func (unixControl) ForceKill(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}

// ForceKillTree kills known descendants, then the process group, then pid.
// Shells started by `sh -c` lead their own group, so the group kill reaches
// grandchildren that escaped the descendant walk.
func (c unixControl) ForceKillTree(pid int) error {
	if p, err := process.NewProcess(int32(pid)); err == nil {
		killChildren(p)
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	return c.ForceKill(pid)
}

func killChildren(p *process.Process) {
	children, err := p.Children()
	if err != nil {
		return
	}
	for _, child := range children {
		killChildren(child)
		_ = child.Kill()
	}
}
