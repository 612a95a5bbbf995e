package ports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ErrProtectedPort is returned when asked to reap a port this application owns
var ErrProtectedPort = errors.New("port is protected")

// DefaultSettle is how long the reaper waits for the OS to release a socket
const DefaultSettle = 500 * time.Millisecond

// Reaper frees TCP ports by killing whatever listens on them.
type Reaper struct {
	ctrl      ProcessControl
	logger    *slog.Logger
	settle    time.Duration
	protected map[int]bool
}

// ReaperOption configures a Reaper
type ReaperOption func(*Reaper)

// WithSettle overrides the post-kill wait
func WithSettle(d time.Duration) ReaperOption {
	return func(r *Reaper) { r.settle = d }
}

// WithProtected marks ports that must never be reaped
func WithProtected(ports ...int) ReaperOption {
	return func(r *Reaper) {
		for _, p := range ports {
			r.protected[p] = true
		}
	}
}

// NewReaper creates a Reaper. AppPort is always protected.
func NewReaper(ctrl ProcessControl, logger *slog.Logger, opts ...ReaperOption) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reaper{
		ctrl:      ctrl,
		logger:    logger,
		settle:    DefaultSettle,
		protected: map[int]bool{AppPort: true},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Control returns the underlying ProcessControl
func (r *Reaper) Control() ProcessControl {
	return r.ctrl
}

// ReapPort kills every process listening on port. Nothing listening is success.
func (r *Reaper) ReapPort(ctx context.Context, port int) error {
	_, err := r.ReapPortExcept(ctx, port, nil)
	return err
}

// Listeners returns the PIDs listening on port; nothing listening yields nil.
func (r *Reaper) Listeners(ctx context.Context, port int) ([]int, error) {
	pids, err := r.ctrl.ListListeners(ctx, port)
	if errors.Is(err, ErrNoListener) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pids, nil
}

// ReapPortExcept kills the listeners on port for which keep returns false and
// returns the PIDs it killed. A nil keep kills them all. Individual kill
// failures are logged and do not stop the batch.
func (r *Reaper) ReapPortExcept(ctx context.Context, port int, keep func(pid int) bool) ([]int, error) {
	if r.protected[port] {
		return nil, fmt.Errorf("reap %d: %w", port, ErrProtectedPort)
	}

	pids, err := r.Listeners(ctx, port)
	if err != nil {
		return nil, fmt.Errorf("list listeners on %d: %w", port, err)
	}
	if len(pids) == 0 {
		r.logger.Debug("port already free", "port", port)
		return nil, nil
	}

	self := os.Getpid()
	var killed []int
	for _, pid := range pids {
		if pid <= 0 || pid == self {
			continue
		}
		if keep != nil && keep(pid) {
			r.logger.Debug("keeping listener", "port", port, "pid", pid)
			continue
		}
		if err := r.ctrl.ForceKillTree(pid); err != nil {
			r.logger.Warn("failed to kill listener", "port", port, "pid", pid, "error", err)
			continue
		}
		r.logger.Info("killed listener", "port", port, "pid", pid)
		killed = append(killed, pid)
	}

	if len(killed) > 0 && r.settle > 0 {
		select {
		case <-ctx.Done():
			return killed, ctx.Err()
		case <-time.After(r.settle):
		}
	}
	return killed, nil
}
