// Package registry owns every background process this application spawns
// and every port those processes claim.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/harshul/octo-runner/internal/ports"
)

// RestartFunc starts a replacement for a process that exited unexpectedly.
// The returned command must already be started.
type RestartFunc func() (*exec.Cmd, error)

// TrackOptions describes a process handed to Track
type TrackOptions struct {
	Command string
	Cwd     string
	Port    int // 0 when the process claims no port
	Restart RestartFunc
}

// TrackedProcess is a background process owned by the registry
type TrackedProcess struct {
	ID        string
	Command   string
	Cwd       string
	Port      int
	StartedAt time.Time

	mu      sync.Mutex
	cmd     *exec.Cmd
	life    Lifecycle
	restart RestartFunc
	exitErr error
	done    chan struct{}
}

// PID returns the current OS process ID, 0 if the process never started
func (p *TrackedProcess) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// State returns the lifecycle state
func (p *TrackedProcess) State() State {
	return p.life.State()
}

// Done is closed once the process has left the registry for good
func (p *TrackedProcess) Done() <-chan struct{} {
	return p.done
}

// Err returns the last exit error, if any
func (p *TrackedProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *TrackedProcess) currentCmd() *exec.Cmd {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd
}

// Registry tracks spawned processes and claimed ports. A port maps to at
// most one tracked process at a time.
type Registry struct {
	mu     sync.Mutex
	procs  map[string]*TrackedProcess
	ports  map[int]string
	claims map[int]*sync.Mutex

	reaper *ports.Reaper
	ctrl   ports.ProcessControl
	logger *slog.Logger
}

// New creates a Registry that frees ports with reaper
func New(reaper *ports.Reaper, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		procs:  make(map[string]*TrackedProcess),
		ports:  make(map[int]string),
		claims: make(map[int]*sync.Mutex),
		reaper: reaper,
		ctrl:   reaper.Control(),
		logger: logger,
	}
}

func (r *Registry) claimLock(port int) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.claims[port]
	if !ok {
		m = &sync.Mutex{}
		r.claims[port] = m
	}
	return m
}

// Claim prepares port for a new process: the prior tracked holder is stopped
// and any other listener is reaped. Claims on the same port are serialized
// until release is called, which the caller does once the new process is
// tracked.
func (r *Registry) Claim(ctx context.Context, port int) (release func(), err error) {
	m := r.claimLock(port)
	m.Lock()

	if prior, ok := r.ByPort(port); ok {
		r.logger.Info("stopping previous holder of port", "port", port, "pid", prior.PID(), "id", prior.ID)
		r.stop(prior)
	}

	if err := r.reaper.ReapPort(ctx, port); err != nil {
		m.Unlock()
		return nil, fmt.Errorf("claim port %d: %w", port, err)
	}

	var once sync.Once
	return func() { once.Do(m.Unlock) }, nil
}

// Track registers a started command and begins watching it for exit.
func (r *Registry) Track(cmd *exec.Cmd, opts TrackOptions) *TrackedProcess {
	p := &TrackedProcess{
		ID:        uuid.NewString(),
		Command:   opts.Command,
		Cwd:       opts.Cwd,
		Port:      opts.Port,
		StartedAt: time.Now(),
		cmd:       cmd,
		restart:   opts.Restart,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	var prior *TrackedProcess
	if opts.Port > 0 {
		if id, ok := r.ports[opts.Port]; ok {
			prior = r.procs[id]
		}
		r.ports[opts.Port] = p.ID
	}
	r.procs[p.ID] = p
	r.mu.Unlock()

	if prior != nil && prior != p {
		r.stop(prior)
	}

	r.logger.Info("tracking process", "id", p.ID, "pid", p.PID(), "port", p.Port, "command", p.Command)
	go r.watch(p)
	return p
}

// watch waits for p to exit and drives its lifecycle
func (r *Registry) watch(p *TrackedProcess) {
	for {
		cmd := p.currentCmd()
		err := cmd.Wait()

		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()

		state := p.life.OnExit()
		if state == RestartingOnce && p.restart != nil {
			r.logger.Warn("process exited, restarting once", "id", p.ID, "port", p.Port, "error", err)
			next, rerr := p.restart()
			if rerr == nil {
				p.mu.Lock()
				p.cmd = next
				p.mu.Unlock()
				if p.life.Restarted() == Running {
					continue
				}
				// stopped while restarting
				_ = r.ctrl.ForceKillTree(next.Process.Pid)
				_ = next.Wait()
			} else {
				r.logger.Error("restart failed", "id", p.ID, "error", rerr)
			}
		}

		if p.life.Fail() == Failed {
			r.logger.Warn("process exited", "id", p.ID, "port", p.Port, "error", err)
		}
		r.Untrack(p)
		close(p.done)
		return
	}
}

// Untrack removes p and releases its port
func (r *Registry) Untrack(p *TrackedProcess) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.procs, p.ID)
	if p.Port > 0 && r.ports[p.Port] == p.ID {
		delete(r.ports, p.Port)
	}
}

// stop terminates p on purpose; its watcher then untracks it
func (r *Registry) stop(p *TrackedProcess) {
	p.life.Stop()
	pid := p.PID()
	if pid <= 0 {
		r.Untrack(p)
		return
	}
	if err := r.ctrl.ForceKillTree(pid); err != nil {
		r.logger.Warn("failed to kill tracked process", "id", p.ID, "pid", pid, "error", err)
	}
	r.Untrack(p)
}

// Stop terminates the tracked process holding port. It reports whether
// there was one.
func (r *Registry) Stop(port int) bool {
	p, ok := r.ByPort(port)
	if !ok {
		return false
	}
	r.stop(p)
	return true
}

// ByPort returns the tracked process holding port
func (r *Registry) ByPort(port int) (*TrackedProcess, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ports[port]
	if !ok {
		return nil, false
	}
	p, ok := r.procs[id]
	return p, ok
}

// Ports returns the claimed ports in ascending order
func (r *Registry) Ports() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.ports))
	for port := range r.ports {
		out = append(out, port)
	}
	sort.Ints(out)
	return out
}

// List returns the tracked processes, oldest first
func (r *Registry) List() []*TrackedProcess {
	r.mu.Lock()
	out := make([]*TrackedProcess, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, p)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// KillAll force-kills every tracked process, reaps every claimed port and
// clears the registry. Failures are logged and joined; none stops the
// batch. Calling it again is a no-op.
func (r *Registry) KillAll(ctx context.Context) error {
	r.mu.Lock()
	procs := make([]*TrackedProcess, 0, len(r.procs))
	for _, p := range r.procs {
		procs = append(procs, p)
	}
	claimed := make([]int, 0, len(r.ports))
	for port := range r.ports {
		claimed = append(claimed, port)
	}
	r.procs = make(map[string]*TrackedProcess)
	r.ports = make(map[int]string)
	r.mu.Unlock()

	if len(procs) == 0 && len(claimed) == 0 {
		return nil
	}

	var (
		errMu sync.Mutex
		errs  []error
	)
	record := func(err error) {
		errMu.Lock()
		errs = append(errs, err)
		errMu.Unlock()
	}

	var g errgroup.Group
	for _, p := range procs {
		g.Go(func() error {
			p.life.Stop()
			pid := p.PID()
			if pid <= 0 {
				return nil
			}
			if err := r.ctrl.ForceKillTree(pid); err != nil {
				r.logger.Warn("failed to kill tracked process", "id", p.ID, "pid", pid, "error", err)
				record(fmt.Errorf("kill %d: %w", pid, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	rg, rctx := errgroup.WithContext(ctx)
	for _, port := range claimed {
		rg.Go(func() error {
			if err := r.reaper.ReapPort(rctx, port); err != nil && !errors.Is(err, ports.ErrProtectedPort) {
				r.logger.Warn("failed to reap port", "port", port, "error", err)
				record(err)
			}
			return nil
		})
	}
	_ = rg.Wait()

	r.logger.Info("killed all tracked processes", "processes", len(procs), "ports", claimed)
	return errors.Join(errs...)
}
