// Package executor runs shell commands against a project. Dev and preview
// servers become detached, tracked, port-pinned background processes;
// everything else runs synchronously with a timeout and an output cap.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harshul/octo-runner/internal/detect"
	"github.com/harshul/octo-runner/internal/ports"
	"github.com/harshul/octo-runner/internal/provisioner"
	"github.com/harshul/octo-runner/internal/registry"
	"github.com/harshul/octo-runner/internal/toolchain"
)

var selfPID = os.Getpid()

// waitDelay bounds how long Wait lingers on pipes held open by grandchildren
const waitDelay = 2 * time.Second

// Options configures an Executor. Zero values take the defaults.
type Options struct {
	DevPort     int
	PreviewPort int
	Timeout     time.Duration
	MaxOutput   int
	Settle      time.Duration
	AppRoot     string
	Dotenv      bool
	// RestartOnCrash restarts a dev server once when it exits on its own
	RestartOnCrash bool
	// LogDir holds the files detached servers write their output to
	LogDir     string
	BrowserEnv map[string]string
	Resolve    func(cwd string) toolchain.Runtime
}

func (o *Options) applyDefaults() {
	if o.DevPort == 0 {
		o.DevPort = ports.DevPort
	}
	if o.PreviewPort == 0 {
		o.PreviewPort = ports.PreviewPort
	}
	if o.Timeout == 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxOutput == 0 {
		o.MaxOutput = 10 * 1024 * 1024
	}
	if o.Settle == 0 {
		o.Settle = 4 * time.Second
	}
	if o.LogDir == "" {
		o.LogDir = filepath.Join(os.TempDir(), "octo-runner", "servers")
	}
	if o.Resolve == nil {
		o.Resolve = toolchain.Resolve
	}
}

// Executor runs commands and supervises the servers they start
type Executor struct {
	reg    *registry.Registry
	reaper *ports.Reaper
	ctrl   ports.ProcessControl
	logger *slog.Logger
	opts   Options

	// cwdOf looks up a process's working directory
	cwdOf func(pid int) (string, error)

	mu         sync.Mutex
	collectors map[string]*Collector
}

// New creates an Executor. reg and reaper must share the same ProcessControl.
func New(reg *registry.Registry, reaper *ports.Reaper, logger *slog.Logger, opts Options) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()
	return &Executor{
		reg:        reg,
		reaper:     reaper,
		ctrl:       reaper.Control(),
		logger:     logger,
		opts:       opts,
		cwdOf:      ports.ProcessCwd,
		collectors: make(map[string]*Collector),
	}
}

// Registry returns the process registry
func (e *Executor) Registry() *registry.Registry {
	return e.reg
}

// Options returns the effective options
func (e *Executor) Options() Options {
	return e.opts
}

// Run executes command in cwd and returns a human-readable result. It never
// returns an error: failures are described in the text.
func (e *Executor) Run(ctx context.Context, command, cwd string) string {
	command = strings.TrimSpace(command)
	if command == "" {
		return "Error: empty command"
	}

	dir, err := resolveDir(cwd)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	switch kind := Classify(command); kind {
	case KindDevServer:
		return e.startServer(ctx, command, dir, serverSpec{kind: kind, port: e.opts.DevPort, collect: true})
	case KindPreviewServer:
		return e.startServer(ctx, command, dir, serverSpec{kind: kind, port: e.opts.PreviewPort})
	default:
		return e.runOnce(ctx, command, dir)
	}
}

func resolveDir(cwd string) (string, error) {
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("working directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("working directory %s is not a directory", abs)
	}
	return abs, nil
}

// runOnce runs a command to completion under the timeout and output cap
func (e *Executor) runOnce(ctx context.Context, command, cwd string) string {
	if IsBrowserTest(command) {
		defer e.cleanupAutomationBrowsers(context.Background())
	}

	rt := e.opts.Resolve(cwd)
	rewritten := RewriteRuntime(command, rt)

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	cmd := shellCommand(ctx, rewritten)
	cmd.Dir = cwd
	cmd.Env = BuildEnv(rt, EnvOptions{Kind: KindOneShot, Cwd: cwd, BrowserEnv: e.opts.BrowserEnv})
	detach(cmd)
	cmd.Cancel = func() error {
		return e.ctrl.ForceKillTree(cmd.Process.Pid)
	}
	cmd.WaitDelay = waitDelay

	stdout, stderr, limit := NewCappedPair(e.opts.MaxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	e.logger.Debug("running command", "command", rewritten, "cwd", cwd)
	err := cmd.Run()
	elapsed := time.Since(start).Round(time.Millisecond)

	body := formatStreams(stdout.String(), stderr.String()) + limit.note(e.opts.MaxOutput)

	switch {
	case err == nil:
		e.logger.Info("command finished", "command", command, "elapsed", elapsed)
		if strings.TrimSpace(body) == "" {
			return "Command completed successfully with no output."
		}
		return body
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		e.logger.Warn("command timed out", "command", command, "timeout", e.opts.Timeout)
		return fmt.Sprintf("Error: command timed out after %s\n%s", e.opts.Timeout, body)
	default:
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		e.logger.Warn("command failed", "command", command, "exit_code", code, "error", err)
		if code >= 0 {
			return fmt.Sprintf("Error: command failed with exit code %d\n%s", code, body)
		}
		return fmt.Sprintf("Error: command failed: %v\n%s", err, body)
	}
}

func formatStreams(stdout, stderr string) string {
	var b strings.Builder
	if s := strings.TrimRight(stdout, "\n"); s != "" {
		b.WriteString("STDOUT:\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	if s := strings.TrimRight(stderr, "\n"); s != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("STDERR:\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

type serverSpec struct {
	kind    Kind
	port    int
	collect bool
}

// startServer frees the port, spawns the server detached and reports what
// it printed during the settle interval. The server keeps running.
func (e *Executor) startServer(ctx context.Context, command, cwd string, spec serverSpec) string {
	release, err := e.reg.Claim(ctx, spec.port)
	if err != nil {
		return fmt.Sprintf("Error: could not free port %d for the %s: %v", spec.port, spec.kind, err)
	}
	defer release()

	rt := e.opts.Resolve(cwd)
	forced := ports.ForcePort(command, spec.port, scriptFor(command, cwd))
	rewritten := RewriteRuntime(forced, rt)
	env := BuildEnv(rt, EnvOptions{
		Kind:       spec.kind,
		Port:       spec.port,
		Cwd:        cwd,
		BrowserEnv: e.opts.BrowserEnv,
		Dotenv:     e.opts.Dotenv,
	})

	logPath := serverLogPath(e.opts.LogDir, spec.kind, spec.port)
	if err := resetServerLog(logPath); err != nil {
		return fmt.Sprintf("Error: failed to start %s: %v", spec.kind, err)
	}

	// The child writes to the log file directly, never to a pipe owned by
	// this process, so it keeps running after this process exits.
	spawn := func() (*exec.Cmd, error) {
		out, err := openServerLog(logPath)
		if err != nil {
			return nil, err
		}
		defer out.Close()

		cmd := shellCommand(context.Background(), rewritten)
		cmd.Dir = cwd
		cmd.Env = env
		cmd.Stdout = out
		cmd.Stderr = out
		detach(cmd)
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return cmd, nil
	}

	col := newCollector(cwd, spec.collect, e.logger)
	fl, err := newFollower(logPath, col.writer())
	if err != nil {
		return fmt.Sprintf("Error: failed to start %s: %v", spec.kind, err)
	}

	cmd, err := spawn()
	if err != nil {
		fl.close()
		e.logger.Error("failed to start server", "command", rewritten, "error", err)
		return fmt.Sprintf("Error: failed to start %s: %v", spec.kind, err)
	}

	opts := registry.TrackOptions{Command: forced, Cwd: cwd, Port: spec.port}
	if e.opts.RestartOnCrash && spec.kind == KindDevServer {
		opts.Restart = spawn
	}
	proc := e.reg.Track(cmd, opts)
	release()
	go fl.run(proc.Done())

	if spec.collect {
		e.mu.Lock()
		e.collectors[cwd] = col
		e.mu.Unlock()
	}

	e.logger.Info("server started", "kind", spec.kind.String(), "pid", proc.PID(), "port", spec.port, "command", forced, "log", logPath)

	exited := false
	select {
	case <-time.After(e.opts.Settle):
	case <-proc.Done():
		exited = true
	case <-ctx.Done():
	}
	fl.sync()

	return summarize(spec, forced, logPath, proc, col, exited, provisioner.AddPrefix(rt.Manager))
}

func summarize(spec serverSpec, command, logPath string, proc *registry.TrackedProcess, col *Collector, exited bool, install string) string {
	var b strings.Builder

	name := strings.ToUpper(spec.kind.String()[:1]) + spec.kind.String()[1:]
	if exited {
		fmt.Fprintf(&b, "Error: %s exited during startup", spec.kind)
		if err := proc.Err(); err != nil {
			fmt.Fprintf(&b, " (%v)", err)
		}
		b.WriteString(".\n")
	} else {
		fmt.Fprintf(&b, "%s started on port %d (pid %d).\n", name, spec.port, proc.PID())
		fmt.Fprintf(&b, "URL: http://localhost:%d\n", spec.port)
	}
	fmt.Fprintf(&b, "Command: %s\n", command)
	fmt.Fprintf(&b, "Log: %s\n", logPath)

	if errs := col.Errors(); len(errs) > 0 {
		fmt.Fprintf(&b, "\nDetected %d error(s) during startup:\n", len(errs))
		b.WriteString(detect.Format(errs, install))
	}

	if tail := col.Tail(); len(tail) > 0 {
		b.WriteString("\nRecent output:\n")
		for _, line := range tail {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	} else if !exited {
		b.WriteString("\nNo output yet; the server may still be starting.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// StartupErrors returns the errors the dev server started in cwd has
// printed so far
func (e *Executor) StartupErrors(cwd string) []detect.DetectedError {
	dir, err := resolveDir(cwd)
	if err != nil {
		return nil
	}
	e.mu.Lock()
	col, ok := e.collectors[dir]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return col.Errors()
}

// KillServer stops whatever listens on the dev port, sparing processes that
// run from this application's own install root.
func (e *Executor) KillServer(ctx context.Context, cwd string) string {
	port := e.opts.DevPort

	if dir, err := resolveDir(cwd); err == nil {
		e.mu.Lock()
		delete(e.collectors, dir)
		e.mu.Unlock()
	}

	tracked := e.reg.Stop(port)

	var spared []int
	killed, err := e.reaper.ReapPortExcept(ctx, port, func(pid int) bool {
		if e.opts.AppRoot == "" {
			return false
		}
		wd, err := e.cwdOf(pid)
		if err != nil {
			return false
		}
		if ports.IsWithin(wd, e.opts.AppRoot) {
			spared = append(spared, pid)
			return true
		}
		return false
	})
	if err != nil {
		return fmt.Sprintf("Error: could not stop the dev server on port %d: %v", port, err)
	}

	if !tracked && len(killed) == 0 {
		msg := fmt.Sprintf("No dev server running on port %d; nothing to kill.", port)
		if len(spared) > 0 {
			msg += fmt.Sprintf(" Skipped %d process(es) belonging to this application.", len(spared))
		}
		return msg
	}

	msg := fmt.Sprintf("Stopped the dev server on port %d.", port)
	if len(killed) > 0 {
		msg += fmt.Sprintf(" Killed PID(s): %s.", joinInts(killed))
	}
	if len(spared) > 0 {
		msg += fmt.Sprintf(" Skipped %d process(es) belonging to this application.", len(spared))
	}
	return msg
}

// Status describes the tracked servers and what listens on the canonical ports
func (e *Executor) Status(ctx context.Context) string {
	var b strings.Builder

	procs := e.reg.List()
	if len(procs) == 0 {
		b.WriteString("No tracked servers.\n")
	} else {
		b.WriteString("Tracked servers:\n")
		for _, p := range procs {
			fmt.Fprintf(&b, "  port %d  pid %d  %s  up %s  %s\n",
				p.Port, p.PID(), p.State(), time.Since(p.StartedAt).Round(time.Second), p.Command)
		}
	}

	b.WriteString("\nCanonical ports:\n")
	for _, port := range []int{e.opts.DevPort, e.opts.PreviewPort, ports.AppPort} {
		pids, err := e.reaper.Listeners(ctx, port)
		switch {
		case err != nil:
			fmt.Fprintf(&b, "  %d: unknown (%v)\n", port, err)
		case len(pids) == 0:
			fmt.Fprintf(&b, "  %d: free\n", port)
		default:
			for _, pid := range pids {
				fmt.Fprintf(&b, "  %d: %s\n", port, ports.Describe(pid))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Shutdown kills every tracked server and reaps every claimed port
func (e *Executor) Shutdown(ctx context.Context) error {
	return e.reg.KillAll(ctx)
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
