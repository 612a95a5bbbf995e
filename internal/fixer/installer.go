package fixer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/harshul/octo-runner/internal/executor"
	"github.com/harshul/octo-runner/internal/provisioner"
	"github.com/harshul/octo-runner/internal/toolchain"
)

// Installer adds a package to the project in cwd
type Installer interface {
	Add(ctx context.Context, cwd, pkg string) (stdout, stderr string, err error)
}

// ManagerInstaller installs packages with the project's own package manager
type ManagerInstaller struct {
	Timeout   time.Duration
	MaxOutput int
	// BrowserEnv keeps browser packages from downloading their own Chrome
	BrowserEnv map[string]string
	Resolve    func(cwd string) toolchain.Runtime
}

// NewManagerInstaller returns an installer with a 2 minute timeout and a 10MB output cap
func NewManagerInstaller() *ManagerInstaller {
	return &ManagerInstaller{
		Timeout:   2 * time.Minute,
		MaxOutput: 10 * 1024 * 1024,
		Resolve:   toolchain.Resolve,
	}
}

// Add runs the manager's add command for pkg
func (m *ManagerInstaller) Add(ctx context.Context, cwd, pkg string) (string, string, error) {
	rt := m.Resolve(cwd)
	argv := installArgv(rt, pkg)

	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Env = executor.BuildEnv(rt, executor.EnvOptions{Kind: executor.KindOneShot, Cwd: cwd, BrowserEnv: m.BrowserEnv})

	stdout, stderr, _ := executor.NewCappedPair(m.MaxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stdout.String(), stderr.String(), fmt.Errorf("%s timed out after %s", argv[0], m.Timeout)
	}
	if err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("%s: %w", argv[0], err)
	}
	return stdout.String(), stderr.String(), nil
}

// installArgv builds the add command, preferring resolved binaries over PATH
// lookups.
func installArgv(rt toolchain.Runtime, pkg string) []string {
	argv := provisioner.AddCommand(rt.Manager, pkg)

	switch {
	case rt.Manager != provisioner.NPM && rt.Manager != "" && rt.ManagerPath != "":
		argv[0] = rt.ManagerPath
	case argv[0] == "npm" && rt.NPM != "":
		argv[0] = rt.NPM
	case argv[0] == "npm" && rt.Node != "" && rt.NPMCli != "":
		argv = append([]string{rt.Node, rt.NPMCli}, argv[1:]...)
	}
	return argv
}
