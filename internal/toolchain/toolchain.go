// Package toolchain resolves the Node runtime, package manager and headless
// browser that spawned project commands should use.
package toolchain

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/harshul/octo-runner/internal/provisioner"
)

// Runtime is the resolved set of binaries and environment for a project
type Runtime struct {
	Node        string // absolute path to node, empty when not on PATH
	NodeVersion string
	NPM         string // absolute path to npm, empty when not on PATH
	NPMCli      string // npm's entry script, used when npm itself is not resolvable
	Manager     provisioner.PackageManager
	ManagerPath string
	Env         map[string]string
}

// NodeDir returns the directory holding the node binary
func (r Runtime) NodeDir() string {
	if r.Node == "" {
		return ""
	}
	return filepath.Dir(r.Node)
}

// HasNode reports whether a node binary was found
func (r Runtime) HasNode() bool {
	return r.Node != ""
}

// Resolve looks up node, npm and the project's package manager for cwd.
func Resolve(cwd string) Runtime {
	rt := Runtime{Env: map[string]string{}}

	if path, err := exec.LookPath("node"); err == nil {
		rt.Node = absPath(path)
		rt.NodeVersion = nodeVersion(rt.Node)
	}
	if path, err := exec.LookPath("npm"); err == nil {
		rt.NPM = absPath(path)
	}
	if rt.Node != "" {
		rt.NPMCli = npmCliFor(rt.Node)
	}

	info := provisioner.DetectPackageManager(cwd)
	rt.Manager = info.Manager
	if info.Installed {
		rt.ManagerPath = absPath(info.Path)
	}

	rt.Env = managerEnv(rt)
	return rt
}

// nodeVersion runs `node --version`; an empty string means it failed.
func nodeVersion(node string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, node, "--version").Output()
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.TrimSpace(string(out)), "v")
}

// npmCliFor finds npm-cli.js relative to a node binary. Unix installs keep it
// under lib/node_modules, Windows installs next to node.exe.
func npmCliFor(node string) string {
	dir := filepath.Dir(node)
	candidates := []string{
		filepath.Join(dir, "..", "lib", "node_modules", "npm", "bin", "npm-cli.js"),
		filepath.Join(dir, "node_modules", "npm", "bin", "npm-cli.js"),
	}
	for _, c := range candidates {
		if fileExists(c) {
			return filepath.Clean(c)
		}
	}
	return ""
}

// managerEnv returns the package-manager variables injected into every
// spawned command. npm_config_user_agent lets tools like turbo pick the
// right manager.
func managerEnv(rt Runtime) map[string]string {
	env := map[string]string{
		"COREPACK_ENABLE_DOWNLOAD_PROMPT": "0",
		"npm_config_update_notifier":      "false",
		"npm_config_fund":                 "false",
	}

	agent := string(rt.Manager)
	if rt.NodeVersion != "" {
		agent += " node/v" + rt.NodeVersion
	}
	agent += " " + runtime.GOOS + " " + runtime.GOARCH
	env["npm_config_user_agent"] = agent
	return env
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
