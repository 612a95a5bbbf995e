package provisioner

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PackageManager represents a detected package manager
type PackageManager string

const (
	NPM  PackageManager = "npm"
	PNPM PackageManager = "pnpm"
	Yarn PackageManager = "yarn"
	Bun  PackageManager = "bun"
)

// PackageManagerInfo contains details about the detected package manager
type PackageManagerInfo struct {
	Manager        PackageManager
	LockFile       string
	InstallCommand []string
	IsMonorepo     bool
	Installed      bool
	Path           string
}

// pnpmWorkspace mirrors the parts of pnpm-workspace.yaml we care about
type pnpmWorkspace struct {
	Packages []string `yaml:"packages"`
}

// DetectPackageManager checks for lock files in the project root and returns
// the appropriate package manager. Priority: pnpm > bun > yarn > npm
func DetectPackageManager(projectPath string) PackageManagerInfo {
	info := PackageManagerInfo{
		Manager:        NPM, // Default fallback
		InstallCommand: []string{"npm", "install"},
	}

	// Check for pnpm-lock.yaml or pnpm-workspace.yaml first (highest priority)
	if fileExists(filepath.Join(projectPath, "pnpm-lock.yaml")) ||
		fileExists(filepath.Join(projectPath, "pnpm-workspace.yaml")) ||
		usesPnpmWorkspaceProtocol(projectPath) {
		info.Manager = PNPM
		info.LockFile = "pnpm-lock.yaml"
		info.IsMonorepo = detectPnpmWorkspace(projectPath)

		// Use recursive flag for monorepos
		if info.IsMonorepo {
			info.InstallCommand = []string{"pnpm", "install", "-r"}
		} else {
			info.InstallCommand = []string{"pnpm", "install"}
		}

		info.Installed, info.Path = lookManager("pnpm")
		return info
	}

	// Check for bun.lockb or bun.lock (Bun package manager)
	for _, lock := range []string{"bun.lockb", "bun.lock"} {
		if fileExists(filepath.Join(projectPath, lock)) {
			info.Manager = Bun
			info.LockFile = lock
			info.IsMonorepo = hasWorkspacesField(projectPath)
			info.InstallCommand = []string{"bun", "install"}
			info.Installed, info.Path = lookManager("bun")
			return info
		}
	}

	// Check for yarn.lock
	if fileExists(filepath.Join(projectPath, "yarn.lock")) {
		info.Manager = Yarn
		info.LockFile = "yarn.lock"
		info.IsMonorepo = hasWorkspacesField(projectPath)
		info.InstallCommand = []string{"yarn", "install"}
		info.Installed, info.Path = lookManager("yarn")
		return info
	}

	// Fallback to npm
	info.LockFile = "package-lock.json"
	info.IsMonorepo = hasWorkspacesField(projectPath)
	info.Installed, info.Path = lookManager("npm")
	return info
}

// usesPnpmWorkspaceProtocol checks if package.json uses workspace: protocol
// which is specific to pnpm and indicates the project requires pnpm
func usesPnpmWorkspaceProtocol(projectPath string) bool {
	data, err := os.ReadFile(filepath.Join(projectPath, "package.json"))
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "\"workspace:")
}

// detectPnpmWorkspace checks if this is a pnpm workspace/monorepo.
// A pnpm-workspace.yaml only counts when it actually lists packages.
func detectPnpmWorkspace(projectPath string) bool {
	if len(WorkspacePackages(projectPath)) > 0 {
		return true
	}

	// Also check for workspace: protocol in package.json dependencies
	return usesPnpmWorkspaceProtocol(projectPath)
}

// WorkspacePackages returns the package globs declared in pnpm-workspace.yaml
func WorkspacePackages(projectPath string) []string {
	data, err := os.ReadFile(filepath.Join(projectPath, "pnpm-workspace.yaml"))
	if err != nil {
		return nil
	}
	var ws pnpmWorkspace
	if err := yaml.Unmarshal(data, &ws); err != nil {
		return nil
	}
	return ws.Packages
}

// hasWorkspacesField checks for a yarn/bun/npm style "workspaces" entry
func hasWorkspacesField(projectPath string) bool {
	m, err := ReadManifest(projectPath)
	if err != nil {
		return false
	}
	return m.Workspaces != nil
}

// lookManager checks if a package manager binary is on PATH
func lookManager(manager string) (bool, string) {
	path, err := exec.LookPath(manager)
	if err != nil {
		return false, ""
	}
	return true, path
}

// InstallHint returns the installation hint for a package manager
func InstallHint(manager PackageManager) string {
	switch manager {
	case PNPM:
		return "This project requires pnpm. Please run 'corepack enable pnpm' to continue."
	case Yarn:
		return "This project requires yarn. Please run 'corepack enable yarn' to continue."
	case Bun:
		return "This project requires bun. Please install it from https://bun.sh"
	default:
		return "npm is required. Please install Node.js from https://nodejs.org"
	}
}

// AddCommand returns the argv that adds pkg as a dependency with the given manager
func AddCommand(manager PackageManager, pkg string) []string {
	switch manager {
	case PNPM:
		return []string{"pnpm", "add", pkg}
	case Yarn:
		return []string{"yarn", "add", pkg}
	case Bun:
		return []string{"bun", "add", pkg}
	default:
		return []string{"npm", "install", pkg}
	}
}

// AddPrefix returns the add command without the package, e.g. "pnpm add"
func AddPrefix(manager PackageManager) string {
	argv := AddCommand(manager, "")
	return strings.Join(argv[:len(argv)-1], " ")
}

// GetManagerName returns a user-friendly name for the package manager
func GetManagerName(manager PackageManager) string {
	switch manager {
	case PNPM:
		return "pnpm"
	case Yarn:
		return "Yarn"
	case Bun:
		return "Bun"
	case NPM:
		return "npm"
	default:
		return string(manager)
	}
}

// IsWarningLine reports whether a stderr line from a package manager is a
// warning rather than an error.
func IsWarningLine(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	if l == "" {
		return true
	}
	for _, prefix := range []string{"npm warn", "npm notice", "warn", "(node:", "deprecat", "progress:", "packages:"} {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
