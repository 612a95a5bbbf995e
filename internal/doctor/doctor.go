// Package doctor checks whether a JavaScript project can be run, served on
// the canonical ports and validated on this machine.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/joho/godotenv"

	"github.com/harshul/octo-runner/internal/provisioner"
	"github.com/harshul/octo-runner/internal/toolchain"
)

// RuntimeStatus represents the status of a runtime check
type RuntimeStatus struct {
	Name      string
	Installed bool
	Version   string
	Path      string
}

// DependencyStatus represents the status of project dependencies
type DependencyStatus struct {
	Manager          string   // npm, pnpm, yarn or bun
	ConfigFile       string   // package.json when present
	Installed        bool     // node_modules exists
	MissingPackages  []string // declared but absent from node_modules
	InstallCommand   string   // Command to install dependencies
	ManagerInstalled bool     // Is the package manager itself installed?
	ManagerHint      string   // Hint for installing the package manager
	IsMonorepo       bool
	Workspaces       []string // pnpm-workspace.yaml package globs
	NodeEngine       string   // engines.node from package.json
}

// PortStatus describes who holds a canonical port
type PortStatus struct {
	Port      int
	Role      string
	Listeners []int
	InUse     bool
	Err       error
}

// Diagnosis contains the full health check results
type Diagnosis struct {
	ProjectPath  string
	Runtime      RuntimeStatus
	Dependencies DependencyStatus
	MissingEnv   []string // keys from an example env file that nothing defines
	Browser      string
	Ports        []PortStatus
	Healthy      bool
	Issues       []string
	Warnings     []string
}

// Probes are the machine lookups a diagnosis performs
type Probes struct {
	Resolve   func(cwd string) toolchain.Runtime
	Browser   func() string
	Listeners func(ctx context.Context, port int) ([]int, error)
	// Available is the bind check used when listeners cannot be enumerated
	Available func(port int) bool
}

// Port is a canonical port and what it is for
type Port struct {
	Number int
	Role   string
}

// Diagnose checks the health of the project at projectPath
func Diagnose(ctx context.Context, projectPath string, probes Probes, ports []Port) Diagnosis {
	diagnosis := Diagnosis{
		ProjectPath: projectPath,
		Healthy:     true,
		Issues:      []string{},
	}

	rt := probes.Resolve(projectPath)
	diagnosis.Runtime = RuntimeStatus{Name: "Node.js", Installed: rt.HasNode(), Version: rt.NodeVersion, Path: rt.Node}
	diagnosis.Dependencies = checkNodeDependencies(projectPath, rt)

	if !diagnosis.Runtime.Installed {
		diagnosis.Healthy = false
		diagnosis.Issues = append(diagnosis.Issues, "Node.js runtime is not installed")
	}

	if constraint := diagnosis.Dependencies.NodeEngine; constraint != "" && diagnosis.Runtime.Installed {
		ok, err := satisfies(diagnosis.Runtime.Version, constraint)
		switch {
		case err != nil:
			diagnosis.Warnings = append(diagnosis.Warnings, fmt.Sprintf("Cannot check engines.node %q: %v", constraint, err))
		case !ok:
			diagnosis.Healthy = false
			diagnosis.Issues = append(diagnosis.Issues,
				fmt.Sprintf("Node.js v%s does not satisfy engines.node %q", diagnosis.Runtime.Version, constraint))
		}
	}

	if !diagnosis.Dependencies.ManagerInstalled && diagnosis.Dependencies.ManagerHint != "" {
		diagnosis.Healthy = false
		diagnosis.Issues = append(diagnosis.Issues, diagnosis.Dependencies.ManagerHint)
	}

	deps := diagnosis.Dependencies
	switch {
	case deps.ConfigFile == "":
		diagnosis.Healthy = false
		diagnosis.Issues = append(diagnosis.Issues, "No package.json found")
	case !deps.Installed:
		diagnosis.Healthy = false
		diagnosis.Issues = append(diagnosis.Issues, fmt.Sprintf("Dependencies are not installed (run %s)", deps.InstallCommand))
	case len(deps.MissingPackages) > 0:
		diagnosis.Warnings = append(diagnosis.Warnings,
			fmt.Sprintf("%d declared package(s) missing from node_modules: %s", len(deps.MissingPackages), strings.Join(deps.MissingPackages, ", ")))
	}

	diagnosis.MissingEnv = checkEnvStatus(projectPath)
	if len(diagnosis.MissingEnv) > 0 {
		diagnosis.Warnings = append(diagnosis.Warnings,
			fmt.Sprintf("Environment variable(s) from the example env file are not set: %s", strings.Join(diagnosis.MissingEnv, ", ")))
	}

	if probes.Browser != nil {
		diagnosis.Browser = probes.Browser()
	}
	if diagnosis.Browser == "" {
		diagnosis.Warnings = append(diagnosis.Warnings, "No headless Chrome found; pages are validated over HTTP only")
	}

	for _, p := range ports {
		status := PortStatus{Port: p.Number, Role: p.Role}
		if probes.Listeners != nil {
			status.Listeners, status.Err = probes.Listeners(ctx, p.Number)
		}
		status.InUse = len(status.Listeners) > 0
		if status.Err != nil && probes.Available != nil {
			status.InUse = !probes.Available(p.Number)
			status.Err = nil
		}
		diagnosis.Ports = append(diagnosis.Ports, status)
	}

	return diagnosis
}

// checkNodeDependencies checks if Node.js dependencies are installed
func checkNodeDependencies(projectPath string, rt toolchain.Runtime) DependencyStatus {
	info := provisioner.DetectPackageManager(projectPath)

	status := DependencyStatus{
		Manager:          provisioner.GetManagerName(info.Manager),
		InstallCommand:   strings.Join(info.InstallCommand, " "),
		ManagerInstalled: rt.ManagerPath != "" || (info.Manager == provisioner.NPM && rt.NPMCli != ""),
		IsMonorepo:       info.IsMonorepo,
		Workspaces:       provisioner.WorkspacePackages(projectPath),
	}
	if !status.ManagerInstalled {
		status.ManagerHint = provisioner.InstallHint(info.Manager)
	}

	manifest, err := provisioner.ReadManifest(projectPath)
	if err != nil {
		return status
	}
	status.ConfigFile = provisioner.ManifestFile
	status.NodeEngine = manifest.Engines["node"]

	nodeModulesPath := filepath.Join(projectPath, "node_modules")
	if _, err := os.Stat(nodeModulesPath); err != nil {
		return status
	}
	status.Installed = true

	// Workspace packages may hoist dependencies elsewhere
	if info.IsMonorepo {
		return status
	}
	for pkg := range manifest.AllDependencies() {
		if _, err := os.Stat(filepath.Join(nodeModulesPath, filepath.FromSlash(pkg))); err != nil {
			status.MissingPackages = append(status.MissingPackages, pkg)
		}
	}
	sort.Strings(status.MissingPackages)
	return status
}

// satisfies reports whether a `node --version` string meets an engines range
func satisfies(version, constraint string) (bool, error) {
	v, err := semver.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return false, fmt.Errorf("parse node version: %w", err)
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("parse constraint: %w", err)
	}
	return c.Check(v), nil
}

// exampleEnvFiles document the variables a project expects
var exampleEnvFiles = []string{".env.example", ".env.sample", ".env.template"}

// checkEnvStatus returns the example env keys that neither .env, .env.local
// nor the process environment define
func checkEnvStatus(projectPath string) []string {
	expected := make(map[string]bool)
	for _, name := range exampleEnvFiles {
		vars, err := godotenv.Read(filepath.Join(projectPath, name))
		if err != nil {
			continue
		}
		for k := range vars {
			expected[k] = true
		}
	}
	if len(expected) == 0 {
		return nil
	}

	defined := make(map[string]bool)
	for _, name := range []string{".env", ".env.local"} {
		vars, err := godotenv.Read(filepath.Join(projectPath, name))
		if err != nil {
			continue
		}
		for k := range vars {
			defined[k] = true
		}
	}

	var missing []string
	for k := range expected {
		if _, ok := os.LookupEnv(k); ok || defined[k] {
			continue
		}
		missing = append(missing, k)
	}
	sort.Strings(missing)
	return missing
}

// Report renders the diagnosis as plain text
func (d Diagnosis) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Project: %s\n", d.ProjectPath)
	if d.Runtime.Installed {
		fmt.Fprintf(&b, "Node.js: %s (%s)\n", orUnknown(d.Runtime.Version), d.Runtime.Path)
	} else {
		b.WriteString("Node.js: not found\n")
	}

	deps := d.Dependencies
	manager := deps.Manager
	if !deps.ManagerInstalled {
		manager += " (not installed)"
	}
	if deps.IsMonorepo {
		manager += ", workspace"
		if len(deps.Workspaces) > 0 {
			manager += " (" + strings.Join(deps.Workspaces, ", ") + ")"
		}
	}
	fmt.Fprintf(&b, "Package manager: %s\n", manager)

	switch {
	case deps.ConfigFile == "":
		b.WriteString("Dependencies: no package.json\n")
	case deps.Installed:
		b.WriteString("Dependencies: installed\n")
	default:
		fmt.Fprintf(&b, "Dependencies: not installed (%s)\n", deps.InstallCommand)
	}

	if d.Browser != "" {
		fmt.Fprintf(&b, "Headless browser: %s\n", d.Browser)
	} else {
		b.WriteString("Headless browser: not found\n")
	}

	for _, p := range d.Ports {
		switch {
		case p.Err != nil:
			fmt.Fprintf(&b, "Port %d (%s): unknown (%v)\n", p.Port, p.Role, p.Err)
		case !p.InUse:
			fmt.Fprintf(&b, "Port %d (%s): free\n", p.Port, p.Role)
		case len(p.Listeners) == 0:
			fmt.Fprintf(&b, "Port %d (%s): in use\n", p.Port, p.Role)
		default:
			fmt.Fprintf(&b, "Port %d (%s): in use by pid %s\n", p.Port, p.Role, joinPIDs(p.Listeners))
		}
	}

	for _, issue := range d.Issues {
		fmt.Fprintf(&b, "Issue: %s\n", issue)
	}
	for _, w := range d.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orUnknown(version string) string {
	if version == "" {
		return "unknown version"
	}
	return "v" + version
}

func joinPIDs(pids []int) string {
	parts := make([]string, len(pids))
	for i, pid := range pids {
		parts[i] = fmt.Sprint(pid)
	}
	return strings.Join(parts, ", ")
}
