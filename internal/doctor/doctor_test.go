package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshul/octo-runner/internal/provisioner"
	"github.com/harshul/octo-runner/internal/toolchain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fakeProbes(node, browser string, listeners map[int][]int) Probes {
	return Probes{
		Resolve: func(string) toolchain.Runtime {
			rt := toolchain.Runtime{Manager: provisioner.NPM}
			if node != "" {
				rt.Node = node
				rt.NodeVersion = "20.11.0"
				rt.ManagerPath = filepath.Join(filepath.Dir(node), "npm")
			}
			return rt
		},
		Browser: func() string { return browser },
		Listeners: func(_ context.Context, port int) ([]int, error) {
			if port == 9999 {
				return nil, errors.New("lsof missing")
			}
			return listeners[port], nil
		},
	}
}

var canonical = []Port{{3000, "dev"}, {4173, "preview"}, {5173, "app"}}

func TestDiagnose_Healthy(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"dependencies":{"react":"^18.0.0","@tanstack/query":"^5.0.0"}}`)
	writeFile(t, filepath.Join(dir, "node_modules", "react", "package.json"), `{}`)
	writeFile(t, filepath.Join(dir, "node_modules", "@tanstack", "query", "package.json"), `{}`)

	d := Diagnose(context.Background(), dir, fakeProbes("/usr/bin/node", "/usr/bin/chromium", map[int][]int{5173: {42}}), canonical)

	assert.True(t, d.Healthy)
	assert.Empty(t, d.Issues)
	assert.Empty(t, d.Warnings)
	assert.True(t, d.Dependencies.Installed)
	assert.Empty(t, d.Dependencies.MissingPackages)
	require.Len(t, d.Ports, 3)
	assert.Equal(t, []int{42}, d.Ports[2].Listeners)

	report := d.Report()
	assert.Contains(t, report, "Node.js: v20.11.0 (/usr/bin/node)")
	assert.Contains(t, report, "Port 3000 (dev): free")
	assert.Contains(t, report, "Port 5173 (app): in use by pid 42")
}

func TestDiagnose_MissingPackages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"dependencies":{"react":"^18.0.0","zod":"^3.0.0"},"devDependencies":{"vite":"^5.0.0"}}`)
	writeFile(t, filepath.Join(dir, "node_modules", "react", "index.js"), ``)

	d := Diagnose(context.Background(), dir, fakeProbes("/usr/bin/node", "/usr/bin/chromium", nil), nil)

	assert.True(t, d.Healthy)
	assert.Equal(t, []string{"vite", "zod"}, d.Dependencies.MissingPackages)
	require.Len(t, d.Warnings, 1)
	assert.Contains(t, d.Warnings[0], "vite, zod")
}

func TestDiagnose_Problems(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
		issue string
	}{
		{
			name:  "no manifest",
			setup: func(*testing.T, string) {},
			issue: "No package.json found",
		},
		{
			name: "not installed",
			setup: func(t *testing.T, dir string) {
				writeFile(t, filepath.Join(dir, "package.json"), `{"dependencies":{"react":"^18.0.0"}}`)
			},
			issue: "Dependencies are not installed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)

			d := Diagnose(context.Background(), dir, fakeProbes("", "", nil), []Port{{9999, "dev"}})

			assert.False(t, d.Healthy)
			assert.Contains(t, d.Issues, "Node.js runtime is not installed")
			assert.Contains(t, d.Issues, provisioner.InstallHint(provisioner.NPM))
			assert.Condition(t, func() bool {
				for _, issue := range d.Issues {
					if strings.HasPrefix(issue, tt.issue) {
						return true
					}
				}
				return false
			})
			assert.Contains(t, d.Warnings, "No headless Chrome found; pages are validated over HTTP only")

			report := d.Report()
			assert.Contains(t, report, "Node.js: not found")
			assert.Contains(t, report, "Headless browser: not found")
			assert.Contains(t, report, "Port 9999 (dev): unknown (lsof missing)")
		})
	}
}

func TestDiagnose_MissingEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{}`)
	writeFile(t, filepath.Join(dir, "node_modules", ".keep"), ``)
	writeFile(t, filepath.Join(dir, ".env.example"), "VITE_API_URL=http://localhost:8080\nOCTO_DOCTOR_TEST_TOKEN=\nOCTO_DOCTOR_TEST_SET=\n")
	writeFile(t, filepath.Join(dir, ".env"), "VITE_API_URL=https://api.example.com\n")
	t.Setenv("OCTO_DOCTOR_TEST_SET", "1")

	d := Diagnose(context.Background(), dir, fakeProbes("/usr/bin/node", "/usr/bin/chromium", nil), nil)

	assert.True(t, d.Healthy)
	assert.Equal(t, []string{"OCTO_DOCTOR_TEST_TOKEN"}, d.MissingEnv)
	assert.Contains(t, d.Report(), "Warning: Environment variable(s) from the example env file are not set: OCTO_DOCTOR_TEST_TOKEN")
}

func TestDiagnose_BindFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{}`)
	writeFile(t, filepath.Join(dir, "pnpm-workspace.yaml"), "packages:\n  - apps/*\n")
	writeFile(t, filepath.Join(dir, "node_modules", ".keep"), ``)

	probes := fakeProbes("/usr/bin/node", "/usr/bin/chromium", nil)
	probes.Available = func(port int) bool { return port != 9999 }

	d := Diagnose(context.Background(), dir, probes, []Port{{9999, "dev"}})

	require.Len(t, d.Ports, 1)
	assert.NoError(t, d.Ports[0].Err)
	assert.True(t, d.Ports[0].InUse)
	assert.Equal(t, []string{"apps/*"}, d.Dependencies.Workspaces)

	report := d.Report()
	assert.Contains(t, report, "Port 9999 (dev): in use\n")
	assert.Contains(t, report, "workspace (apps/*)")
}

func TestDiagnose_NodeEngine(t *testing.T) {
	tests := []struct {
		name       string
		engine     string
		healthy    bool
		issue      string
		warningHas string
	}{
		{name: "satisfied", engine: ">=18", healthy: true},
		{name: "caret range", engine: "^20.10.0", healthy: true},
		{name: "too old", engine: ">=22", healthy: false, issue: `Node.js v20.11.0 does not satisfy engines.node ">=22"`},
		{name: "unparseable", engine: "lts please", healthy: true, warningHas: "Cannot check engines.node"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "package.json"), `{"engines":{"node":"`+tt.engine+`"}}`)
			writeFile(t, filepath.Join(dir, "node_modules", ".keep"), ``)

			d := Diagnose(context.Background(), dir, fakeProbes("/usr/bin/node", "/usr/bin/chromium", nil), nil)

			assert.Equal(t, tt.healthy, d.Healthy)
			assert.Equal(t, tt.engine, d.Dependencies.NodeEngine)
			if tt.issue != "" {
				assert.Contains(t, d.Issues, tt.issue)
			}
			if tt.warningHas != "" {
				require.NotEmpty(t, d.Warnings)
				assert.Contains(t, d.Warnings[0], tt.warningHas)
			}
		})
	}
}
