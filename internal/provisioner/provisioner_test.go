package provisioner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDetectPackageManager(t *testing.T) {
	tests := []struct {
		name         string
		files        map[string]string
		wantManager  PackageManager
		wantMonorepo bool
	}{
		{
			name:        "npm fallback",
			files:       map[string]string{"package.json": `{"name":"app"}`},
			wantManager: NPM,
		},
		{
			name:        "yarn lock",
			files:       map[string]string{"package.json": `{"name":"app"}`, "yarn.lock": ""},
			wantManager: Yarn,
		},
		{
			name:         "yarn workspaces",
			files:        map[string]string{"package.json": `{"name":"app","workspaces":["packages/*"]}`, "yarn.lock": ""},
			wantManager:  Yarn,
			wantMonorepo: true,
		},
		{
			name:        "bun lock",
			files:       map[string]string{"package.json": `{}`, "bun.lockb": ""},
			wantManager: Bun,
		},
		{
			name:         "pnpm workspace with packages",
			files:        map[string]string{"package.json": `{}`, "pnpm-workspace.yaml": "packages:\n  - 'apps/*'\n  - 'packages/*'\n"},
			wantManager:  PNPM,
			wantMonorepo: true,
		},
		{
			name:        "pnpm lock beats yarn lock",
			files:       map[string]string{"package.json": `{}`, "pnpm-lock.yaml": "", "yarn.lock": ""},
			wantManager: PNPM,
		},
		{
			name:         "workspace protocol implies pnpm",
			files:        map[string]string{"package.json": `{"dependencies":{"ui":"workspace:*"}}`},
			wantManager:  PNPM,
			wantMonorepo: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}

			info := DetectPackageManager(dir)
			assert.Equal(t, tt.wantManager, info.Manager)
			assert.Equal(t, tt.wantMonorepo, info.IsMonorepo)
		})
	}
}

func TestWorkspacePackages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pnpm-workspace.yaml", "packages:\n  - apps/*\n  - packages/*\n")

	assert.Equal(t, []string{"apps/*", "packages/*"}, WorkspacePackages(dir))
	assert.Nil(t, WorkspacePackages(t.TempDir()))
}

func TestAddCommand(t *testing.T) {
	assert.Equal(t, []string{"npm", "install", "lodash"}, AddCommand(NPM, "lodash"))
	assert.Equal(t, []string{"pnpm", "add", "lodash"}, AddCommand(PNPM, "lodash"))
	assert.Equal(t, []string{"yarn", "add", "@mui/material"}, AddCommand(Yarn, "@mui/material"))
	assert.Equal(t, "bun add", AddPrefix(Bun))
	assert.Equal(t, "npm install", AddPrefix(NPM))
}

func TestManifestHas(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{
		"dependencies": {"lodash": "^4.0.0"},
		"devDependencies": {"@types/react": "^18.0.0"},
		"peerDependencies": {"react": ">=18"}
	}`)

	m, err := ReadManifest(dir)
	require.NoError(t, err)

	assert.True(t, m.Has("lodash"))
	assert.True(t, m.Has("react"))
	assert.True(t, m.Has("@types/react"))
	assert.True(t, m.Has("@types/node"), "scoped packages match on a shared scope")
	assert.False(t, m.Has("axios"))
	assert.False(t, m.Has("@mui/material"))
	assert.False(t, m.Has(""))
}

func TestReadManifest_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{not json`)

	_, err := ReadManifest(dir)
	require.Error(t, err)

	_, err = ReadManifest(t.TempDir())
	assert.True(t, os.IsNotExist(err))
}

func TestIsWarningLine(t *testing.T) {
	assert.True(t, IsWarningLine("npm WARN deprecated inflight@1.0.6"))
	assert.True(t, IsWarningLine("warning package.json: No license field"))
	assert.True(t, IsWarningLine(""))
	assert.False(t, IsWarningLine("npm ERR! code E404"))
	assert.False(t, IsWarningLine("ERR_PNPM_FETCH_404"))
}
