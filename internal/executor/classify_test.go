package executor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshul/octo-runner/internal/provisioner"
	"github.com/harshul/octo-runner/internal/toolchain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		command string
		want    Kind
	}{
		{"npm run dev", KindDevServer},
		{"pnpm dev", KindDevServer},
		{"yarn start", KindDevServer},
		{"bun run dev --host", KindDevServer},
		{"npx vite", KindDevServer},
		{"vite --port 5173", KindDevServer},
		{"vite", KindDevServer},
		{"next dev", KindDevServer},
		{"ng serve", KindDevServer},
		{"cd web && npm run dev", KindDevServer},
		{"npm run preview", KindPreviewServer},
		{"vite preview", KindPreviewServer},
		{"npm run build && npm run preview", KindPreviewServer},
		{"next start", KindPreviewServer},
		{"npm install", KindOneShot},
		{"npm run build", KindOneShot},
		{"vite build", KindOneShot},
		{"npx vitest run", KindOneShot},
		{"ls -la", KindOneShot},
		{"npm test", KindOneShot},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.command))
		})
	}
}

func TestIsBrowserTest(t *testing.T) {
	assert.True(t, IsBrowserTest("npx playwright test"))
	assert.True(t, IsBrowserTest("npm run test:e2e"))
	assert.True(t, IsBrowserTest("node scripts/puppeteer-check.js"))
	assert.True(t, IsBrowserTest("cypress run"))
	assert.False(t, IsBrowserTest("npm test"))
	assert.False(t, IsBrowserTest("npm run dev"))
}

func TestScriptFor(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{
		"scripts": {"dev": "vite", "start": "react-scripts start", "preview": "vite preview"}
	}`), 0o644))

	assert.Equal(t, "vite", scriptFor("npm run dev", dir))
	assert.Equal(t, "react-scripts start", scriptFor("npm start", dir))
	assert.Equal(t, "vite preview", scriptFor("pnpm preview", dir))
	assert.Empty(t, scriptFor("vite", dir))
	assert.Empty(t, scriptFor("npm run dev", t.TempDir()))
}

func TestRewriteRuntime(t *testing.T) {
	rt := toolchain.Runtime{
		Node:        "/opt/node/bin/node",
		NPM:         "/opt/node/bin/npm",
		Manager:     provisioner.PNPM,
		ManagerPath: "/opt/pnpm/pnpm",
	}

	tests := []struct {
		command string
		want    string
	}{
		{"npm install", "/opt/node/bin/npm install"},
		{"node server.js", "/opt/node/bin/node server.js"},
		{"npm run build && npm run preview", "/opt/node/bin/npm run build && /opt/node/bin/npm run preview"},
		{"NODE_ENV=production node  dist/index.js", "NODE_ENV=production /opt/node/bin/node  dist/index.js"},
		{"pnpm dev", "/opt/pnpm/pnpm dev"},
		{"yarn dev", "yarn dev"},
		{"echo npm is great", "echo npm is great"},
		{"cat nodes.txt", "cat nodes.txt"},
		{"(cd web; npm test)", "(cd web; /opt/node/bin/npm test)"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.want, RewriteRuntime(tt.command, rt))
		})
	}
}

func TestRewriteRuntime_FallsBackToEntryScript(t *testing.T) {
	root := t.TempDir()
	cliDir := filepath.Join(root, "lib", "node_modules", "npm", "bin")
	require.NoError(t, os.MkdirAll(cliDir, 0o755))
	npmCli := filepath.Join(cliDir, "npm-cli.js")
	npxCli := filepath.Join(cliDir, "npx-cli.js")
	require.NoError(t, os.WriteFile(npmCli, nil, 0o644))
	require.NoError(t, os.WriteFile(npxCli, nil, 0o644))

	rt := toolchain.Runtime{Node: "/opt/node/bin/node", NPMCli: npmCli}

	assert.Equal(t, "/opt/node/bin/node "+npmCli+" install", RewriteRuntime("npm install", rt))
	assert.Equal(t, "/opt/node/bin/node "+npxCli+" vite", RewriteRuntime("npx vite", rt))
}

func TestRewriteRuntime_QuotesPathsWithSpaces(t *testing.T) {
	rt := toolchain.Runtime{Node: "/Program Files/nodejs/node"}
	assert.Equal(t, `"/Program Files/nodejs/node" app.js`, RewriteRuntime("node app.js", rt))
}

func TestRewriteRuntime_NothingResolved(t *testing.T) {
	assert.Equal(t, "npm run dev", RewriteRuntime("npm run dev", toolchain.Runtime{}))
}

func envLookup(env []string, key string) (string, bool) {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

func TestBuildEnv_OneShot(t *testing.T) {
	t.Setenv("PATH", "/usr/bin"+string(os.PathListSeparator)+"/bin")

	rt := toolchain.Runtime{Node: "/opt/node/bin/node", Env: map[string]string{"npm_config_fund": "false"}}
	env := BuildEnv(rt, EnvOptions{Kind: KindOneShot, BrowserEnv: map[string]string{"PUPPETEER_SKIP_DOWNLOAD": "1"}})

	path, ok := envLookup(env, "PATH")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(path, "/opt/node/bin"+string(os.PathListSeparator)), path)

	v, _ := envLookup(env, "npm_config_fund")
	assert.Equal(t, "false", v)
	v, _ = envLookup(env, "PUPPETEER_SKIP_DOWNLOAD")
	assert.Equal(t, "1", v)

	_, ok = envLookup(env, "BROWSER")
	if os.Getenv("BROWSER") == "" {
		assert.False(t, ok, "one-shot commands keep the caller's browser setting")
	}
}

func TestBuildEnv_Server(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VITE_API_URL=http://api.local\nPORT=9999\n"), 0o644))

	env := BuildEnv(toolchain.Runtime{}, EnvOptions{Kind: KindDevServer, Port: 3000, Cwd: dir, Dotenv: true})

	v, _ := envLookup(env, "BROWSER")
	assert.Equal(t, "none", v)
	v, _ = envLookup(env, "PORT")
	assert.Equal(t, "3000", v, ".env must not override the pinned port")
	v, _ = envLookup(env, "NUXT_PORT")
	assert.Equal(t, "3000", v)
	v, _ = envLookup(env, "VITE_API_URL")
	assert.Equal(t, "http://api.local", v)
}

func TestBuildEnv_ServerProjectBinaries(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "node_modules", ".bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))

	rt := toolchain.Runtime{Node: "/opt/node/bin/node"}
	env := BuildEnv(rt, EnvOptions{Kind: KindDevServer, Port: 3000, Cwd: dir})

	path, _ := envLookup(env, "PATH")
	parts := filepath.SplitList(path)
	require.GreaterOrEqual(t, len(parts), 2)
	assert.Equal(t, "/opt/node/bin", parts[0])
	assert.Equal(t, bin, parts[1])

	env = BuildEnv(rt, EnvOptions{Kind: KindOneShot, Cwd: dir})
	path, _ = envLookup(env, "PATH")
	assert.NotContains(t, filepath.SplitList(path), bin)
}

func TestBuildEnv_DotenvDisabled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OCTO_TEST_ONLY=1\n"), 0o644))

	env := BuildEnv(toolchain.Runtime{}, EnvOptions{Kind: KindPreviewServer, Port: 4173, Cwd: dir})

	_, ok := envLookup(env, "OCTO_TEST_ONLY")
	assert.False(t, ok)
}
