package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPackageName(t *testing.T) {
	tests := []struct {
		specifier string
		want      string
	}{
		{"lodash", "lodash"},
		{"lodash/debounce", "lodash"},
		{"lodash/debounce.js", "lodash"},
		{"@mui/material", "@mui/material"},
		{"@mui/material/Button", "@mui/material"},
		{"@tanstack/react-query/build/index.mjs", "@tanstack/react-query"},
		{"@scope", "@scope"},
		{"react-dom/client?v=123", "react-dom"},
	}

	for _, tt := range tests {
		t.Run(tt.specifier, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPackageName(tt.specifier))
		})
	}
}

func TestFromOutput_CannotFindModule(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		wantPkg string
	}{
		{"plain", "Error: Cannot find module 'express'", "express"},
		{"subpath", "Error: Cannot find module 'date-fns/format'", "date-fns"},
		{"scoped", "Error: Cannot find module '@nestjs/core/router'", "@nestjs/core"},
		{"double quoted", `Cannot find module "axios"`, "axios"},
		{"with require stack", "Error: Cannot find module 'chalk'\nRequire stack:\n- /app/index.js", "chalk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := FromOutput(tt.output, "/app")
			require.Len(t, errs, 1)
			assert.Equal(t, MissingDependency, errs[0].Type)
			assert.Equal(t, tt.wantPkg, errs[0].PackageName)
			assert.True(t, errs[0].Fixable)
		})
	}
}

func TestFromOutput_FailedToResolveBareImport(t *testing.T) {
	errs := FromOutput(`Failed to resolve import "lodash/debounce"`, "/app")

	require.Len(t, errs, 1)
	assert.Equal(t, MissingDependency, errs[0].Type)
	assert.Equal(t, "lodash", errs[0].PackageName)
	assert.True(t, errs[0].Fixable)
}

func TestFromOutput_ViteImportAnalysisWithFileLine(t *testing.T) {
	output := "\x1b[31m[vite] Internal server error: Failed to resolve import \"./components/Header\" from \"src/App.tsx\". Does the file exist?\x1b[39m\n" +
		"  Plugin: vite:import-analysis\n" +
		"  File: /app/src/App.tsx:3:20\n"

	errs := FromOutput(output, "/app")

	require.Len(t, errs, 1)
	e := errs[0]
	assert.Equal(t, ImportError, e.Type)
	assert.Equal(t, "./components/Header", e.ImportPath)
	assert.Equal(t, "/app/src/App.tsx", e.FilePath)
	assert.Equal(t, 3, e.Line)
	assert.Equal(t, 20, e.Column)
	assert.True(t, e.Fixable)
}

func TestFromOutput_StylesheetImportIsCSSError(t *testing.T) {
	errs := FromOutput(`[plugin:vite:import-analysis] Failed to resolve import "./styles/main.scss" from "src/main.ts". Does the file exist?`, "/app")

	require.Len(t, errs, 1)
	assert.Equal(t, CSSError, errs[0].Type)
	assert.Equal(t, "./styles/main.scss", errs[0].ImportPath)
	assert.Equal(t, "/app/src/main.ts", errs[0].FilePath)
}

func TestFromOutput_ModuleNotFound(t *testing.T) {
	errs := FromOutput("Module not found: Error: Can't resolve 'react-router-dom' in '/app/src'", "/app")

	require.Len(t, errs, 1)
	assert.Equal(t, MissingDependency, errs[0].Type)
	assert.Equal(t, "react-router-dom", errs[0].PackageName)
}

func TestFromOutput_EsbuildCouldNotResolve(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		wantType ErrorType
		wantPkg  string
		wantFile string
		wantLine int
	}{
		{
			name:     "bare package with location",
			output:   `src/App.tsx:1:19: ERROR: Could not resolve "lodash"`,
			wantType: MissingDependency,
			wantPkg:  "lodash",
			wantFile: "/app/src/App.tsx",
			wantLine: 1,
		},
		{
			name:     "boxed format",
			output:   `✘ [ERROR] Could not resolve "@tanstack/react-query/devtools"`,
			wantType: MissingDependency,
			wantPkg:  "@tanstack/react-query",
		},
		{
			name:     "relative file",
			output:   `src/main.ts:2:7: ERROR: Could not resolve "./missing"`,
			wantType: ImportError,
			wantFile: "/app/src/main.ts",
			wantLine: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := FromOutput(tt.output, "/app")
			require.Len(t, errs, 1)
			e := errs[0]
			assert.Equal(t, tt.wantType, e.Type)
			assert.True(t, e.Fixable)
			assert.Equal(t, tt.wantPkg, e.PackageName)
			assert.Equal(t, tt.wantFile, e.FilePath)
			assert.Equal(t, tt.wantLine, e.Line)
		})
	}
}

func TestFromOutput_EsbuildNonSyntaxErrorIgnored(t *testing.T) {
	assert.Empty(t, FromOutput(`src/App.tsx:4:0: ERROR: Top-level await is not available in the configured target environment`, "/app"))
}

func TestFromOutput_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		wantFile string
		wantLine int
		wantCol  int
	}{
		{
			name:     "esbuild",
			output:   `/app/src/App.tsx:12:4: ERROR: Expected ";" but found "x"`,
			wantFile: "/app/src/App.tsx",
			wantLine: 12,
			wantCol:  4,
		},
		{
			name:     "babel",
			output:   "[plugin:vite:react-babel] /app/src/App.jsx: Unexpected token (7:2)",
			wantFile: "/app/src/App.jsx",
			wantLine: 7,
			wantCol:  2,
		},
		{
			name:     "syntax error with relative location",
			output:   "SyntaxError: Unexpected token '<' (src/main.js:3:1)",
			wantFile: "/app/src/main.js",
			wantLine: 3,
			wantCol:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := FromOutput(tt.output, "/app")
			require.Len(t, errs, 1)
			e := errs[0]
			assert.Equal(t, SyntaxError, e.Type)
			assert.False(t, e.Fixable)
			assert.Equal(t, tt.wantFile, e.FilePath)
			assert.Equal(t, tt.wantLine, e.Line)
			assert.Equal(t, tt.wantCol, e.Column)
		})
	}
}

func TestFromOutput_IgnoresNodeBuiltinsAndNoise(t *testing.T) {
	output := "  VITE v5.0.0  ready in 300 ms\n" +
		"  ➜  Local:   http://localhost:3000/\n" +
		"Error: Cannot find module 'node:fs/promises'\n"

	assert.Empty(t, FromOutput(output, "/app"))
}

func TestFromOutput_Dedupes(t *testing.T) {
	output := "Failed to resolve import \"axios\" from \"src/a.ts\"\n" +
		"Failed to resolve import \"axios\" from \"src/b.ts\"\n" +
		"Error: Cannot find module 'axios'\n"

	errs := FromOutput(output, "/app")
	require.Len(t, errs, 1)
	assert.Equal(t, "axios", errs[0].PackageName)
}

func TestFromConsole_OnlyMissingDependencies(t *testing.T) {
	assert.Empty(t, FromConsole("SyntaxError: Unexpected token '<' (src/main.js:3:1)", "/app"))
	assert.Empty(t, FromConsole(`Uncaught TypeError: Failed to resolve module specifier "./utils.js"`, "/app"))
	assert.Empty(t, FromConsole("Error: Cannot find module '../lib/theme.css'", "/app"))

	errs := FromConsole(`Uncaught TypeError: Failed to resolve module specifier "vue". Relative references must start with either "/", "./", or "../".`, "/app")
	require.Len(t, errs, 1)
	assert.Equal(t, MissingDependency, errs[0].Type)
	assert.Equal(t, "vue", errs[0].PackageName)
}

func TestFromOverlay_AttachesBlockLocation(t *testing.T) {
	dir := t.TempDir()
	overlay := "[plugin:vite:import-analysis] Failed to resolve import './theme/dark.css' from 'src/main.tsx'. Does the file exist?\n" +
		filepath.Join(dir, "src", "main.tsx") + ":3:8\n" +
		"1  |  import React from 'react'\n"

	errs := FromOverlay(overlay, dir)

	require.Len(t, errs, 1)
	e := errs[0]
	assert.Equal(t, CSSError, e.Type)
	assert.Equal(t, "./theme/dark.css", e.ImportPath)
	assert.Equal(t, filepath.Join(dir, "src", "main.tsx"), e.FilePath)
	assert.Equal(t, 3, e.Line)
	assert.Equal(t, 8, e.Column)
}

func TestFromOverlay_NoMatch(t *testing.T) {
	assert.Empty(t, FromOverlay("Something went wrong", "/app"))
}

func TestFromLine(t *testing.T) {
	errs := FromLine("\x1b[1mError: Cannot find module '@vitejs/plugin-react'\x1b[22m", "/app")
	require.Len(t, errs, 1)
	assert.Equal(t, "@vitejs/plugin-react", errs[0].PackageName)
}

func TestResolvePath_ProjectRootRelative(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "App.tsx"), []byte(""), 0o644))

	assert.Equal(t, filepath.Join(dir, "src", "App.tsx"), resolvePath("/src/App.tsx?t=1700000000", dir))
	assert.Equal(t, filepath.Join(dir, "src", "App.tsx"), resolvePath("src/App.tsx", dir))
}
