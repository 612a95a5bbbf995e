package detect

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// rule pairs a line pattern with the constructor that turns its submatches
// into zero or more errors. Rules are evaluated in slice order and the first
// matching rule wins for a given line.
type rule struct {
	name  string
	re    *regexp.Regexp
	build func(m []string, line, cwd string) []DetectedError
}

const pathPattern = `((?:[A-Za-z]:)?[^\s:()"'\[\]]+\.[A-Za-z0-9]+)`

var (
	// file:line:column anywhere in a line or block
	locationPattern = regexp.MustCompile(pathPattern + `:(\d+):(\d+)`)
	// Vite's "  File: /abs/src/App.tsx:3:17" follow-up line
	fileLinePattern = regexp.MustCompile(`^\s*File:\s+` + pathPattern + `(?::(\d+):(\d+))?`)
)

// Extensions that mark an import as a stylesheet or static asset
var assetExtensions = map[string]bool{
	".css": true, ".scss": true, ".sass": true, ".less": true, ".styl": true, ".stylus": true, ".pcss": true, ".postcss": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".avif": true, ".ico": true, ".bmp": true,
}

// Extensions stripped before deriving a package name from an import specifier
var moduleExtensions = []string{
	".js", ".mjs", ".cjs", ".jsx", ".ts", ".mts", ".cts", ".tsx", ".json", ".vue", ".svelte", ".node",
	".css", ".scss", ".sass", ".less",
}

// Missing module signatures, shared by the output, overlay and console channels.
var resolveRules = []rule{
	{
		name:  "failed-to-resolve-import",
		re:    regexp.MustCompile(`Failed to resolve import\s+["']([^"']+)["'](?:\s+from\s+["']([^"']+)["'])?`),
		build: specifierError,
	},
	{
		name:  "cannot-find-package",
		re:    regexp.MustCompile(`Cannot find package\s+["']([^"']+)["'](?:\s+imported from\s+(\S+))?`),
		build: specifierError,
	},
	{
		name:  "cannot-find-module",
		re:    regexp.MustCompile(`Cannot find module\s+["']([^"']+)["']`),
		build: specifierError,
	},
	{
		name:  "module-not-found",
		re:    regexp.MustCompile(`(?i)module not found:?.*?(?:can't|cannot) resolve\s+["']([^"']+)["']`),
		build: specifierError,
	},
	{
		name:  "failed-to-resolve-module-specifier",
		re:    regexp.MustCompile(`Failed to resolve module specifier\s+["']([^"']+)["']`),
		build: specifierError,
	},
	{
		// esbuild: src/App.tsx:1:19: ERROR: Could not resolve "lodash"
		name: "esbuild-could-not-resolve",
		re:   regexp.MustCompile(`(?:` + pathPattern + `:(\d+):(\d+):\s*(?:ERROR|error):\s*)?Could not resolve\s+["']([^"']+)["']`),
		build: func(m []string, line, cwd string) []DetectedError {
			errs := specifierError([]string{m[0], m[4]}, line, cwd)
			if m[1] != "" {
				for i := range errs {
					errs[i].FilePath, errs[i].Line, errs[i].Column = resolvePath(m[1], cwd), atoi(m[2]), atoi(m[3])
				}
			}
			return errs
		},
	},
}

// Stylesheet pipeline failures that do not go through import analysis
var cssRules = []rule{
	{
		name: "postcss-unresolved",
		re:   regexp.MustCompile(`(?i)\[postcss\].*?(?:can't|cannot|unable to) (?:resolve|find|load)\s+["']([^"']+)["']`),
		build: func(m []string, line, cwd string) []DetectedError {
			return []DetectedError{New(CSSError, line, WithImport(cleanSpecifier(m[1])))}
		},
	},
}

var syntaxRules = []rule{
	{
		// esbuild: src/App.tsx:12:4: ERROR: Expected ";" but found "x"
		name: "esbuild-error",
		re: regexp.MustCompile(pathPattern + `:(\d+):(\d+):\s*(?:ERROR|error):\s*(` +
			`(?:Expected|Unexpected|Unterminated|Invalid|Missing|Duplicate|Unsupported|Syntax|Cannot use|Multiple exports|The symbol|Octal|Legacy octal|Transforming).+)$`),
		build: func(m []string, line, cwd string) []DetectedError {
			return []DetectedError{New(SyntaxError, m[4], WithLocation(resolvePath(m[1], cwd), atoi(m[2]), atoi(m[3])))}
		},
	},
	{
		// babel: [plugin:vite:react-babel] /src/App.jsx: Unexpected token (12:4)
		name: "babel-error",
		re:   regexp.MustCompile(`(?:\[plugin:vite:[\w-]+\]|SyntaxError:)\s*` + pathPattern + `:\s*(.+?)\s*\((\d+):(\d+)\)`),
		build: func(m []string, line, cwd string) []DetectedError {
			return []DetectedError{New(SyntaxError, m[2], WithLocation(resolvePath(m[1], cwd), atoi(m[3]), atoi(m[4])))}
		},
	},
	{
		// SyntaxError: Unexpected token '<' (/src/main.js:3:1)
		name: "syntax-error",
		re:   regexp.MustCompile(`SyntaxError:?\s*(.*?)\s*\(?` + pathPattern + `:(\d+):(\d+)\)?\s*$`),
		build: func(m []string, line, cwd string) []DetectedError {
			msg := m[1]
			if msg == "" {
				msg = line
			}
			return []DetectedError{New(SyntaxError, msg, WithLocation(resolvePath(m[2], cwd), atoi(m[3]), atoi(m[4])))}
		},
	},
}

var (
	outputRules  = concatRules(resolveRules, cssRules, syntaxRules)
	consoleRules = dependenciesOnly(resolveRules)
)

// dependenciesOnly restricts rules to missing dependencies. A browser console
// message carries no importing file, so a path specifier there cannot be
// repaired and is left to the page verdict.
func dependenciesOnly(rules []rule) []rule {
	out := make([]rule, len(rules))
	for i, r := range rules {
		build := r.build
		r.build = func(m []string, line, cwd string) []DetectedError {
			var deps []DetectedError
			for _, e := range build(m, line, cwd) {
				if e.Type == MissingDependency {
					deps = append(deps, e)
				}
			}
			return deps
		}
		out[i] = r
	}
	return out
}

func concatRules(groups ...[]rule) []rule {
	var out []rule
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// specifierError classifies an unresolved import specifier. m[1] is the
// specifier, m[2] (optional) the importing file.
func specifierError(m []string, line, cwd string) []DetectedError {
	specifier := cleanSpecifier(m[1])
	if specifier == "" || strings.HasPrefix(specifier, "node:") {
		return nil
	}

	var opts []Option
	if len(m) > 2 && m[2] != "" {
		opts = append(opts, WithLocation(resolvePath(strings.TrimSuffix(m[2], "."), cwd), 0, 0))
	}

	if isPathSpecifier(specifier) {
		t := ImportError
		if isAsset(specifier) {
			t = CSSError
		}
		return []DetectedError{New(t, line, append(opts, WithImport(specifier))...)}
	}

	return []DetectedError{New(MissingDependency, line, append(opts, WithPackage(ExtractPackageName(specifier)), WithImport(specifier))...)}
}

// isPathSpecifier reports whether specifier names a file rather than a package.
// Project aliases like "@/components" and "~/lib" count as paths.
func isPathSpecifier(specifier string) bool {
	switch {
	case strings.HasPrefix(specifier, "."), strings.HasPrefix(specifier, "/"):
		return true
	case strings.HasPrefix(specifier, "@/"), strings.HasPrefix(specifier, "~/"):
		return true
	case len(specifier) > 2 && specifier[1] == ':' && (specifier[2] == '\\' || specifier[2] == '/'):
		return true
	}
	return false
}

func isAsset(specifier string) bool {
	return assetExtensions[strings.ToLower(filepath.Ext(specifier))]
}

// cleanSpecifier drops query strings and hashes that dev servers append
// (e.g. "./a.css?inline", "/src/x.ts?v=1a2b").
func cleanSpecifier(specifier string) string {
	specifier = strings.TrimSpace(specifier)
	if i := strings.IndexAny(specifier, "?#"); i >= 0 {
		specifier = specifier[:i]
	}
	return specifier
}

// ExtractPackageName derives an installable package name from an import
// specifier: a trailing known extension is stripped, scoped packages keep
// "@scope/name", everything else keeps the first path segment.
func ExtractPackageName(specifier string) string {
	specifier = cleanSpecifier(specifier)
	for _, ext := range moduleExtensions {
		if strings.HasSuffix(specifier, ext) {
			specifier = strings.TrimSuffix(specifier, ext)
			break
		}
	}

	parts := strings.Split(specifier, "/")
	if strings.HasPrefix(specifier, "@") {
		if len(parts) >= 2 {
			return parts[0] + "/" + parts[1]
		}
		return specifier
	}
	return parts[0]
}

// resolvePath turns a path reported by a tool into an absolute path rooted
// at cwd, dropping URL-ish prefixes dev servers add.
func resolvePath(p, cwd string) string {
	p = cleanSpecifier(p)
	p = strings.TrimPrefix(p, "file://")
	p = strings.TrimPrefix(p, "/@fs")
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		if cwd != "" && !strings.HasPrefix(filepath.Clean(p), filepath.Clean(cwd)) {
			// Vite reports project files as "/src/App.tsx" relative to the root
			if candidate := filepath.Join(cwd, p); fileExists(candidate) {
				return candidate
			}
		}
		return filepath.Clean(p)
	}
	if cwd == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(cwd, p)
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
