package executor

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/harshul/octo-runner/internal/toolchain"
)

// A bare runtime token in command position: at the start, or after a shell
// separator, optionally preceded by VAR=value assignments.
var runtimeToken = regexp.MustCompile(`(^|&&|\|\||[;|(])(\s*(?:[A-Za-z_][A-Za-z0-9_]*=\S*\s+)*)(node|npm|npx|pnpm|yarn|bun)(\s|$)`)

// RewriteRuntime replaces bare node/npm/npx and package-manager tokens in
// command with the resolved binaries from rt. When npm itself is not
// resolvable but its entry script is, npm and npx run as "node <script>" so
// the shell never has to find npm's own launcher.
func RewriteRuntime(command string, rt toolchain.Runtime) string {
	return runtimeToken.ReplaceAllStringFunc(command, func(match string) string {
		m := runtimeToken.FindStringSubmatch(match)
		replacement := resolveToken(m[3], rt)
		if replacement == "" {
			return match
		}
		return m[1] + m[2] + replacement + m[4]
	})
}

func resolveToken(token string, rt toolchain.Runtime) string {
	switch token {
	case "node":
		return quote(rt.Node)
	case "npm":
		if rt.NPM != "" {
			return quote(rt.NPM)
		}
		if rt.Node != "" && rt.NPMCli != "" {
			return quote(rt.Node) + " " + quote(rt.NPMCli)
		}
	case "npx":
		if rt.NPM != "" {
			if npx := sibling(rt.NPM, "npx"); npx != "" {
				return quote(npx)
			}
		}
		if rt.Node != "" && rt.NPMCli != "" {
			if cli := filepath.Join(filepath.Dir(rt.NPMCli), "npx-cli.js"); fileExists(cli) {
				return quote(rt.Node) + " " + quote(cli)
			}
		}
	default:
		if string(rt.Manager) == token && rt.ManagerPath != "" {
			return quote(rt.ManagerPath)
		}
	}
	return ""
}

// sibling finds another launcher next to bin, honoring Windows suffixes
func sibling(bin, name string) string {
	dir := filepath.Dir(bin)
	candidates := []string{filepath.Join(dir, name)}
	if runtime.GOOS == "windows" {
		candidates = []string{filepath.Join(dir, name+".cmd"), filepath.Join(dir, name+".exe")}
	}
	for _, c := range candidates {
		if fileExists(c) {
			return c
		}
	}
	return ""
}

// quote wraps paths containing spaces or quotes in double quotes, which both
// sh and cmd.exe accept.
func quote(path string) string {
	if path == "" {
		return ""
	}
	if strings.ContainsAny(path, " \t'\"") {
		return `"` + strings.ReplaceAll(path, `"`, `\"`) + `"`
	}
	return path
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
