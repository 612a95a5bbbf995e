// Package fixer applies narrow, mechanical remediations to detected errors:
// installing a missing package, pointing a broken theme stylesheet import at
// a sibling stylesheet, or dropping an import of a stylesheet that does not
// exist. Anything else is reported as skipped.
package fixer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harshul/octo-runner/internal/detect"
	"github.com/harshul/octo-runner/internal/provisioner"
)

// Action names the remediation a fix performed
type Action string

const (
	Installed     Action = "installed"
	FixedImport   Action = "fixed_import"
	RemovedImport Action = "removed_import"
	FixedSyntax   Action = "fixed_syntax"
	Skipped       Action = "skipped"
)

// FixResult is the outcome of one fix attempt
type FixResult struct {
	Success bool   `json:"success"`
	Action  Action `json:"action"`
	Message string `json:"message"`
}

// Outcome pairs an error with the result of fixing it
type Outcome struct {
	Error  detect.DetectedError `json:"error"`
	Result FixResult            `json:"result"`
}

var stylesheetExts = map[string]bool{".css": true, ".scss": true, ".sass": true, ".less": true, ".styl": true}

// Fixer dispatches detected errors to their remediation
type Fixer struct {
	installer Installer
	logger    *slog.Logger
}

// New creates a Fixer
func New(installer Installer, logger *slog.Logger) *Fixer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fixer{installer: installer, logger: logger}
}

// FixError attempts one remediation for e in the project at cwd
func (f *Fixer) FixError(ctx context.Context, e detect.DetectedError, cwd string) FixResult {
	var res FixResult
	switch e.Type {
	case detect.MissingDependency:
		res = f.fixMissingDependency(ctx, e, cwd)
	case detect.ImportError, detect.CSSError:
		res = f.fixImport(e)
	default:
		res = skip("%s cannot be fixed automatically; fix it manually", e.Type)
	}

	f.logger.Info("fix attempted",
		"error.type", e.Type,
		"package", e.PackageName,
		"import", e.ImportPath,
		"action", res.Action,
		"success", res.Success,
	)
	return res
}

// FixAll dedupes errs and fixes the fixable ones in order. Non-fixable
// errors are reported as skipped without being attempted.
func (f *Fixer) FixAll(ctx context.Context, errs []detect.DetectedError, cwd string) []Outcome {
	var out []Outcome
	for _, e := range detect.Dedupe(errs) {
		if !e.Fixable {
			out = append(out, Outcome{Error: e, Result: skip("%s is not automatically fixable", e.Type)})
			continue
		}
		out = append(out, Outcome{Error: e, Result: f.FixError(ctx, e, cwd)})
	}
	return out
}

func (f *Fixer) fixMissingDependency(ctx context.Context, e detect.DetectedError, cwd string) FixResult {
	pkg := e.PackageName
	if pkg == "" {
		return skip("no package name to install")
	}

	if m, err := provisioner.ReadManifest(cwd); err == nil && m.Has(pkg) {
		return FixResult{Success: true, Action: Skipped, Message: fmt.Sprintf("%s is already listed in %s", pkg, provisioner.ManifestFile)}
	}

	if f.installer == nil {
		return skip("no installer configured for %s", pkg)
	}

	f.logger.Info("installing missing package", "package", pkg, "cwd", cwd)
	_, stderr, err := f.installer.Add(ctx, cwd, pkg)
	if err != nil {
		return skip("failed to install %s: %v%s", pkg, err, excerpt(stderr))
	}
	if errLines := errorLines(stderr); len(errLines) > 0 {
		return skip("failed to install %s:%s", pkg, excerpt(strings.Join(errLines, "\n")))
	}
	return FixResult{Success: true, Action: Installed, Message: fmt.Sprintf("installed %s", pkg)}
}

func (f *Fixer) fixImport(e detect.DetectedError) FixResult {
	if e.FilePath == "" || e.ImportPath == "" {
		return skip("missing file path or import path")
	}

	data, err := os.ReadFile(e.FilePath)
	if err != nil {
		return skip("cannot read %s: %v", e.FilePath, err)
	}
	lines := strings.Split(string(data), "\n")

	idx := e.Line - 1
	if e.Line <= 0 {
		idx = findImportLine(lines, e.ImportPath)
	}
	if idx < 0 || idx >= len(lines) {
		return skip("line %d is out of range for %s", e.Line, e.FilePath)
	}

	if isStylesheet(e.ImportPath) && inThemeDir(e.ImportPath) {
		if sub := substituteStylesheet(e.FilePath, e.ImportPath); sub != "" && strings.Contains(lines[idx], e.ImportPath) {
			lines[idx] = strings.Replace(lines[idx], e.ImportPath, sub, 1)
			if err := writeLines(e.FilePath, lines); err != nil {
				return skip("cannot write %s: %v", e.FilePath, err)
			}
			return FixResult{Success: true, Action: FixedImport, Message: fmt.Sprintf("replaced %s with %s in %s", e.ImportPath, sub, e.FilePath)}
		}
	}

	if e.Type == detect.CSSError {
		if !isImportStatement(lines[idx]) || !strings.Contains(lines[idx], e.ImportPath) {
			return skip("line %d of %s is not an import of %s", idx+1, e.FilePath, e.ImportPath)
		}
		lines = append(lines[:idx], lines[idx+1:]...)
		if err := writeLines(e.FilePath, lines); err != nil {
			return skip("cannot write %s: %v", e.FilePath, err)
		}
		return FixResult{Success: true, Action: RemovedImport, Message: fmt.Sprintf("removed import of %s from %s", e.ImportPath, e.FilePath)}
	}

	return skip("import %q requires manual fix", e.ImportPath)
}

// substituteStylesheet returns importPath pointed at another stylesheet in
// the directory the missing one should live in, or "" if there is none.
func substituteStylesheet(filePath, importPath string) string {
	dir := filepath.Dir(filepath.Join(filepath.Dir(filePath), filepath.FromSlash(importPath)))
	missing := path.Base(importPath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var candidates []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == missing || !isStylesheet(name) {
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return strings.TrimSuffix(importPath, missing) + candidates[0]
}

func isStylesheet(p string) bool {
	return stylesheetExts[strings.ToLower(path.Ext(p))]
}

func inThemeDir(importPath string) bool {
	segments := strings.Split(importPath, "/")
	for _, s := range segments[:len(segments)-1] {
		if s == "theme" {
			return true
		}
	}
	return false
}

func isImportStatement(line string) bool {
	l := strings.TrimSpace(line)
	return strings.HasPrefix(l, "import ") ||
		strings.HasPrefix(l, "import'") ||
		strings.HasPrefix(l, `import"`) ||
		strings.HasPrefix(l, "@import ") ||
		strings.Contains(l, "require(")
}

// findImportLine locates the import of spec when the error carried no line
func findImportLine(lines []string, spec string) int {
	for i, l := range lines {
		for _, q := range []string{`'`, `"`, "`"} {
			if strings.Contains(l, q+spec+q) || strings.Contains(l, q+spec+"?") {
				return i
			}
		}
	}
	return -1
}

func writeLines(name string, lines []string) error {
	info, err := os.Stat(name)
	if err != nil {
		return err
	}
	return os.WriteFile(name, []byte(strings.Join(lines, "\n")), info.Mode().Perm())
}

func errorLines(stderr string) []string {
	var out []string
	for _, l := range strings.Split(stderr, "\n") {
		if !provisioner.IsWarningLine(l) {
			out = append(out, strings.TrimSpace(l))
		}
	}
	return out
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) > 500 {
		s = s[:500] + "..."
	}
	return "\n" + s
}

func skip(format string, args ...any) FixResult {
	return FixResult{Success: false, Action: Skipped, Message: fmt.Sprintf(format, args...)}
}
