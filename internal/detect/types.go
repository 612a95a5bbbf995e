package detect

import (
	"fmt"
	"strings"
)

// ErrorType is the canonical category of a detected startup or runtime error
type ErrorType string

const (
	MissingDependency ErrorType = "missing_dependency"
	ImportError       ErrorType = "import_error"
	SyntaxError       ErrorType = "syntax_error"
	CSSError          ErrorType = "css_error"
	Unknown           ErrorType = "unknown"
)

// DetectedError is a single error recognized from process output, an error
// overlay, a console message or a one-line string.
type DetectedError struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	FilePath    string    `json:"filePath,omitempty"`
	Line        int       `json:"line,omitempty"`
	Column      int       `json:"column,omitempty"`
	PackageName string    `json:"packageName,omitempty"`
	ImportPath  string    `json:"importPath,omitempty"`
	Fixable     bool      `json:"fixable"`
}

// IsFixable reports whether an error of type t carrying the given identifying
// fields has a known mechanical remediation. Syntax errors never do.
func IsFixable(t ErrorType, packageName, importPath string) bool {
	switch t {
	case MissingDependency:
		return packageName != ""
	case ImportError, CSSError:
		return importPath != ""
	default:
		return false
	}
}

// New builds a DetectedError and derives Fixable from its type and fields.
func New(t ErrorType, message string, opts ...Option) DetectedError {
	e := DetectedError{Type: t, Message: strings.TrimSpace(message)}
	for _, opt := range opts {
		opt(&e)
	}
	e.Fixable = IsFixable(e.Type, e.PackageName, e.ImportPath)
	return e
}

// Option sets an optional field on a DetectedError under construction
type Option func(*DetectedError)

// WithLocation sets the file path and position
func WithLocation(path string, line, column int) Option {
	return func(e *DetectedError) {
		e.FilePath = path
		if line > 0 {
			e.Line = line
		}
		if column > 0 {
			e.Column = column
		}
	}
}

// WithPackage sets the package name
func WithPackage(name string) Option {
	return func(e *DetectedError) { e.PackageName = name }
}

// WithImport sets the import path
func WithImport(path string) Option {
	return func(e *DetectedError) { e.ImportPath = path }
}

// Key returns the deduplication key: the type plus the most specific
// identifying field available.
func (e DetectedError) Key() string {
	id := e.PackageName
	if id == "" {
		id = e.ImportPath
	}
	if id == "" {
		id = e.Message
	}
	return string(e.Type) + ":" + id
}

// Location renders file:line:column, or just the file when no position is known.
func (e DetectedError) Location() string {
	if e.FilePath == "" {
		return ""
	}
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", e.FilePath, e.Line, e.Column)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d", e.FilePath, e.Line)
	}
	return e.FilePath
}

// Hint returns the user-facing remediation hint. install is the package
// manager's add command prefix (e.g. "pnpm add"); "npm install" is used when empty.
func (e DetectedError) Hint(install string) string {
	if install == "" {
		install = "npm install"
	}

	switch e.Type {
	case MissingDependency:
		if e.Fixable {
			return fmt.Sprintf("Missing package %q will be auto-fixed (%s %s).", e.PackageName, install, e.PackageName)
		}
		return "A module could not be resolved. Check the import name and install the package that provides it."
	case CSSError:
		if e.Fixable {
			return fmt.Sprintf("Stylesheet/asset import %q will be auto-fixed (substituted or removed).", e.ImportPath)
		}
		return "A stylesheet or asset could not be resolved. Check that the file exists."
	case ImportError:
		if e.Fixable {
			return fmt.Sprintf("Import %q will be checked for an automatic fix; otherwise fix the path manually.", e.ImportPath)
		}
		return "An import could not be resolved. Fix the import path manually."
	case SyntaxError:
		if loc := e.Location(); loc != "" {
			return fmt.Sprintf("Fix the syntax error manually at %s.", loc)
		}
		return "Fix the syntax error manually."
	default:
		return "Inspect the error and fix it manually."
	}
}

// Dedupe collapses errors sharing the same Key, keeping the first occurrence
// and the original order.
func Dedupe(errs []DetectedError) []DetectedError {
	if len(errs) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(errs))
	out := make([]DetectedError, 0, len(errs))
	for _, e := range errs {
		k := e.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

// Merge concatenates error lists and dedupes the result
func Merge(lists ...[]DetectedError) []DetectedError {
	var all []DetectedError
	for _, l := range lists {
		all = append(all, l...)
	}
	return Dedupe(all)
}

// Format renders a numbered error list with a hint per error
func Format(errs []DetectedError, install string) string {
	var b strings.Builder
	for i, e := range errs {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, e.Type, e.Message)
		if loc := e.Location(); loc != "" {
			fmt.Fprintf(&b, " (at %s)", loc)
		}
		b.WriteString("\n   Hint: ")
		b.WriteString(e.Hint(install))
		b.WriteString("\n")
	}
	return b.String()
}
