// Package detect turns raw text from dev-server output, in-page error
// overlays and browser console messages into canonical DetectedError records.
//
// Every function here is pure: no match simply yields no records.
package detect

import (
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// FromOutput scans process output line by line.
func FromOutput(text, cwd string) []DetectedError {
	return scanLines(normalize(text), cwd, outputRules)
}

// FromLine scans a single line of text.
func FromLine(line, cwd string) []DetectedError {
	return matchLine(strings.TrimSpace(ansi.Strip(line)), cwd, outputRules)
}

// FromConsole scans a single browser console message for missing modules.
func FromConsole(text, cwd string) []DetectedError {
	return scanLines(normalize(text), cwd, consoleRules)
}

// FromOverlay scans the rendered text of an error overlay. The overlay is
// treated as one block: the first file:line:column found anywhere in it is
// attached to records that carry no position of their own.
func FromOverlay(text, cwd string) []DetectedError {
	text = normalize(text)
	errs := scanLines(text, cwd, outputRules)
	if len(errs) == 0 {
		return nil
	}

	m := locationPattern.FindStringSubmatch(text)
	if m == nil {
		return errs
	}

	path := resolvePath(m[1], cwd)
	line, col := atoi(m[2]), atoi(m[3])
	for i := range errs {
		if errs[i].Line > 0 {
			continue
		}
		if errs[i].FilePath == "" || sameFile(errs[i].FilePath, path) {
			errs[i].FilePath = path
			errs[i].Line = line
			errs[i].Column = col
		}
	}
	return errs
}

func scanLines(text, cwd string, rules []rule) []DetectedError {
	var errs []DetectedError
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		// A "File: path:line:col" line belongs to the error reported just above it
		if m := fileLinePattern.FindStringSubmatch(line); m != nil {
			attachLocation(errs, resolvePath(m[1], cwd), atoi(m[2]), atoi(m[3]))
			continue
		}

		errs = append(errs, matchLine(line, cwd, rules)...)
	}
	return Dedupe(errs)
}

func matchLine(line, cwd string, rules []rule) []DetectedError {
	if line == "" {
		return nil
	}
	for _, r := range rules {
		m := r.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		errs := r.build(m, line, cwd)

		// Import-analysis errors may carry a file:line:column suffix on the same line
		if loc := locationPattern.FindStringSubmatch(line); loc != nil {
			for i := range errs {
				if errs[i].Line == 0 {
					errs[i].FilePath = resolvePath(loc[1], cwd)
					errs[i].Line = atoi(loc[2])
					errs[i].Column = atoi(loc[3])
				}
			}
		}
		return errs
	}
	return nil
}

// attachLocation fills the position of the most recent error without one
func attachLocation(errs []DetectedError, path string, line, col int) {
	for i := len(errs) - 1; i >= 0; i-- {
		if errs[i].Line > 0 {
			return
		}
		if errs[i].FilePath == "" || sameFile(errs[i].FilePath, path) {
			errs[i].FilePath = path
			errs[i].Line = line
			errs[i].Column = col
		}
		return
	}
}

func normalize(text string) string {
	text = ansi.Strip(text)
	return strings.ReplaceAll(text, "\r\n", "\n")
}

func sameFile(a, b string) bool {
	return a == b || strings.HasSuffix(a, b) || strings.HasSuffix(b, a)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
