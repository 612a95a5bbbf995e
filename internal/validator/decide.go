package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/harshul/octo-runner/internal/detect"
)

// Signals is everything a browser session observed on a page
type Signals struct {
	Console    []string
	PageErrors []PageError
	Network    []NetworkFailure
	// Probe is nil when the DOM probe could not run
	Probe *Probe
}

// PageError is an uncaught exception thrown by the page
type PageError struct {
	Text  string
	Stack string
}

// NetworkFailure is a response with status >= 400
type NetworkFailure struct {
	URL    string
	Status int
}

// Probe is the result of inspecting the rendered DOM
type Probe struct {
	BodyText string  `json:"bodyText"`
	Title    string  `json:"title"`
	HasRoot  bool    `json:"hasRoot"`
	Overlay  Overlay `json:"overlay"`
}

// Overlay describes a framework error overlay element
type Overlay struct {
	Present bool   `json:"present"`
	Visible bool   `json:"visible"`
	Text    string `json:"text"`
}

// HasContent reports whether the page rendered something a user would see
func (p *Probe) HasContent() bool {
	if p == nil || strings.TrimSpace(p.BodyText) == "" {
		return false
	}
	return p.HasRoot || strings.TrimSpace(p.Title) != ""
}

// Mode names the validation path that produced a verdict
type Mode string

const (
	ModeBrowser Mode = "browser"
	ModeHTTP    Mode = "http"
)

// Verdict is the outcome of validating a page
type Verdict struct {
	Passed           bool                   `json:"passed"`
	Errors           []detect.DetectedError `json:"errors"`
	RawChannelCounts map[string]int         `json:"rawChannelCounts"`
	Mode             Mode                   `json:"mode"`
	Message          string                 `json:"message"`
	Notes            []string               `json:"notes,omitempty"`
}

// Messages that come from the validation tooling rather than the page
var noisePatterns = []string{
	"devtools",
	"favicon",
	".js.map",
	".css.map",
	"sourcemap",
	"source map",
	"__puppeteer_evaluation_script__",
	"pptr:",
	"__playwright",
	"[vite] connecting",
	"[vite] connected",
	"[hmr]",
	// keepNames helper injected into evaluated functions by some bundlers
	"__name is not defined",
}

// Stack frames of the automation engine's own evaluation code
var automationFrames = []string{"__puppeteer_evaluation_script__", "pptr:", "__playwright", "chromedp"}

var loaderSymbol = regexp.MustCompile(`\b(require|module|exports) is not defined`)

func isNoise(text string) bool {
	l := strings.ToLower(text)
	for _, p := range noisePatterns {
		if strings.Contains(l, p) {
			return true
		}
	}
	return false
}

func fromAutomation(stack string) bool {
	for _, f := range automationFrames {
		if strings.Contains(stack, f) {
			return true
		}
	}
	return false
}

func isNoiseURL(u string) bool {
	l := strings.ToLower(u)
	if i := strings.IndexAny(l, "?#"); i >= 0 {
		l = l[:i]
	}
	return strings.Contains(l, "favicon") || strings.HasSuffix(l, ".map")
}

// Decide turns browser signals into a verdict. A rendered page without a
// visible overlay passes outright; a visible overlay is the authoritative
// error source; otherwise whatever errors survive the noise filter fail it.
func Decide(sig *Signals, cwd string) Verdict {
	if sig == nil {
		sig = &Signals{}
	}
	v := Verdict{
		Mode: ModeBrowser,
		RawChannelCounts: map[string]int{
			"console": len(sig.Console),
			"page":    len(sig.PageErrors),
			"network": len(sig.Network),
		},
	}

	if sig.Probe.HasContent() && !sig.Probe.Overlay.Visible {
		v.Passed = true
		v.Message = "Page rendered content and shows no error overlay."
		return v
	}

	if sig.Probe != nil && sig.Probe.Overlay.Visible {
		text := strings.TrimSpace(sig.Probe.Overlay.Text)
		errs := detect.FromOverlay(text, cwd)
		if len(errs) == 0 {
			errs = []detect.DetectedError{detect.New(detect.Unknown, firstLine(text, "error overlay with no readable text"))}
		}
		v.Errors = errs
		v.Message = "An error overlay is visible on the page."
		return v
	}

	var errs []detect.DetectedError
	classify := func(msg string) {
		if found := detect.FromConsole(msg, cwd); len(found) > 0 {
			errs = append(errs, found...)
			return
		}
		if m := loaderSymbol.FindStringSubmatch(msg); m != nil {
			v.Notes = append(v.Notes, fmt.Sprintf("%q is not available in the browser: use ES module import/export syntax instead of CommonJS.", m[1]))
		}
		errs = append(errs, detect.New(detect.Unknown, msg))
	}

	for _, msg := range sig.Console {
		if !isNoise(msg) {
			classify(msg)
		}
	}
	for _, pe := range sig.PageErrors {
		if isNoise(pe.Text) || fromAutomation(pe.Stack) {
			continue
		}
		classify(pe.Text)
	}
	for _, nf := range sig.Network {
		if nf.Status < 400 || isNoiseURL(nf.URL) {
			continue
		}
		errs = append(errs, detect.New(detect.Unknown, fmt.Sprintf("Failed to load %s (HTTP %d)", nf.URL, nf.Status)))
	}

	v.Errors = detect.Dedupe(errs)
	v.Notes = dedupeStrings(v.Notes)
	if len(v.Errors) > 0 {
		v.Message = fmt.Sprintf("The page reported %d error(s).", len(v.Errors))
		return v
	}

	v.Passed = true
	v.Message = "No errors were reported by the page."
	if sig.Probe != nil && !sig.Probe.HasContent() {
		v.Notes = append(v.Notes, "The page body looks empty; it may still be loading.")
	}
	return v
}

func firstLine(text, fallback string) string {
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return fallback
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
