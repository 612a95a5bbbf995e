// Package validator checks whether a served page actually renders. It
// prefers a headless browser session and falls back to a plain HTTP probe
// when no browser can be driven.
package validator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/harshul/octo-runner/internal/detect"
	"github.com/harshul/octo-runner/internal/provisioner"
)

// ErrBrowserUnavailable means no browser could be found or launched
var ErrBrowserUnavailable = errors.New("no headless browser available")

const (
	DefaultTimeout = 15 * time.Second
	maxBody        = 5 * 1024 * 1024
	httpCaveat     = "Checked over plain HTTP without a browser: client-side runtime errors are invisible on this path, so a pass is less certain."
)

// Validator validates pages served by a project
type Validator struct {
	browser BrowserRunner
	client  *http.Client
	logger  *slog.Logger
}

// New creates a Validator. A nil browser always uses the HTTP probe.
func New(browser BrowserRunner, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{browser: browser, client: &http.Client{}, logger: logger}
}

// Validate loads pageURL and decides whether it rendered cleanly. cwd
// resolves relative file paths in detected errors. An error is returned
// only when the page could not be checked at all.
func (v *Validator) Validate(ctx context.Context, pageURL string, timeout time.Duration, cwd string) (*Verdict, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: must be http(s)://host[:port]/path", pageURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var fallbackReason string
	if v.browser != nil {
		bctx, cancel := context.WithTimeout(ctx, timeout)
		sig, err := v.browser.Collect(bctx, pageURL)
		cancel()
		if err == nil {
			verdict := Decide(sig, cwd)
			v.log(pageURL, &verdict)
			return &verdict, nil
		}
		fallbackReason = err.Error()
		if errors.Is(err, ErrBrowserUnavailable) {
			fallbackReason = ErrBrowserUnavailable.Error()
		}
		v.logger.Warn("browser validation failed, falling back to HTTP", "url", pageURL, "error", err)
	} else {
		fallbackReason = ErrBrowserUnavailable.Error()
	}

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	verdict, err := v.httpProbe(hctx, pageURL, cwd)
	if err != nil {
		return nil, err
	}
	verdict.Notes = append(verdict.Notes, "Browser path unavailable: "+fallbackReason+".")
	v.log(pageURL, verdict)
	return verdict, nil
}

// ValidatePage is Validate rendered as text
func (v *Validator) ValidatePage(ctx context.Context, pageURL string, timeout time.Duration, cwd string) string {
	verdict, err := v.Validate(ctx, pageURL, timeout, cwd)
	if err != nil {
		return fmt.Sprintf("Error: could not validate %s: %v", pageURL, err)
	}
	return verdict.Report(pageURL, installPrefix(cwd))
}

func (v *Validator) log(pageURL string, verdict *Verdict) {
	v.logger.Info("page validated",
		"url", pageURL,
		"mode", verdict.Mode,
		"passed", verdict.Passed,
		"errors", len(verdict.Errors),
	)
}

// httpProbe GETs the page and looks for resolver errors in the served
// document and a failing status code.
func (v *Validator) httpProbe(ctx context.Context, pageURL, cwd string) (*Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", pageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pageURL, err)
	}

	verdict := &Verdict{Mode: ModeHTTP, RawChannelCounts: map[string]int{"http": 1}}

	text := string(body)
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
		doc.Find("style").Remove()
		text = doc.Find("body").Text() + "\n" + doc.Find("script#__NEXT_DATA__").Text()
	}
	errs := detect.FromOutput(text, cwd)

	if resp.StatusCode >= 400 {
		errs = append([]detect.DetectedError{
			detect.New(detect.Unknown, fmt.Sprintf("Server responded with HTTP %d", resp.StatusCode)),
		}, errs...)
	}
	verdict.Errors = detect.Dedupe(errs)

	switch {
	case resp.StatusCode >= 400:
		verdict.Message = fmt.Sprintf("The server responded with HTTP %d.", resp.StatusCode)
	case len(verdict.Errors) > 0:
		verdict.Message = fmt.Sprintf("The served page contains %d error(s).", len(verdict.Errors))
	default:
		verdict.Passed = true
		verdict.Message = fmt.Sprintf("The server responded with HTTP %d and no resolver errors.", resp.StatusCode)
	}
	verdict.Notes = append(verdict.Notes, httpCaveat)
	return verdict, nil
}

// Report renders the verdict for pageURL. install is the package manager's
// add command prefix used in hints.
func (v *Verdict) Report(pageURL, install string) string {
	var b strings.Builder
	if v.Passed {
		fmt.Fprintf(&b, "Validation passed for %s (%s).\n%s\n", pageURL, v.Mode, v.Message)
	} else {
		fmt.Fprintf(&b, "Validation failed for %s (%s).\n%s\n", pageURL, v.Mode, v.Message)
	}
	if len(v.Errors) > 0 {
		fmt.Fprintf(&b, "\nDetected %d error(s):\n", len(v.Errors))
		b.WriteString(detect.Format(v.Errors, install))
	}
	for _, n := range v.Notes {
		b.WriteString("\nNote: ")
		b.WriteString(n)
	}
	return strings.TrimRight(b.String(), "\n")
}

func installPrefix(cwd string) string {
	if cwd == "" {
		return ""
	}
	return provisioner.AddPrefix(provisioner.DetectPackageManager(cwd).Manager)
}
