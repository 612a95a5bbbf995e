// Package tools is the operation surface handed to an agent: run a command,
// open a preview, stop the project's dev server, validate a page and report
// what is listening.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harshul/octo-runner/internal/detect"
	"github.com/harshul/octo-runner/internal/fixer"
	"github.com/harshul/octo-runner/internal/provisioner"
	"github.com/harshul/octo-runner/internal/validator"
)

// Runner runs commands and supervises servers
type Runner interface {
	Run(ctx context.Context, command, cwd string) string
	KillServer(ctx context.Context, cwd string) string
	StartupErrors(cwd string) []detect.DetectedError
	Status(ctx context.Context) string
}

// PageValidator checks a served page
type PageValidator interface {
	Validate(ctx context.Context, pageURL string, timeout time.Duration, cwd string) (*validator.Verdict, error)
}

// ErrorFixer remediates detected errors
type ErrorFixer interface {
	FixAll(ctx context.Context, errs []detect.DetectedError, cwd string) []fixer.Outcome
}

// Opener opens a URL for the user
type Opener func(url string) error

// Toolkit implements every tool. Each method returns text and never an error.
type Toolkit struct {
	runner    Runner
	validator PageValidator
	fixer     ErrorFixer
	open      Opener
	logger    *slog.Logger

	validateTimeout time.Duration
}

// New creates a Toolkit. validateTimeout applies when a caller passes none.
func New(runner Runner, val PageValidator, fx ErrorFixer, open Opener, logger *slog.Logger, validateTimeout time.Duration) *Toolkit {
	if logger == nil {
		logger = slog.Default()
	}
	if validateTimeout <= 0 {
		validateTimeout = validator.DefaultTimeout
	}
	return &Toolkit{
		runner:          runner,
		validator:       val,
		fixer:           fx,
		open:            open,
		logger:          logger,
		validateTimeout: validateTimeout,
	}
}

// RunCommand runs command in cwd
func (tk *Toolkit) RunCommand(ctx context.Context, command, cwd string) string {
	tk.logger.Debug("tool call", "tool", "run_command", "command", command, "cwd", cwd)
	return tk.runner.Run(ctx, command, cwd)
}

// OpenBrowserPreview opens url in the user's browser
func (tk *Toolkit) OpenBrowserPreview(_ context.Context, url string) string {
	tk.logger.Debug("tool call", "tool", "open_browser_preview", "url", url)
	if tk.open == nil {
		return "Error: opening a browser is not available here"
	}
	if err := tk.open(url); err != nil {
		return fmt.Sprintf("Error: could not open %s: %v", url, err)
	}
	return fmt.Sprintf("Opened %s in the browser.", url)
}

// KillProjectDevServer stops the dev server on the canonical dev port
func (tk *Toolkit) KillProjectDevServer(ctx context.Context, cwd string) string {
	tk.logger.Debug("tool call", "tool", "kill_project_dev_server", "cwd", cwd)
	return tk.runner.KillServer(ctx, cwd)
}

// DevServerStatus lists tracked servers and canonical port listeners
func (tk *Toolkit) DevServerStatus(ctx context.Context) string {
	return tk.runner.Status(ctx)
}

// ValidatePage validates url. When it fails and cwd names the project, the
// page's errors are merged with the dev server's startup errors and every
// fixable one is remediated.
func (tk *Toolkit) ValidatePage(ctx context.Context, url string, timeout time.Duration, cwd string) string {
	tk.logger.Debug("tool call", "tool", "validate_page", "url", url, "cwd", cwd)
	if timeout <= 0 {
		timeout = tk.validateTimeout
	}

	verdict, err := tk.validator.Validate(ctx, url, timeout, cwd)
	if err != nil {
		return fmt.Sprintf("Error: could not validate %s: %v", url, err)
	}

	install := ""
	if cwd != "" {
		install = provisioner.AddPrefix(provisioner.DetectPackageManager(cwd).Manager)
	}

	var b strings.Builder
	b.WriteString(verdict.Report(url, install))
	if verdict.Passed || cwd == "" {
		return b.String()
	}

	startup := tk.runner.StartupErrors(cwd)
	if extra := missingFrom(startup, verdict.Errors); len(extra) > 0 {
		fmt.Fprintf(&b, "\n\nThe dev server also reported %d error(s) during startup:\n", len(extra))
		b.WriteString(strings.TrimRight(detect.Format(extra, install), "\n"))
	}

	var fixable []detect.DetectedError
	for _, e := range detect.Merge(verdict.Errors, startup) {
		if e.Fixable {
			fixable = append(fixable, e)
		}
	}
	if len(fixable) == 0 || tk.fixer == nil {
		return b.String()
	}

	outcomes := tk.fixer.FixAll(ctx, fixable, cwd)
	b.WriteString("\n\nAuto-fix results:\n")
	fixed := 0
	for i, o := range outcomes {
		status := "FAILED"
		if o.Result.Success {
			status = "OK"
			if o.Result.Action != fixer.Skipped {
				fixed++
			}
		}
		fmt.Fprintf(&b, "%d. [%s] %s: %s\n", i+1, o.Result.Action, status, o.Result.Message)
	}
	if fixed > 0 {
		b.WriteString("\nRun validate_page again to confirm the fixes.")
	}
	return strings.TrimRight(b.String(), "\n")
}

func missingFrom(errs, known []detect.DetectedError) []detect.DetectedError {
	seen := make(map[string]bool, len(known))
	for _, e := range known {
		seen[e.Key()] = true
	}
	var out []detect.DetectedError
	for _, e := range errs {
		if !seen[e.Key()] {
			out = append(out, e)
		}
	}
	return out
}
