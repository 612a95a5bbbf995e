package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshul/octo-runner/internal/detect"
	"github.com/harshul/octo-runner/internal/fixer"
	"github.com/harshul/octo-runner/internal/observability"
	"github.com/harshul/octo-runner/internal/validator"
)

type fakeRunner struct {
	startup  []detect.DetectedError
	commands []string
	killed   []string
}

func (f *fakeRunner) Run(_ context.Context, command, cwd string) string {
	f.commands = append(f.commands, command+"@"+cwd)
	return "ran " + command
}

func (f *fakeRunner) KillServer(_ context.Context, cwd string) string {
	f.killed = append(f.killed, cwd)
	return "No dev server running on port 3000; nothing to kill."
}

func (f *fakeRunner) StartupErrors(string) []detect.DetectedError { return f.startup }

func (f *fakeRunner) Status(context.Context) string { return "No tracked servers." }

type fakeValidator struct {
	verdict *validator.Verdict
	err     error
	timeout time.Duration
}

func (f *fakeValidator) Validate(_ context.Context, _ string, timeout time.Duration, _ string) (*validator.Verdict, error) {
	f.timeout = timeout
	return f.verdict, f.err
}

type fakeFixer struct {
	got []detect.DetectedError
}

func (f *fakeFixer) FixAll(_ context.Context, errs []detect.DetectedError, _ string) []fixer.Outcome {
	f.got = append(f.got, errs...)
	out := make([]fixer.Outcome, len(errs))
	for i, e := range errs {
		out[i] = fixer.Outcome{Error: e, Result: fixer.FixResult{Success: true, Action: fixer.Installed, Message: "installed " + e.PackageName}}
	}
	return out
}

func newToolkit(r *fakeRunner, v *fakeValidator, fx *fakeFixer, open Opener) *Toolkit {
	var ef ErrorFixer
	if fx != nil {
		ef = fx
	}
	return New(r, v, ef, open, observability.Discard(), 0)
}

func TestValidatePage_PassSkipsFixing(t *testing.T) {
	v := &fakeValidator{verdict: &validator.Verdict{Passed: true, Mode: validator.ModeBrowser, Message: "Page rendered content and shows no error overlay."}}
	fx := &fakeFixer{}
	r := &fakeRunner{startup: []detect.DetectedError{detect.New(detect.MissingDependency, "x", detect.WithPackage("axios"))}}

	out := newToolkit(r, v, fx, nil).ValidatePage(context.Background(), "http://localhost:3000", 0, t.TempDir())

	assert.Contains(t, out, "Validation passed")
	assert.Empty(t, fx.got)
	assert.Equal(t, validator.DefaultTimeout, v.timeout)
}

func TestValidatePage_FixesMergedErrors(t *testing.T) {
	pageErr := detect.New(detect.MissingDependency, "Failed to resolve module specifier \"dayjs\"", detect.WithPackage("dayjs"))
	v := &fakeValidator{verdict: &validator.Verdict{
		Mode:    validator.ModeBrowser,
		Message: "The page reported 2 error(s).",
		Errors:  []detect.DetectedError{pageErr, detect.New(detect.Unknown, "TypeError: x is undefined")},
	}}
	r := &fakeRunner{startup: []detect.DetectedError{
		detect.New(detect.MissingDependency, "Cannot find module 'dayjs'", detect.WithPackage("dayjs")),
		detect.New(detect.MissingDependency, "Cannot find module 'zod'", detect.WithPackage("zod")),
	}}
	fx := &fakeFixer{}

	out := newToolkit(r, v, fx, nil).ValidatePage(context.Background(), "http://localhost:3000", 5*time.Second, t.TempDir())

	assert.Contains(t, out, "Validation failed")
	assert.Contains(t, out, "also reported 1 error(s) during startup")
	assert.Contains(t, out, "npm install zod")
	require.Len(t, fx.got, 2)
	assert.Equal(t, "dayjs", fx.got[0].PackageName)
	assert.Equal(t, "zod", fx.got[1].PackageName)
	assert.Contains(t, out, "Auto-fix results:\n1. [installed] OK: installed dayjs")
	assert.Contains(t, out, "Run validate_page again")
}

func TestValidatePage_WithoutCwdOnlyReports(t *testing.T) {
	v := &fakeValidator{verdict: &validator.Verdict{
		Mode:   validator.ModeHTTP,
		Errors: []detect.DetectedError{detect.New(detect.MissingDependency, "x", detect.WithPackage("axios"))},
	}}
	fx := &fakeFixer{}

	out := newToolkit(&fakeRunner{}, v, fx, nil).ValidatePage(context.Background(), "http://localhost:3000", 0, "")

	assert.Contains(t, out, "Validation failed")
	assert.Empty(t, fx.got)
}

func TestValidatePage_Error(t *testing.T) {
	v := &fakeValidator{err: errors.New("invalid URL")}

	out := newToolkit(&fakeRunner{}, v, nil, nil).ValidatePage(context.Background(), "nope", 0, "")

	assert.Equal(t, "Error: could not validate nope: invalid URL", out)
}

func TestOpenBrowserPreview(t *testing.T) {
	var opened []string
	open := func(url string) error {
		if url == "bad" {
			return errors.New("invalid URL")
		}
		opened = append(opened, url)
		return nil
	}
	tk := newToolkit(&fakeRunner{}, &fakeValidator{}, nil, open)

	assert.Equal(t, "Opened http://localhost:4173 in the browser.", tk.OpenBrowserPreview(context.Background(), "http://localhost:4173"))
	assert.Contains(t, tk.OpenBrowserPreview(context.Background(), "bad"), "Error: could not open bad")
	assert.Equal(t, []string{"http://localhost:4173"}, opened)

	noOpen := newToolkit(&fakeRunner{}, &fakeValidator{}, nil, nil)
	assert.Contains(t, noOpen.OpenBrowserPreview(context.Background(), "http://localhost:4173"), "Error:")
}

func findTool(t *testing.T, tools []server.ServerTool, name string) server.ServerTool {
	t.Helper()
	for _, st := range tools {
		if st.Tool.Name == name {
			return st
		}
	}
	t.Fatalf("tool %s not registered", name)
	return server.ServerTool{}
}

func callTool(t *testing.T, st server.ServerTool, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Name = st.Tool.Name
	req.Params.Arguments = args
	res, err := st.Handler(context.Background(), req)
	require.NoError(t, err)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestServerTools(t *testing.T) {
	r := &fakeRunner{}
	v := &fakeValidator{verdict: &validator.Verdict{Passed: true, Mode: validator.ModeBrowser}}
	tk := newToolkit(r, v, nil, func(string) error { return nil })
	tools := tk.ServerTools()

	var names []string
	for _, st := range tools {
		names = append(names, st.Tool.Name)
	}
	assert.ElementsMatch(t, []string{"run_command", "open_browser_preview", "kill_project_dev_server", "validate_page", "dev_server_status"}, names)

	res := callTool(t, findTool(t, tools, "run_command"), map[string]any{"command": "npm run dev", "cwd": "/app"})
	assert.Equal(t, "ran npm run dev", resultText(t, res))
	assert.Equal(t, []string{"npm run dev@/app"}, r.commands)

	res = callTool(t, findTool(t, tools, "run_command"), map[string]any{})
	assert.True(t, res.IsError)

	res = callTool(t, findTool(t, tools, "kill_project_dev_server"), map[string]any{"cwd": "/app"})
	assert.Contains(t, resultText(t, res), "nothing to kill")
	assert.Equal(t, []string{"/app"}, r.killed)

	res = callTool(t, findTool(t, tools, "validate_page"), map[string]any{"url": "http://localhost:3000", "timeout": float64(2500)})
	assert.Contains(t, resultText(t, res), "Validation passed")
	assert.Equal(t, 2500*time.Millisecond, v.timeout)

	res = callTool(t, findTool(t, tools, "dev_server_status"), nil)
	assert.Equal(t, "No tracked servers.", resultText(t, res))
}

func TestNewMCPServer(t *testing.T) {
	tk := newToolkit(&fakeRunner{}, &fakeValidator{}, nil, nil)
	assert.NotNil(t, NewMCPServer(tk, "test"))
}
