package validator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshul/octo-runner/internal/detect"
	"github.com/harshul/octo-runner/internal/observability"
)

type fakeRunner struct {
	sig   *Signals
	err   error
	calls int
}

func (f *fakeRunner) Collect(ctx context.Context, _ string) (*Signals, error) {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("collect called without a deadline")
	}
	return f.sig, f.err
}

func page(status int, html string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, html)
	}))
}

func TestValidatePage_BrowserPass(t *testing.T) {
	runner := &fakeRunner{sig: &Signals{
		Console: []string{"[vite] connected."},
		Probe:   &Probe{BodyText: "Welcome", Title: "Vite App", HasRoot: true},
	}}
	v := New(runner, observability.Discard())

	out := v.ValidatePage(context.Background(), "http://localhost:3000/", 0, "")

	assert.Equal(t, 1, runner.calls)
	assert.Contains(t, out, "Validation passed for http://localhost:3000/ (browser)")
	assert.NotContains(t, out, "Detected")
}

func TestValidatePage_BrowserFailListsHints(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{sig: &Signals{
		Console: []string{`Failed to resolve module specifier "dayjs"`},
		Probe:   &Probe{},
	}}
	v := New(runner, observability.Discard())

	out := v.ValidatePage(context.Background(), "http://localhost:3000/", time.Second, dir)

	assert.Contains(t, out, "Validation failed for http://localhost:3000/ (browser)")
	assert.Contains(t, out, "[missing_dependency]")
	assert.Contains(t, out, "npm install dayjs")
}

func TestValidate_FallsBackToHTTP(t *testing.T) {
	srv := page(http.StatusOK, `<html><head><title>App</title></head><body><div id="root"></div></body></html>`)
	defer srv.Close()

	tests := []struct {
		name   string
		runner BrowserRunner
		reason string
	}{
		{"no browser", nil, ErrBrowserUnavailable.Error()},
		{"browser unavailable", &fakeRunner{err: ErrBrowserUnavailable}, ErrBrowserUnavailable.Error()},
		{"browser crashed", &fakeRunner{err: errors.New("websocket closed")}, "websocket closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(tt.runner, observability.Discard())

			verdict, err := v.Validate(context.Background(), srv.URL, time.Second, "")

			require.NoError(t, err)
			assert.True(t, verdict.Passed)
			assert.Equal(t, ModeHTTP, verdict.Mode)
			require.Len(t, verdict.Notes, 2)
			assert.Contains(t, verdict.Notes[0], "less certain")
			assert.Contains(t, verdict.Notes[1], tt.reason)
		})
	}
}

func TestValidate_HTTPFindsResolverErrors(t *testing.T) {
	srv := page(http.StatusInternalServerError,
		`<html><body><pre>[vite] Internal server error: Failed to resolve import "react-router-dom" from "src/main.tsx". Does the file exist?</pre></body></html>`)
	defer srv.Close()

	verdict, err := New(nil, observability.Discard()).Validate(context.Background(), srv.URL, time.Second, "/app")

	require.NoError(t, err)
	assert.False(t, verdict.Passed)
	require.Len(t, verdict.Errors, 2)
	assert.Equal(t, detect.Unknown, verdict.Errors[0].Type)
	assert.Contains(t, verdict.Errors[0].Message, "HTTP 500")
	assert.Equal(t, detect.MissingDependency, verdict.Errors[1].Type)
	assert.Equal(t, "react-router-dom", verdict.Errors[1].PackageName)
}

func TestValidate_HTTPNotFound(t *testing.T) {
	srv := page(http.StatusNotFound, "not found")
	defer srv.Close()

	verdict, err := New(nil, observability.Discard()).Validate(context.Background(), srv.URL+"/missing", time.Second, "")

	require.NoError(t, err)
	assert.False(t, verdict.Passed)
	assert.Contains(t, verdict.Message, "HTTP 404")
}

func TestValidatePage_Unreachable(t *testing.T) {
	srv := page(http.StatusOK, "")
	url := srv.URL
	srv.Close()

	out := New(nil, observability.Discard()).ValidatePage(context.Background(), url, time.Second, "")

	assert.Contains(t, out, "Error: could not validate")
}

func TestValidate_InvalidURL(t *testing.T) {
	v := New(&fakeRunner{}, observability.Discard())

	for _, u := range []string{"", "localhost:3000", "ftp://example.com", "http://"} {
		_, err := v.Validate(context.Background(), u, time.Second, "")
		assert.Error(t, err, u)
	}
}
