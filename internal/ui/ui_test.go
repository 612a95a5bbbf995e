package ui

import (
	"bytes"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOut(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Out
	Out = &buf
	t.Cleanup(func() { Out = prev })
	return &buf
}

func TestResult_PicksStyleByOutcome(t *testing.T) {
	tests := []struct {
		text   string
		symbol string
	}{
		{"Dev server started on port 3000 (pid 42).", "✓"},
		{"Error: command failed with exit code 1", "✗"},
		{"Validation failed for http://localhost:3000/ (browser).", "✗"},
		{"No dev server running on port 3000; nothing to kill.", "ℹ"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			buf := captureOut(t)
			Result(tt.text)
			assert.Contains(t, buf.String(), tt.symbol)
			assert.Contains(t, buf.String(), tt.text)
		})
	}
}

func TestRunWithSpinner_NonInteractive(t *testing.T) {
	t.Setenv("CI", "1")
	buf := captureOut(t)

	got := RunWithSpinner("Starting dev server", func() string { return "done" })

	assert.Equal(t, "done", got)
	assert.Contains(t, buf.String(), "Starting dev server")
}

func TestSpinnerModel_QuitsWhenDone(t *testing.T) {
	m := newSpinnerModel("waiting")
	assert.Contains(t, m.View(), "waiting")

	next, cmd := m.Update(doneMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, next.View())
}

func TestOpenBrowser_RejectsBadURLs(t *testing.T) {
	for _, u := range []string{"", "localhost:3000", "file:///etc/passwd", "javascript:alert(1)"} {
		assert.Error(t, OpenBrowser(u), u)
	}
}

func TestOpenCommand(t *testing.T) {
	cmd, err := openCommand("darwin", "http://localhost:3000")
	require.NoError(t, err)
	assert.Equal(t, []string{"open", "http://localhost:3000"}, cmd.Args)

	cmd, err = openCommand("windows", "http://localhost:3000")
	require.NoError(t, err)
	assert.Equal(t, []string{"rundll32", "url.dll,FileProtocolHandler", "http://localhost:3000"}, cmd.Args)

	_, err = openCommand("plan9", "http://localhost:3000")
	assert.Error(t, err)
}
