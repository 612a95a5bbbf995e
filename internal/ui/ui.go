package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Out receives every styled line; tests swap it for a buffer
var Out io.Writer = os.Stdout

var (
	subtle     = lipgloss.AdaptiveColor{Light: "#666", Dark: "#999"}
	success    = lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"}
	warning    = lipgloss.AdaptiveColor{Light: "#AAAA00", Dark: "#FFFF00"}
	errorColor = lipgloss.AdaptiveColor{Light: "#AA0000", Dark: "#FF0000"}
	info       = lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#00AAFF"}

	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warning).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(info)
	mutedStyle   = lipgloss.NewStyle().Foreground(subtle)
)

func Success(msg string) {
	fmt.Fprintln(Out, successStyle.Render("✓"), msg)
}

func Info(msg string) {
	fmt.Fprintln(Out, infoStyle.Render("ℹ"), msg)
}

func Warn(msg string) {
	fmt.Fprintln(Out, warnStyle.Render("⚠"), msg)
}

func Error(msg string) {
	fmt.Fprintln(Out, errorStyle.Render("✗"), msg)
}

// Muted prints secondary detail
func Muted(msg string) {
	fmt.Fprintln(Out, mutedStyle.Render(msg))
}

// Result prints a tool result, styling its first line by outcome
func Result(text string) {
	switch {
	case strings.HasPrefix(text, "Error:"), strings.HasPrefix(text, "Validation failed"):
		Error(text)
	case strings.HasPrefix(text, "No "):
		Info(text)
	default:
		Success(text)
	}
}

// IsInteractive reports whether stdout is a terminal that can animate
func IsInteractive() bool {
	if os.Getenv("TERM") == "dumb" || os.Getenv("CI") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
