package ui

import (
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type doneMsg struct{}

type spinnerModel struct {
	spinner spinner.Model
	message string
	done    bool
}

func newSpinnerModel(message string) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(info)
	return spinnerModel{spinner: s, message: message}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + m.message + "\n"
}

// RunWithSpinner runs fn while a spinner animates on stderr and returns its
// result. Without a terminal it prints message once instead.
func RunWithSpinner(message string, fn func() string) string {
	if !IsInteractive() {
		Info(message)
		return fn()
	}

	// No input: Ctrl+C must reach the process signal handler
	p := tea.NewProgram(newSpinnerModel(message), tea.WithOutput(os.Stderr), tea.WithInput(nil))

	result := make(chan string, 1)
	go func() {
		result <- fn()
		p.Send(doneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		Muted("spinner: " + err.Error())
	}
	return <-result
}
