// Package tui renders progress and results for the command line.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	progressDefaultWidth = 50
	progressMaxWidth     = 80
	progressPadding      = 4
)

// ProgressMsg updates the progress bar.
type ProgressMsg struct {
	Current int
	Total   int
}

// DoneMsg ends the progress program.
type DoneMsg struct{}

// ProgressModel is a Bubble Tea model showing a single progress bar. The
// unit names what Current counts ("part", "measurement").
type ProgressModel struct {
	title      string
	unit       string
	bar        progress.Model
	current    int
	total      int
	cancel     func()
	cancelling bool
	done       bool
}

// NewProgressModel creates the model. cancel is invoked once when the user
// presses ctrl+c, q or esc; the program keeps running until DoneMsg.
func NewProgressModel(title, unit string, cancel func()) ProgressModel {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = progressDefaultWidth
	return ProgressModel{title: title, unit: unit, bar: bar, cancel: cancel}
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-progressPadding, progressMaxWidth)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.cancelling && m.cancel != nil {
				m.cancel()
			}
			m.cancelling = true
		}
		return m, nil

	case ProgressMsg:
		m.current = msg.Current
		m.total = msg.Total
		return m, nil

	case DoneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// Percent returns the completed fraction in [0, 1].
func (m ProgressModel) Percent() float64 {
	if m.total <= 0 {
		return 0
	}
	return min(float64(m.current)/float64(m.total), 1)
}

// Cancelling reports whether the user asked to stop.
func (m ProgressModel) Cancelling() bool {
	return m.cancelling
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(m.Percent()))
	b.WriteString("\n")
	if m.total > 0 {
		b.WriteString(LabelStyle.Render(fmt.Sprintf("%s %d of %d", capitalize(m.unit), m.current, m.total)))
	}
	b.WriteString("\n")
	if m.cancelling {
		b.WriteString(WarningStyle.Render("Cancelling after the current step..."))
	} else {
		b.WriteString(SubtleStyle.Render("Press q to cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
