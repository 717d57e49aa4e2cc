package tui

import "github.com/charmbracelet/lipgloss"

// Colors.
const (
	ColorGreen  = lipgloss.Color("42")
	ColorYellow = lipgloss.Color("214")
	ColorRed    = lipgloss.Color("196")
	ColorBlue   = lipgloss.Color("39")
	ColorGray   = lipgloss.Color("245")
)

// Shared styles.
//
//nolint:gochecknoglobals // Style definitions.
var (
	HeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorBlue)
	LabelStyle   = lipgloss.NewStyle().Foreground(ColorGray)
	ValueStyle   = lipgloss.NewStyle().Bold(true)
	SubtleStyle  = lipgloss.NewStyle().Foreground(ColorGray).Italic(true)
	SuccessStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorGreen)
	WarningStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorYellow)
	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorRed)
	BoxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 1)
)
