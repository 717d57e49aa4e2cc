package tui

import (
	"fmt"
	"io"
	"strings"
)

// Severity selects the styling of a result box.
type Severity int

// Severities.
const (
	SeveritySuccess Severity = iota
	SeverityWarning
	SeverityError
)

// ResultView is the final message of a command.
type ResultView struct {
	Title       string
	Description string
	Details     []string
	Severity    Severity
}

// Render returns the result formatted for mode.
func (r ResultView) Render(mode OutputMode) string {
	if mode == OutputModePlain {
		var b strings.Builder
		fmt.Fprintf(&b, "%s: %s\n", r.Title, r.Description)
		for _, d := range r.Details {
			fmt.Fprintf(&b, "  %s\n", d)
		}
		return b.String()
	}

	title := SuccessStyle
	switch r.Severity {
	case SeverityWarning:
		title = WarningStyle
	case SeverityError:
		title = ErrorStyle
	case SeveritySuccess:
	}
	var b strings.Builder
	b.WriteString(title.Render(r.Title))
	b.WriteString("\n")
	b.WriteString(r.Description)
	for _, d := range r.Details {
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render(d))
	}
	return BoxStyle.Render(b.String()) + "\n"
}

// Print writes the rendered result to w.
func (r ResultView) Print(w io.Writer, mode OutputMode) {
	fmt.Fprint(w, r.Render(mode))
}
