package tui

import (
	"os"

	"golang.org/x/term"
)

// OutputMode selects how results are rendered.
type OutputMode int

const (
	// OutputModePlain writes unstyled text, for pipes and log files.
	OutputModePlain OutputMode = iota
	// OutputModeStyled writes colored text without interactive widgets.
	OutputModeStyled
	// OutputModeInteractive runs Bubble Tea programs.
	OutputModeInteractive
)

// DetectOutputMode picks the richest mode stdout supports. NO_COLOR and
// TERM=dumb force plain output; CI forces non-interactive output.
func DetectOutputMode(forcePlain, noColor, noInteractive bool) OutputMode {
	if forcePlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		return OutputModePlain
	}
	if noColor || os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return OutputModePlain
	}
	if noInteractive || os.Getenv("CI") != "" {
		return OutputModeStyled
	}
	return OutputModeInteractive
}
