package tui

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// RunWithProgress runs work while showing a progress bar on out. work
// receives an update function that is safe to call from any goroutine.
// RunWithProgress returns after both work and the program have finished.
func RunWithProgress(
	out io.Writer,
	title, unit string,
	cancel func(),
	work func(update func(current, total int)),
) error {
	p := tea.NewProgram(NewProgressModel(title, unit, cancel), tea.WithOutput(out))

	done := make(chan struct{})
	go func() {
		defer close(done)
		work(func(current, total int) {
			p.Send(ProgressMsg{Current: current, Total: total})
		})
		p.Send(DoneMsg{})
	}()

	_, err := p.Run()
	if err != nil && cancel != nil {
		cancel()
	}
	<-done
	if err != nil {
		return fmt.Errorf("running progress view: %w", err)
	}
	return nil
}
