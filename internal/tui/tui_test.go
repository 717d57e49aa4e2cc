package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(t *testing.T, m ProgressModel, msg tea.Msg) (ProgressModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	pm, ok := next.(ProgressModel)
	require.True(t, ok)
	return pm, cmd
}

func TestProgressModel(t *testing.T) {
	cancels := 0
	m := NewProgressModel("Uploading measurements", "part", func() { cancels++ })
	assert.Nil(t, m.Init())
	assert.Zero(t, m.Percent())

	m, _ = update(t, m, ProgressMsg{Current: 2, Total: 4})
	assert.InDelta(t, 0.5, m.Percent(), 1e-9)
	view := m.View()
	assert.Contains(t, view, "Uploading measurements")
	assert.Contains(t, view, "Part 2 of 4")
	assert.Contains(t, view, "Press q to cancel")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd, "the program keeps running until the work finishes")
	assert.True(t, m.Cancelling())
	assert.Contains(t, m.View(), "Cancelling")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Equal(t, 1, cancels, "cancel is invoked once")

	m, cmd = update(t, m, DoneMsg{})
	require.NotNil(t, cmd)
	_, isQuit := cmd().(tea.QuitMsg)
	assert.True(t, isQuit)
	assert.Empty(t, m.View())
}

func TestProgressModelClampsAndResizes(t *testing.T) {
	m := NewProgressModel("Exporting", "measurement", nil)
	m, _ = update(t, m, ProgressMsg{Current: 12, Total: 10})
	assert.Equal(t, 1.0, m.Percent())

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 200, Height: 40})
	assert.Equal(t, progressMaxWidth, m.bar.Width)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.True(t, m.Cancelling(), "nil cancel func is tolerated")
}

func TestResultViewPlain(t *testing.T) {
	r := ResultView{
		Title:       "Upload finished",
		Description: "All measurements have been uploaded.",
		Details:     []string{"Uploaded: 1000"},
	}
	out := r.Render(OutputModePlain)
	assert.Equal(t, "Upload finished: All measurements have been uploaded.\n  Uploaded: 1000\n", out)

	var b strings.Builder
	r.Severity = SeverityError
	r.Print(&b, OutputModeStyled)
	assert.Contains(t, b.String(), "Upload finished")
	assert.Contains(t, b.String(), "Uploaded: 1000")
}

func TestDetectOutputModeForcePlain(t *testing.T) {
	assert.Equal(t, OutputModePlain, DetectOutputMode(true, false, false))
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, OutputModePlain, DetectOutputMode(false, false, false))
}
