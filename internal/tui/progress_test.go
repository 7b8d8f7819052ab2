package tui

import (
	"errors"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestModelTracksProgressAndLog(t *testing.T) {
	t.Parallel()

	m := NewModel("Assignment A1", nil)
	m, _ = update(t, m, ProgressMsg{Completed: 0, Total: 4})
	assert.Zero(t, m.Percent())

	m, _ = update(t, m, LogMsg("user001: review passed, graded 20 points"))
	m, _ = update(t, m, ProgressMsg{Completed: 2, Total: 4})

	assert.Equal(t, 0.5, m.Percent())
	view := m.View()
	assert.Contains(t, view, "Assignment A1")
	assert.Contains(t, view, "2/4")
	assert.Contains(t, view, "50%")
	assert.Contains(t, view, "user001: review passed")
}

func TestModelKeepsLogTail(t *testing.T) {
	t.Parallel()

	m := NewModel("run", nil)
	for i := range tailLines + 5 {
		m, _ = update(t, m, LogMsg(fmt.Sprintf("line %d", i)))
	}
	require.Len(t, m.lines, tailLines)
	assert.Equal(t, "line 5", m.lines[0])
}

func TestModelCancelThenQuit(t *testing.T) {
	t.Parallel()

	cancelled := 0
	m := NewModel("run", func() { cancelled++ })

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd)
	assert.Equal(t, 1, cancelled)
	assert.Contains(t, m.View(), "cancelling")

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 1, cancelled)
}

func TestModelDone(t *testing.T) {
	t.Parallel()

	m := NewModel("run", nil)
	m, cmd := update(t, m, DoneMsg{Err: errors.New("rubric missing")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "batch failed: rubric missing")
}
