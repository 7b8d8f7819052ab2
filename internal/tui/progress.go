// Package tui renders a live view of a grading batch: a progress bar over
// submitters plus the tail of the batch log.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"GradePipeline/internal/ports"
)

const (
	tailLines = 12
	maxWidth  = 80
)

// LogMsg carries one batch log line.
type LogMsg string

// ProgressMsg carries a (completed, total) tick.
type ProgressMsg struct {
	Completed int
	Total     int
}

// DoneMsg ends the program once the batch has returned.
type DoneMsg struct {
	Err error
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
	hintStyle = lipgloss.NewStyle().
			Faint(true)
)

// Model is the bubbletea model of a running batch.
type Model struct {
	title      string
	bar        progress.Model
	lines      []string
	completed  int
	total      int
	done       bool
	err        error
	cancelling bool
	cancel     context.CancelFunc
}

// NewModel builds a model; cancel is invoked on the first ctrl+c.
func NewModel(title string, cancel context.CancelFunc) Model {
	return Model{
		title:  title,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxWidth-10)),
		cancel: cancel,
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() != "ctrl+c" {
			return m, nil
		}
		if m.cancelling || m.done {
			return m, tea.Quit
		}
		m.cancelling = true
		if m.cancel != nil {
			m.cancel()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = min(maxWidth, msg.Width) - 10
		if m.bar.Width < 10 {
			m.bar.Width = 10
		}
		return m, nil

	case LogMsg:
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > tailLines {
			m.lines = m.lines[len(m.lines)-tailLines:]
		}
		return m, nil

	case ProgressMsg:
		m.completed, m.total = msg.Completed, msg.Total
		return m, nil

	case DoneMsg:
		m.done, m.err = true, msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// Percent is the share of submitters finished.
func (m Model) Percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.completed) / float64(m.total)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s  %d/%d\n", m.bar.ViewAs(m.Percent()), m.completed, m.total)

	if len(m.lines) > 0 {
		b.WriteString(boxStyle.Render(logStyle.Render(strings.Join(m.lines, "\n"))))
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(errStyle.Render("batch failed: " + m.err.Error()))
	case m.done:
		b.WriteString("done")
	case m.cancelling:
		b.WriteString(hintStyle.Render("cancelling: waiting for running submitters"))
	default:
		b.WriteString(hintStyle.Render("ctrl+c to stop scheduling"))
	}
	b.WriteString("\n")
	return b.String()
}

// Sink forwards batch events into a running program.
type Sink struct {
	program *tea.Program
}

var _ ports.ProgressSink = Sink{}

func (s Sink) Log(line string) { s.program.Send(LogMsg(line)) }

func (s Sink) Progress(completed, total int) {
	s.program.Send(ProgressMsg{Completed: completed, Total: total})
}

// Run shows the view while work executes and returns work's error. The
// context handed to work is cancelled on ctrl+c.
func Run(ctx context.Context, title string, work func(context.Context, ports.ProgressSink) error, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(title, cancel), opts...)
	errc := make(chan error, 1)
	go func() {
		err := work(ctx, Sink{program: p})
		errc <- err
		p.Send(DoneMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-errc
		return fmt.Errorf("tui: %w", err)
	}
	return <-errc
}
