// Package ui renders live test progress in a terminal.
package ui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/CursiveCrow/spectest/internal/discovery"
	"github.com/CursiveCrow/spectest/internal/harness"
	"github.com/CursiveCrow/spectest/pkg/outcome"
)

// maxRunningShown bounds the list of in-flight tests.
const maxRunningShown = 8

// Event reports a scheduler transition. Outcome is nil for a start.
type Event struct {
	Test    discovery.TestCase
	Outcome *harness.Outcome
}

// ChannelSink forwards scheduler observations to Ch.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) TestStarted(tc discovery.TestCase) {
	s.Ch <- Event{Test: tc}
}

func (s ChannelSink) TestFinished(o harness.Outcome) {
	s.Ch <- Event{Test: o.Test, Outcome: &o}
}

type progressModel struct {
	title    string
	events   <-chan Event
	spinner  spinner.Model
	prog     progress.Model
	total    int
	finished int
	running  []string
	counts   map[outcome.Kind]int
	failures []string
	width    int
	done     bool

	cancel      context.CancelFunc
	interrupted bool
}

type eventMsg Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders scheduler
// progress for total tests. It quits once events is closed. Ctrl+C calls
// cancel and keeps draining events until the scheduler stops.
func NewProgressModel(title string, total int, events <-chan Event, cancel context.CancelFunc) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		total:   total,
		counts:  make(map[outcome.Kind]int),
		width:   80,
		cancel:  cancel,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC && !m.interrupted {
			m.interrupted = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := fmt.Sprintf("%s [%d/%d]", m.title, m.finished, m.total)
	switch {
	case m.done:
		header = "done: " + header
	case m.interrupted:
		header = m.spinner.View() + " interrupted, waiting for running tests: " + header
	default:
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	nameWidth := max(m.width-6, 20)
	running := m.running
	if len(running) > maxRunningShown {
		running = running[:maxRunningShown]
	}
	for _, name := range running {
		b.WriteString("  ")
		b.WriteString(runningStyle.Render("running"))
		b.WriteString(" ")
		b.WriteString(truncate(name, nameWidth-8))
		b.WriteString("\n")
	}
	if extra := len(m.running) - len(running); extra > 0 {
		fmt.Fprintf(&b, "  ... and %d more\n", extra)
	}
	for _, name := range m.failures {
		b.WriteString("  ")
		b.WriteString(styleKind(outcome.Fail).Render("failed "))
		b.WriteString(" ")
		b.WriteString(truncate(name, nameWidth-8))
		b.WriteString("\n")
	}

	b.WriteString("\n  ")
	parts := make([]string, 0, len(outcome.Kinds))
	for _, k := range outcome.Kinds {
		parts = append(parts, styleKind(k).Render(fmt.Sprintf("%d %s", m.counts[k], k)))
	}
	b.WriteString(strings.Join(parts, "  "))
	b.WriteString("\n\n")

	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev Event) tea.Cmd {
	if ev.Outcome == nil {
		m.running = append(m.running, ev.Test.Name)
		return nil
	}

	if i := slices.Index(m.running, ev.Test.Name); i >= 0 {
		m.running = slices.Delete(m.running, i, i+1)
	}
	m.finished++
	m.counts[ev.Outcome.Kind]++
	if ev.Outcome.Kind.IsFailure() {
		m.failures = append(m.failures, ev.Test.Name)
	}

	if m.total == 0 {
		return nil
	}
	return m.prog.SetPercent(float64(m.finished) / float64(m.total))
}

var runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

func styleKind(k outcome.Kind) lipgloss.Style {
	switch k {
	case outcome.Pass:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case outcome.Fail:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case outcome.Skip:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	case outcome.XFail:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	case outcome.XPass:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
