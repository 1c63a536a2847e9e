// Package tui renders a live episode in the terminal. It follows the Elm
// architecture bubbletea uses: Update consumes messages, View renders.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/agent"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
)

const historyLines = 8

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	agentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	otherStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	hazardStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	foodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

type tickMsg time.Time

// StepHook is called after every step, e.g. to persist it. An error stops
// the episode.
type StepHook func(agent.StepResult) error

// Option customises a Model.
type Option func(*Model)

// WithInterval sets the delay between automatic steps.
func WithInterval(d time.Duration) Option {
	return func(m *Model) { m.interval = d }
}

// WithStepHook registers fn to run after each step.
func WithStepHook(fn StepHook) Option {
	return func(m *Model) { m.hook = fn }
}

// Model watches one agent play one world. The agent must already be reset.
type Model struct {
	agent *agent.Agent
	world *env.GridWorld
	hook  StepHook

	spinner  spinner.Model
	interval time.Duration
	paused   bool
	done     bool
	err      error

	last         *agent.StepResult
	totalReality float64
	totalEthical float64
	history      []string
}

// New builds a watch model.
func New(a *agent.Agent, w *env.GridWorld, opts ...Option) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle
	m := Model{agent: a, world: w, spinner: sp, interval: 150 * time.Millisecond}
	for _, o := range opts {
		o(&m)
	}
	m.done = w.Done()
	return m
}

// Init starts the spinner and the step clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles keys, the step clock, and spinner frames.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ", "p":
			m.paused = !m.paused
		case "n":
			if m.paused {
				m.advance()
			}
		}
		return m, nil
	case tickMsg:
		if m.done || m.err != nil {
			return m, nil
		}
		if !m.paused {
			m.advance()
		}
		return m, m.tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) advance() {
	if m.done || m.err != nil {
		return
	}
	res, err := m.agent.Step(m.world)
	if err == nil && m.hook != nil {
		err = m.hook(res)
	}
	if err != nil {
		m.err = err
		return
	}
	m.last = &res
	m.totalReality += res.RealityCost
	m.totalEthical += res.EthicalCost
	m.done = res.Done

	line := fmt.Sprintf("t=%03d %-5s score=%.3f eth=%.2f", m.agent.StepCount(), env.ActionName(res.Info.Action), res.Info.Score, res.EthicalCost)
	if res.DentAdded {
		line += " +dent"
	}
	if res.Sleep != nil {
		line += fmt.Sprintf(" sleep %d->%d", res.Sleep.DentsBefore, res.Sleep.DentsAfter)
	}
	m.history = append(m.history, line)
	if len(m.history) > historyLines {
		m.history = m.history[len(m.history)-historyLines:]
	}
}

// Err returns the error that stopped the episode, if any.
func (m Model) Err() error { return m.err }

// Done reports whether the episode has finished.
func (m Model) Done() bool { return m.done }

// View renders the header, grid, stats panel, and recent history.
func (m Model) View() string {
	var b strings.Builder

	header := titleStyle.Render("REE agent")
	switch {
	case m.err != nil:
		header += " " + errStyle.Render("stopped")
	case m.done:
		header += " " + dimStyle.Render("episode done")
	case m.paused:
		header += " " + dimStyle.Render("paused")
	default:
		header += " " + m.spinner.View()
	}
	fmt.Fprintf(&b, "%s  step %d/%d\n\n", header, m.agent.StepCount(), m.world.MaxSteps())

	grid := panelStyle.Render(m.renderGrid())
	stats := panelStyle.Render(m.renderStats())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, grid, " ", stats))
	b.WriteString("\n")

	for _, line := range m.history {
		b.WriteString(dimStyle.Render(line))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("space pause · n step · q quit"))
	return b.String()
}

func (m Model) renderGrid() string {
	size := m.world.Size()
	var rows []string
	for y := size - 1; y >= 0; y-- {
		cells := make([]string, size)
		for x := 0; x < size; x++ {
			p := env.Point{X: x, Y: y}
			switch {
			case p == m.world.Agent():
				cells[x] = agentStyle.Render("A")
			case p == m.world.Other():
				cells[x] = otherStyle.Render("O")
			case m.world.IsHazard(p):
				cells[x] = hazardStyle.Render("X")
			case p == m.world.Food():
				cells[x] = foodStyle.Render("F")
			default:
				cells[x] = dimStyle.Render(".")
			}
		}
		rows = append(rows, strings.Join(cells, " "))
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderStats() string {
	lines := []string{
		fmt.Sprintf("battery    %.2f", m.world.Battery()),
		fmt.Sprintf("dents      %d", m.agent.Residue().Count()),
		fmt.Sprintf("β alpha    %.3f", m.agent.Stack().Alpha(lspace.Beta)),
		fmt.Sprintf("reality Σ  %.3f", m.totalReality),
		fmt.Sprintf("ethical Σ  %.3f", m.totalEthical),
	}
	if m.last != nil {
		lines = append(lines,
			"",
			fmt.Sprintf("action     %s", env.ActionName(m.last.Info.Action)),
			fmt.Sprintf("score      %.3f", m.last.Info.Score),
			fmt.Sprintf("  reality  %.3f", m.last.Info.RealityCost),
			fmt.Sprintf("  ethical  %.3f", m.last.Info.EthicalCost),
			fmt.Sprintf("  residue  %.3f", m.last.Info.ResidueCost),
		)
	}
	return strings.Join(lines, "\n")
}
