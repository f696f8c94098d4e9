// Package tui provides a terminal simulator for the twister2midi surface
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/james-see/twister2midi/pkg/encoder"
	"github.com/james-see/twister2midi/pkg/scan"
	"github.com/james-see/twister2midi/pkg/surface"
	"github.com/james-see/twister2midi/pkg/transport"
)

// Acid-inspired color scheme
var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	bankStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			Padding(0, 1)

	activeBankStyle = lipgloss.NewStyle().
			Foreground(darkGray).
			Background(acidGreen).
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(darkGray).
			Foreground(silverGray).
			Width(14)

	selectedCellStyle = cellStyle.
				BorderForeground(acidGreen).
				Foreground(acidGreen)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(0, 1)
)

// frame is the redraw interval; the surface is stepped enough times per
// frame to keep its scan interval.
const frame = 16 * time.Millisecond

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(frame, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// release lets go of a tapped switch after a number of steps.
type release struct {
	side  bool
	index int
	steps int
}

// Model represents the TUI model
type Model struct {
	surface *surface.Surface
	sim     *scan.Simulator
	monitor *transport.Monitor

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	state    surface.State
	cursor   int
	held     map[int]bool
	releases []release
	steps    int
	err      error
	width    int
}

// New creates a model driving s. The model steps s itself, so s must not
// be running elsewhere. monitor may be nil.
func New(s *surface.Surface, monitor *transport.Monitor) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(acidGreen)

	steps := int(frame / s.Config().ScanInterval)
	if steps < 1 {
		steps = 1
	}
	return Model{
		surface: s,
		sim:     s.Simulator(),
		monitor: monitor,
		keys:    defaultKeys(),
		help:    help.New(),
		spinner: sp,
		state:   s.Snapshot(),
		held:    make(map[int]bool),
		steps:   steps,
	}
}

// Init starts the scan clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.spinner.Tick)
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.advance(m.steps)
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

// advance steps the surface n times and refreshes the snapshot.
func (m *Model) advance(n int) {
	for i := 0; i < n; i++ {
		if err := m.surface.Step(); err != nil {
			m.err = err
		}
		m.tickReleases()
	}
	m.state = m.surface.Snapshot()
}

func (m *Model) tickReleases() {
	kept := m.releases[:0]
	for _, r := range m.releases {
		r.steps--
		if r.steps > 0 {
			kept = append(kept, r)
			continue
		}
		if r.side {
			m.setErr(m.sim.PressSide(r.index, false))
		} else {
			m.setErr(m.sim.PressEncoder(r.index, false))
		}
	}
	m.releases = kept
}

func (m *Model) setErr(err error) {
	if err != nil {
		m.err = err
	}
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Left):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Right):
		if m.cursor < len(m.state.Encoders)-1 {
			m.cursor++
		}
		return m, nil
	}

	if m.sim == nil {
		m.err = fmt.Errorf("controls need the simulated source")
		return m, nil
	}
	m.err = nil
	tap := m.surface.Config().DebounceDepth + 2

	switch {
	case key.Matches(msg, m.keys.Up):
		m.setErr(m.sim.Turn(m.cursor, 1))
	case key.Matches(msg, m.keys.Down):
		m.setErr(m.sim.Turn(m.cursor, -1))
	case key.Matches(msg, m.keys.FastUp):
		m.setErr(m.sim.Turn(m.cursor, 5))
	case key.Matches(msg, m.keys.FastDown):
		m.setErr(m.sim.Turn(m.cursor, -5))
	case key.Matches(msg, m.keys.Tap):
		m.setErr(m.sim.PressEncoder(m.cursor, true))
		m.releases = append(m.releases, release{index: m.cursor, steps: tap})
	case key.Matches(msg, m.keys.Hold):
		down := !m.held[m.cursor]
		m.held[m.cursor] = down
		m.setErr(m.sim.PressEncoder(m.cursor, down))
	case key.Matches(msg, m.keys.Side):
		i := int(msg.Runes[0] - '1')
		if err := m.sim.PressSide(i, true); err != nil {
			m.err = err
			break
		}
		m.releases = append(m.releases, release{side: true, index: i, steps: tap})
	}
	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")
	s.WriteString(m.viewBanks())
	s.WriteString("\n\n")
	s.WriteString(m.viewGrid())
	s.WriteString("\n")
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.viewDetail(), " ", m.viewTraffic()))
	s.WriteString("\n")
	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s", m.err)))
		s.WriteString("\n")
	}
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func (m Model) viewBanks() string {
	tabs := []string{titleStyle.Render(" BANK ")}
	for b := 0; b < m.state.Banks; b++ {
		label := fmt.Sprintf("%d", b+1)
		if b == m.state.ActiveBank {
			tabs = append(tabs, activeBankStyle.Render(label))
		} else {
			tabs = append(tabs, bankStyle.Render(label))
		}
	}
	var sides []string
	for i, down := range m.state.SideSwitches {
		mark := "○"
		if down {
			mark = "●"
		}
		sides = append(sides, fmt.Sprintf("%d%s", i+1, mark))
	}
	tabs = append(tabs, statusStyle.Render("  side "+strings.Join(sides, " ")))
	if m.sim != nil && !m.sim.Idle() {
		tabs = append(tabs, " "+m.spinner.View())
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, tabs...)
}

// valueBar draws v as a bar of width cells.
func valueBar(v uint16, width int) string {
	n := int(v) * width / int(encoder.Max)
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}

func (m Model) viewGrid() string {
	const perRow = 4
	var rows []string
	var row []string
	for i, e := range m.state.Encoders {
		sw := " "
		if e.Pressed {
			sw = "●"
		}
		fine := ""
		if e.Fine {
			fine = " fine"
		}
		body := fmt.Sprintf("E%02d %s%s\n%s\n%5d", i+1, sw, fine, valueBar(e.Value, 12), e.Value)
		style := cellStyle
		if i == m.cursor {
			style = selectedCellStyle
		}
		row = append(row, style.Render(body))
		if len(row) == perRow || i == len(m.state.Encoders)-1 {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) viewDetail() string {
	if m.cursor >= len(m.state.Encoders) {
		return ""
	}
	e := m.state.Encoders[m.cursor]
	var s strings.Builder
	s.WriteString(titleStyle.Render(fmt.Sprintf(" ENCODER %d ", e.Index+1)))
	s.WriteString("\n")
	fmt.Fprintf(&s, "value    %d\nvelocity %d\ndetent   %t\nswitch   %s\nmaps     %s\n",
		e.Value, e.Velocity, e.Detent, e.SwitchMode, e.VmapMode)
	for i, vm := range e.Maps {
		mark := " "
		if vm.Illuminated {
			mark = "*"
		}
		active := " "
		if i == e.ActiveMap {
			active = "▸"
		}
		fmt.Fprintf(&s, "%s%s %s last=%d\n", active, mark, vm.Proto, vm.Last)
	}
	return boxStyle.Render(strings.TrimRight(s.String(), "\n"))
}

func (m Model) viewTraffic() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(" MIDI OUT "))
	s.WriteString("\n")
	if m.monitor != nil {
		for _, sent := range m.monitor.Recent(6) {
			s.WriteString(sent.Event.String())
			s.WriteString("\n")
		}
	}
	for _, ch := range m.state.Channels {
		fmt.Fprintf(&s, "%-8s %2d/%-2d drops %d\n", ch.Name, ch.Queued, ch.Capacity, ch.Drops)
	}
	fmt.Fprintf(&s, "sent %d  failed %d", m.state.Sent, m.state.Failed)
	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
  _______        _     _            ___  __  __ ___ ___ ___ 
 |__   __|      (_)   | |          |__ \|  \/  |_ _|   \_ _|
    | |_      __ _ ___| |_ ___ _ __   ) | |\/| || || |) | | 
    | \ \ /\ / /| / __| __/ _ \ '__| / /| |  | || ||___/| | 
    | |\ V  V / | \__ \ ||  __/ |   / /_| |  | |___|   |___|
    |_| \_/\_/  |_|___/\__\___|_|  |____|_|  |_|          
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}

// Run starts the TUI application
func Run(s *surface.Surface, monitor *transport.Monitor) error {
	p := tea.NewProgram(New(s, monitor), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
