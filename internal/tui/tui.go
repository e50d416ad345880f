// Package tui is a live terminal monitor: joint angle chart, mode banner
// and the latest controller messages.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cjeanneret/ArmGo/internal/hw/servo"
	"github.com/cjeanneret/ArmGo/internal/logic/control"
)

const (
	headerHeight = 3 // title, banner, blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Channel colors, one per actuator.
var channelColors = [servo.ChannelCount]string{
	servo.Wrist:    "46",  // green
	servo.Elbow:    "226", // yellow
	servo.Biceps:   "208", // orange
	servo.Shoulder: "196", // red
	servo.Claw:     "201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	badgeStyle  = lipgloss.NewStyle().Padding(0, 1).Bold(true)
	recStyle    = badgeStyle.Background(lipgloss.Color("160")).Foreground(lipgloss.Color("15"))
	playStyle   = badgeStyle.Background(lipgloss.Color("34")).Foreground(lipgloss.Color("0"))
	idleStyle   = badgeStyle.Background(lipgloss.Color("238")).Foreground(lipgloss.Color("250"))
)

// Feed carries what the monitor displays.
type Feed struct {
	States <-chan control.Snapshot
	Logs   <-chan string // JSON status events or plain lines
}

// Subscribe returns a snapshot channel fed by ctrl. Snapshots are dropped
// while the monitor is busy rendering.
func Subscribe(ctrl *control.Controller) <-chan control.Snapshot {
	ch := make(chan control.Snapshot, 1)
	ctrl.Subscribe(func(s control.Snapshot) {
		select {
		case ch <- s:
		default:
		}
	})
	return ch
}

// Messages from the feed
type stateMsg control.Snapshot
type logMsg string

func waitForState(ch <-chan control.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(s)
	}
}

func waitForLog(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		l, ok := <-ch
		if !ok {
			return nil
		}
		return logMsg(l)
	}
}

// Model is the bubbletea model of the monitor.
type Model struct {
	feed     Feed
	chart    *streamlinechart.Model
	width    int // terminal width
	height   int // terminal height
	logs     []string
	state    control.Snapshot
	seen     bool
	quitting bool
}

// New creates the monitor model.
func New(feed Feed) Model {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, 180),
	)
	for ch := servo.Channel(0); ch < servo.ChannelCount; ch++ {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(channelColors[ch]))
		chart.SetDataSetStyles(ch.String(), runes.ThinLineStyle, style)
	}
	return Model{feed: feed, chart: &chart}
}

func (m *Model) addLog(raw string) {
	msg := raw
	var evt struct {
		Level string `json:"l"`
		Msg   string `json:"msg"`
	}
	if json.Unmarshal([]byte(raw), &evt) == nil && evt.Msg != "" {
		msg = evt.Msg
		if evt.Level != "" && evt.Level != "info" {
			msg = strings.ToUpper(evt.Level) + " " + msg
		}
	}
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *Model) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.feed.States != nil {
		cmds = append(cmds, waitForState(m.feed.States))
	}
	if m.feed.Logs != nil {
		cmds = append(cmds, waitForLog(m.feed.Logs))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.chartSize()
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		s := control.Snapshot(msg)
		// Freeze the chart while nothing moves.
		if !m.seen || s.Joints != m.state.Joints || s.Claw != m.state.Claw {
			for i, ch := range servo.Joints {
				m.chart.PushDataSet(ch.String(), float64(s.Joints[i]))
			}
			m.chart.PushDataSet(servo.Claw.String(), float64(s.Claw))
			m.chart.DrawAll()
		}
		m.state = s
		m.seen = true
		return m, waitForState(m.feed.States)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.feed.Logs)
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return "Monitor stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("ArmGo"))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n")
	sb.WriteString(m.banner())
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend(m.state))
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	logLines := statusStyle.Render("Press 'q' to quit")
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m Model) banner() string {
	s := m.state
	mode := idleStyle.Render("IDLE")
	switch {
	case s.Recording:
		mode = recStyle.Render("REC")
	case s.Playing:
		mode = playStyle.Render("PLAY")
	}
	arm := idleStyle.Render("ARM OFF")
	if s.ArmEnabled {
		arm = playStyle.Render("ARM ON")
	}
	cursor := statusStyle.Render(fmt.Sprintf(" frame %d/%d  cap %d  tick %d",
		s.BufferIndex, s.RecordingIndex, s.Capacity, s.Ticks))
	return mode + " " + arm + cursor
}

func renderLegend(s control.Snapshot) string {
	var items []string
	for ch := servo.Channel(0); ch < servo.ChannelCount; ch++ {
		angle := s.Claw
		if ch != servo.Claw {
			angle = s.Joints[ch]
		}
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(channelColors[ch])).Bold(true)
		items = append(items, fmt.Sprintf("%s %s %d", colorStyle.Render("━━"), ch, angle))
	}
	return strings.Join(items, "  ")
}

// Run shows the monitor until the user quits or ctx is cancelled.
func Run(ctx context.Context, feed Feed) error {
	p := tea.NewProgram(New(feed), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
