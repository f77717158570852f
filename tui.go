package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"murmur/dictation"
	"murmur/hotkey"
	"murmur/meter"
)

// TUI message types
type stateMsg struct{ State dictation.State }
type levelsMsg struct{ Levels []float64 }
type partialMsg struct{ Text string }
type endedMsg struct{ Outcome dictation.Outcome }
type committedMsg struct{ Text string }
type noticeMsg struct{ Text string }
type modeMsg struct{ Mode meter.Mode }
type deviceMsg struct{ Text string }

// controls is what the TUI can do to the session.
type controls interface {
	Start(ctx context.Context)
	Complete()
	Cancel()
	Levels() []float64
}

type tuiModel struct {
	ctl           controls
	hybrid        bool
	state         dictation.State
	mode          meter.Mode
	levels        []float64
	partial       string
	lastText      string
	commits       int
	notice        string
	deviceLine    string
	width, height int
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

const graphHeight = 8

// Bar colors from quiet to loud; the top rows of a loud bar turn red.
var (
	barColorsActive = []string{"42", "42", "78", "114", "184", "220", "208", "196"}
	barColorIdle    = "238"
	barStyles       [graphHeight]lipgloss.Style
	barStyleIdle    lipgloss.Style
)

func init() {
	for i, c := range barColorsActive {
		barStyles[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}
	barStyleIdle = lipgloss.NewStyle().Foreground(lipgloss.Color(barColorIdle))
}

func NewTUIProgram(ctl controls, hybrid bool) *tea.Program {
	return tea.NewProgram(newTUIModel(ctl, hybrid), tea.WithAltScreen())
}

// newTUIModel starts the graph from the session's idle levels.
func newTUIModel(ctl controls, hybrid bool) tuiModel {
	return tuiModel{ctl: ctl, hybrid: hybrid, levels: ctl.Levels()}
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// tuiEvents forwards session events into the TUI.
type tuiEvents struct{}

func (tuiEvents) StateChanged(s dictation.State)   { tuiSend(stateMsg{State: s}) }
func (tuiEvents) LevelsChanged(l []float64)        { tuiSend(levelsMsg{Levels: l}) }
func (tuiEvents) PartialChanged(text string)       { tuiSend(partialMsg{Text: text}) }
func (tuiEvents) SessionEnded(o dictation.Outcome) { tuiSend(endedMsg{Outcome: o}) }

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ":
			m.notice = ""
			return m, m.startCmd()
		case "enter":
			return m, m.async(m.ctl.Complete)
		case "esc":
			return m, m.async(m.ctl.Cancel)
		}

	case stateMsg:
		m.state = msg.State

	case levelsMsg:
		m.levels = msg.Levels

	case partialMsg:
		m.partial = msg.Text

	case modeMsg:
		m.mode = msg.Mode

	case deviceMsg:
		m.deviceLine = msg.Text

	case committedMsg:
		m.commits++
		m.lastText = msg.Text

	case noticeMsg:
		m.notice = msg.Text

	case endedMsg:
		if msg.Outcome == dictation.OutcomeCancelled {
			m.notice = "discarded"
		}
	}
	return m, nil
}

// Session calls block until the session settles, so they run as commands
// off the update loop.
func (m tuiModel) startCmd() tea.Cmd {
	return func() tea.Msg {
		m.ctl.Start(context.Background())
		return nil
	}
}

func (m tuiModel) async(fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return nil
	}
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	active := m.state == dictation.StateActive
	var b strings.Builder
	b.WriteString(renderStatus(m.state, m.mode))
	b.WriteString("\n\n")
	b.WriteString(renderBars(m.levels, graphHeight, active))
	b.WriteString("\n")

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	if m.deviceLine != "" {
		b.WriteString(dim.Render(m.deviceLine) + "\n")
	}

	wrapWidth := max(m.width-2, 10)
	b.WriteString("\n")
	if m.partial != "" {
		live := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
		for _, line := range wrapText(m.partial, wrapWidth) {
			b.WriteString(live.Render(line) + "\n")
		}
	} else if active {
		b.WriteString(dim.Render("listening...") + "\n")
	}

	if m.lastText != "" {
		b.WriteString("\n")
		title := lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
		b.WriteString(title.Render(fmt.Sprintf("Last dictation (#%d)", m.commits)) + "\n")
		text := lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
		lines := wrapText(m.lastText, wrapWidth)
		for i, line := range lines {
			b.WriteString(text.Render(line))
			if i == len(lines)-1 {
				b.WriteString(" " + lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("[✓ copied]"))
			}
			b.WriteString("\n")
		}
	}

	if m.notice != "" {
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Render("⚠ "+m.notice) + "\n")
	}

	b.WriteString("\n" + renderHelp(m.hybrid))
	return lipgloss.NewStyle().Width(m.width).MaxHeight(m.height).Render(b.String())
}

func renderStatus(state dictation.State, mode meter.Mode) string {
	switch state {
	case dictation.StateActive:
		rec := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).Render("● REC")
		return rec + lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render(" ["+mode.String()+"]")
	case dictation.StateRequesting:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Render("◌ starting")
	case dictation.StateStopping:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Render("◌ finishing")
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("○ STANDBY")
}

func renderHelp(hybrid bool) string {
	help := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	bold := help.Bold(true)
	gesture := " start/stop"
	if hybrid {
		gesture = " tap to toggle, hold to talk"
	}
	return bold.Render(hotkey.Combo) + help.Render(gesture) + "\n" +
		bold.Render("space") + help.Render(" start  ") +
		bold.Render("enter") + help.Render(" commit  ") +
		bold.Render("esc") + help.Render(" discard  ") +
		bold.Render("q") + help.Render(" quit") + "\n" +
		help.Render("murmur "+version)
}

// barCells are the eighth blocks used for the partial top cell of a bar.
var barCells = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// renderBars draws one column per level, height rows tall, oldest on the
// left.
func renderBars(levels []float64, height int, active bool) string {
	if height <= 0 {
		return ""
	}
	cells := make([]int, len(levels)) // eighths
	for i, v := range levels {
		v = min(max(v, 0), 1)
		cells[i] = int(v*float64(height*8) + 0.5)
	}
	var b strings.Builder
	for row := height - 1; row >= 0; row-- {
		style := barStyleIdle
		if active {
			style = barStyles[min(row*len(barStyles)/height, len(barStyles)-1)]
		}
		var line strings.Builder
		for _, c := range cells {
			fill := min(max(c-row*8, 0), 8)
			line.WriteString(barCells[fill])
		}
		b.WriteString(style.Render(line.String()))
		b.WriteString("\n")
	}
	return b.String()
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
