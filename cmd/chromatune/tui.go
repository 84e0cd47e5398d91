package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-chroma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chroma/detector"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	refreshInterval = 50 * time.Millisecond
	historyLength   = 16

	// displayOctave places the shown frequency between C3 and B3
	displayOctave = 3
)

// controller is the part of the detector the view drives
type controller interface {
	Mode() detector.Mode
	SetMode(ctx context.Context, mode detector.Mode) error
	Current() detector.Result
	Stats() detector.Stats
}

type tickMsg time.Time

// modeMsg reports the outcome of a mode switch
type modeMsg struct {
	mode detector.Mode
	err  error
}

// InputDoneMsg tells the view the audio input has ended
type InputDoneMsg struct {
	Err error
}

// Model is the terminal view state
type Model struct {
	det        controller
	inputName  string
	sampleRate int

	// Detection
	current detector.Result
	history []string
	mode    detector.Mode

	// Status
	switching bool
	status    string
	inputDone bool
	stats     detector.Stats
}

// NewModel creates the view for a running detector
func NewModel(det controller, inputName string, sampleRate int) Model {
	return Model{
		det:        det,
		inputName:  inputName,
		sampleRate: sampleRate,
		mode:       det.Mode(),
		current:    det.Current(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts polling the detector
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tickMsg:
		m.refresh()
		return m, tick()
	case modeMsg:
		m.switching = false
		if msg.err != nil {
			m.status = fmt.Sprintf("%s unavailable: %v", msg.mode, msg.err)
		} else {
			m.status = ""
			m.history = m.history[:0]
		}
		m.mode = m.det.Mode()
		m.refresh()
	case InputDoneMsg:
		m.inputDone = true
		if msg.Err != nil {
			m.status = fmt.Sprintf("input failed: %v", msg.Err)
		}
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "m":
		if m.switching {
			return m, nil
		}
		m.switching = true
		next := m.mode.Next()
		m.status = fmt.Sprintf("loading %s...", next)
		return m, switchMode(m.det, next)
	}
	return m, nil
}

func switchMode(det controller, mode detector.Mode) tea.Cmd {
	return func() tea.Msg {
		return modeMsg{mode: mode, err: det.SetMode(context.Background(), mode)}
	}
}

// refresh pulls the latest result and counters
func (m *Model) refresh() {
	m.current = m.det.Current()
	m.stats = m.det.Stats()

	name := m.current.Name()
	if name == "" {
		return
	}
	if n := len(m.history); n > 0 && m.history[n-1] == name {
		return
	}
	m.history = append(m.history, name)
	if len(m.history) > historyLength {
		m.history = m.history[len(m.history)-historyLength:]
	}
}

// View renders the TUI
func (m Model) View() string {
	s := ""
	s += m.renderHeader()
	s += m.renderDetection()
	s += m.renderStats()
	s += m.renderHelp()
	return s
}

func (m Model) renderHeader() string {
	input := fmt.Sprintf("%s (%d Hz)", m.inputName, m.sampleRate)
	if m.inputDone {
		input += " ended"
	}
	return fmt.Sprintf(`┌─ chromatune ─────────────────────────────────────────┐
│ Input: %-45s │
│ Mode:  %-45s │
├──────────────────────────────────────────────────────┤
`, truncate(input, 45), m.mode)
}

func (m Model) renderDetection() string {
	s := "│                                                      │\n"
	if m.current.Detected {
		s += fmt.Sprintf("│   %-3s %10.2f Hz%-36s │\n",
			m.current.Name(), displayFrequency(m.current.Class), "")
	} else {
		s += "│   --                                                 │\n"
	}
	s += fmt.Sprintf("│   Confidence: [%s] %.4f%-14s │\n",
		renderBar(m.current.Weight, 20), m.current.Weight, "")
	s += "│                                                      │\n"
	s += fmt.Sprintf("│ History: %-43s │\n", truncate(strings.Join(m.history, " "), 43))
	if m.status != "" {
		s += fmt.Sprintf("│ %-52s │\n", truncate(m.status, 52))
	}
	return s
}

func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Frames: %d queued, %d dropped%-20s │
│ Quanta: %d queued, %d dropped%-20s │
`, m.stats.FramesQueued, m.stats.FramesDropped, "",
		m.stats.QuantaQueued, m.stats.QuantaDropped, "")
}

func (m Model) renderHelp() string {
	return `│ m:Mode  q:Quit                                       │
└──────────────────────────────────────────────────────┘
`
}

// formatResult is the one-line form used by -plain
func formatResult(r detector.Result) string {
	if !r.Detected {
		return fmt.Sprintf("%-3s %10s  %-8s [%s]", "-", "", "", r.Mode)
	}
	return fmt.Sprintf("%-3s %7.2f Hz  %.4f [%s]", r.Name(), displayFrequency(r.Class), r.Weight, r.Mode)
}

func displayFrequency(class int) float64 {
	return chroma.Frequency(class, displayOctave)
}

func renderBar(value float64, width int) string {
	filled := int(min(max(value, 0), 1) * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
