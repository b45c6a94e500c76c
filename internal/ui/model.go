// ABOUTME: Bubbletea model for the player TUI
// ABOUTME: Shows session state, rate, queue depth, reconnects and throughput
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mch25/pcmstream/pkg/pcmstream"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
	helpStyle = lipgloss.NewStyle().Faint(true)
)

// Model represents the TUI state
type Model struct {
	name   string
	status pcmstream.Status

	// Throughput, derived from consecutive status samples
	lastBytes int64
	lastAt    time.Time
	kbps      float64

	showDebug bool
	quitting  bool

	controls *Controls

	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("pcmstream: "+m.name) + "\n\n")
	b.WriteString(m.renderSession())
	b.WriteString(m.renderBuffer())
	b.WriteString(m.renderStats())

	if m.showDebug {
		b.WriteString(m.renderDebug())
	}

	b.WriteString("\n" + helpStyle.Render("s:Stop  r:Restart  d:Debug  q:Quit") + "\n")
	return b.String()
}

func row(label, value string) string {
	return fmt.Sprintf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", label+":")), valueStyle.Render(value))
}

// renderSession renders state, source and negotiated rate
func (m Model) renderSession() string {
	st := m.status

	source := "(none)"
	if st.URL != "" {
		source = truncate(st.URL, 60)
	}

	rate := "-"
	if st.NegotiatedRate > 0 {
		rate = fmt.Sprintf("%dHz mono 16-bit", st.NegotiatedRate)
	}

	s := row("State", fmt.Sprintf("%s / %s", st.State, st.Playback)) +
		row("Source", source) +
		row("Rate", rate)

	if st.Error != "" {
		s += errorStyle.Render("Error: "+truncate(st.Error, 70)) + "\n"
	}
	return s
}

// renderBuffer renders queue fill
func (m Model) renderBuffer() string {
	st := m.status
	return row("Queue", fmt.Sprintf("[%s] %d/%d chunks",
		renderBar(st.QueueDepth, st.QueueCapacity, 20), st.QueueDepth, st.QueueCapacity))
}

// renderStats renders reader and writer counters
func (m Model) renderStats() string {
	st := m.status
	return row("Reconnect", fmt.Sprintf("%d attempts (%s)", st.ReconnectAttempts, orDash(st.ReaderState))) +
		row("Stream", fmt.Sprintf("read %d  played %d  errors %d", st.ChunksRead, st.ChunksWritten, st.WriteErrors)) +
		row("Bitrate", fmt.Sprintf("%.0f kbps, %dKB total", m.kbps, st.BytesWritten/1024))
}

func (m Model) renderDebug() string {
	st := m.status
	return "\n" + row("Session", orDash(st.SessionID)) +
		row("Gen", fmt.Sprintf("%d", st.Generation)) +
		row("Waits", fmt.Sprintf("%d backpressure", st.BackpressureWaits))
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.controls.send(CommandQuit)
		return m, tea.Quit
	case "s":
		m.controls.send(CommandStop)
	case "r":
		m.controls.send(CommandRestart)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus replaces the snapshot and updates throughput
func (m *Model) applyStatus(msg StatusMsg) {
	prev := m.status
	m.status = msg.Status

	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}

	// A new session restarts the byte counter
	if msg.Status.SessionID != prev.SessionID || msg.Status.BytesWritten < m.lastBytes {
		m.lastBytes = 0
		m.lastAt = time.Time{}
		m.kbps = 0
	}

	if !m.lastAt.IsZero() {
		if elapsed := at.Sub(m.lastAt).Seconds(); elapsed > 0 {
			m.kbps = float64(msg.Status.BytesWritten-m.lastBytes) * 8 / elapsed / 1000
		}
	}
	m.lastBytes = msg.Status.BytesWritten
	m.lastAt = at
}

// StatusMsg carries a player snapshot taken at At
type StatusMsg struct {
	Status pcmstream.Status
	At     time.Time
}

func renderBar(value, max, width int) string {
	filled := 0
	if max > 0 {
		filled = min((value*width)/max, width)
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
