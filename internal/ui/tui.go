// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and relays key commands to the player
package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mch25/pcmstream/pkg/pcmstream"
)

// Command is a user request from the TUI
type Command int

const (
	CommandStop Command = iota
	CommandRestart
	CommandQuit
)

// Controls carries commands out of the TUI
type Controls struct {
	Commands chan Command
}

// NewControls creates a command channel
func NewControls() *Controls {
	return &Controls{
		Commands: make(chan Command, 10),
	}
}

// send never blocks the UI; a nil Controls drops the command
func (c *Controls) send(cmd Command) {
	if c == nil {
		return
	}
	select {
	case c.Commands <- cmd:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(name string, controls *Controls) Model {
	return Model{
		name:     name,
		status:   pcmstream.Status{State: pcmstream.StateIdle},
		controls: controls,
	}
}

// Run creates the TUI program; the caller runs it
func Run(name string, controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(name, controls), tea.WithAltScreen())
}

// Feed sends a status snapshot to p every interval until ctx is done
func Feed(ctx context.Context, p *tea.Program, status func() pcmstream.Status, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case at := <-ticker.C:
			p.Send(StatusMsg{Status: status(), At: at})
		}
	}
}
