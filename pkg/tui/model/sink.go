package model

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/klogs/pkg/core"
)

// Sink forwards runner output into a running program. Pass Program.Send.
type Sink struct {
	send func(tea.Msg)
}

// NewSink creates a sink that delivers entries through send.
func NewSink(send func(tea.Msg)) *Sink {
	return &Sink{send: send}
}

func (s *Sink) Write(e core.LogEntry) error {
	s.send(entryMsg(e))
	return nil
}

// Header is a no-op. The CLI only starts the viewer with --follow, which has
// no per-source sections.
func (s *Sink) Header(string) error { return nil }
