package tui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sales-voice-lab/internal/chat"
	"github.com/sales-voice-lab/internal/voice"
)

// StatusMsg carries a session status change.
type StatusMsg struct{ Status voice.Status }

// TranscriptMsg carries the caption of the turn in progress.
type TranscriptMsg struct{ Snapshot voice.Snapshot }

// ChatMsg carries one appended log message.
type ChatMsg struct{ Message chat.Message }

// Observer bridges controller callbacks and log appends to bubbletea
// messages. It is a voice.Observer and a chat.Sink. Events before Attach
// are dropped.
type Observer struct {
	program atomic.Pointer[tea.Program]
}

func NewObserver() *Observer { return &Observer{} }

// Attach starts forwarding to p.
func (o *Observer) Attach(p *tea.Program) { o.program.Store(p) }

func (o *Observer) send(msg tea.Msg) {
	if p := o.program.Load(); p != nil {
		p.Send(msg)
	}
}

func (o *Observer) StatusChanged(s voice.Status)      { o.send(StatusMsg{Status: s}) }
func (o *Observer) TranscriptChanged(s voice.Snapshot) { o.send(TranscriptMsg{Snapshot: s}) }
func (o *Observer) Append(m chat.Message)              { o.send(ChatMsg{Message: m}) }
