package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sales-voice-lab/internal/chat"
	"github.com/sales-voice-lab/internal/voice"
)

type fakeControls struct {
	toggles int
	stops   int
	err     error
}

func (f *fakeControls) Toggle(ctx context.Context) error {
	f.toggles++
	return f.err
}

func (f *fakeControls) Stop(reason string) { f.stops++ }

func press(m *Model, k string) tea.Cmd {
	var msg tea.KeyMsg
	switch k {
	case "ctrl+c":
		msg = tea.KeyMsg{Type: tea.KeyCtrlC}
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	_, cmd := m.Update(msg)
	return cmd
}

func TestToggleKeyRunsToggle(t *testing.T) {
	f := &fakeControls{}
	m := NewModel(f, "Assistant", nil)

	cmd := press(m, " ")
	if cmd == nil {
		t.Fatal("space should return a toggle command")
	}
	if !m.pending {
		t.Fatal("model should be pending until the toggle returns")
	}
	if !strings.Contains(m.View(), "Connecting") {
		t.Fatal("pending toggle should render as connecting")
	}
	m.Update(cmd())
	if f.toggles != 1 || m.pending {
		t.Fatalf("toggles=%d pending=%v", f.toggles, m.pending)
	}

	if cmd := press(m, "m"); cmd == nil {
		t.Fatal("m should also toggle")
	}
}

func TestToggleErrorShown(t *testing.T) {
	f := &fakeControls{err: errors.New("microphone denied")}
	m := NewModel(f, "Assistant", nil)
	m.Update(press(m, " ")())
	if !strings.Contains(m.View(), "microphone denied") {
		t.Fatal("toggle error not rendered")
	}

	f.err = voice.ErrStopped
	m.Update(press(m, " ")())
	if m.lastErr != "" {
		t.Fatalf("cancelled start should not show an error, got %q", m.lastErr)
	}
}

func TestQuitStopsSession(t *testing.T) {
	f := &fakeControls{}
	m := NewModel(f, "Assistant", nil)
	cmd := press(m, "q")
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("quit command should return tea.QuitMsg")
	}
	if f.stops != 1 {
		t.Fatalf("expected Stop once, got %d", f.stops)
	}
}

func TestStatusButton(t *testing.T) {
	m := NewModel(&fakeControls{}, "Assistant", nil)
	cases := []struct {
		status voice.Status
		want   string
	}{
		{voice.StatusIdle, "Start talking"},
		{voice.StatusConnecting, "Connecting"},
		{voice.StatusActive, "Stop"},
		{voice.StatusError, "Error"},
	}
	for _, c := range cases {
		m.Update(StatusMsg{Status: c.status})
		if !strings.Contains(m.View(), c.want) {
			t.Fatalf("status %v: view missing %q", c.status, c.want)
		}
	}
}

func TestCaptionAndMessages(t *testing.T) {
	history := []chat.Message{chat.NewMessage(chat.RoleModel, "Welcome back.")}
	m := NewModel(&fakeControls{}, "Trainer", history)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	m.Update(StatusMsg{Status: voice.StatusActive})
	if !strings.Contains(m.View(), "Listening") {
		t.Fatal("active session with empty caption should show Listening")
	}
	m.Update(TranscriptMsg{Snapshot: voice.Snapshot{User: "How much"}})
	if !strings.Contains(m.View(), "You: How much") {
		t.Fatal("user caption missing")
	}
	m.Update(TranscriptMsg{Snapshot: voice.Snapshot{User: "How much", Model: "It depends"}})
	if !strings.Contains(m.View(), "Assistant: It depends") {
		t.Fatal("model caption should take precedence")
	}

	m.Update(ChatMsg{Message: chat.NewMessage(chat.RoleUser, "How much does it cost?")})
	view := m.View()
	for _, want := range []string{"Welcome back.", "How much does it cost?", "You"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	if len(m.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(m.messages))
	}
}

func TestObserverWithoutProgram(t *testing.T) {
	o := NewObserver()
	o.StatusChanged(voice.StatusActive)
	o.TranscriptChanged(voice.Snapshot{User: "hi"})
	o.Append(chat.NewMessage(chat.RoleUser, "hi"))
}
