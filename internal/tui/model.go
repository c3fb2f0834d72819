// Package tui is the terminal front end for a local voice session: one
// microphone button, a live caption and the conversation log.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sales-voice-lab/internal/chat"
	"github.com/sales-voice-lab/internal/voice"
)

// Controls is what the UI drives on the voice controller.
type Controls interface {
	Toggle(ctx context.Context) error
	Stop(reason string)
}

type keyMap struct {
	Toggle key.Binding
	Quit   key.Binding
	Up     key.Binding
	Down   key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Toggle: key.NewBinding(key.WithKeys(" ", "m", "enter"), key.WithHelp("space/m", "mic on/off")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll down")),
	}
}

const (
	colorIndigo = "63"
	colorGreen  = "42"
	colorAmber  = "214"
	colorRed    = "196"
	colorGray   = "245"
	colorSky    = "117"

	// rows used by header, button, caption and help
	chromeHeight = 9
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorIndigo))
	buttonStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 2).Border(lipgloss.RoundedBorder())
	captionStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color(colorGray))
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorSky))
	modelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorGreen))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)).Italic(true)
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed))
)

type toggledMsg struct{ err error }

// Model is the bubbletea model.
type Model struct {
	controls Controls
	title    string
	keys     keyMap

	status   voice.Status
	caption  voice.Snapshot
	messages []chat.Message
	pending  bool
	lastErr  string

	log    viewport.Model
	width  int
	height int
}

// NewModel builds the UI around c. history seeds the log.
func NewModel(c Controls, title string, history []chat.Message) *Model {
	m := &Model{
		controls: c,
		title:    title,
		keys:     defaultKeys(),
		messages: append([]chat.Message(nil), history...),
		log:      viewport.New(80, 10),
	}
	m.refreshLog()
	return m
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.log.Width = msg.Width
		m.log.Height = max(msg.Height-chromeHeight, 3)
		m.refreshLog()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StatusMsg:
		m.status = msg.Status
		return m, nil

	case TranscriptMsg:
		m.caption = msg.Snapshot
		return m, nil

	case ChatMsg:
		m.messages = append(m.messages, msg.Message)
		m.refreshLog()
		return m, nil

	case toggledMsg:
		m.pending = false
		m.lastErr = ""
		if msg.err != nil && !errors.Is(msg.err, voice.ErrStopped) {
			m.lastErr = msg.err.Error()
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		c := m.controls
		return m, func() tea.Msg {
			c.Stop("")
			return tea.Quit()
		}
	case key.Matches(msg, m.keys.Toggle):
		return m, m.toggle()
	}
	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

// toggle flips the session off the UI goroutine; Start blocks through the
// handshake. A second press while connecting cancels.
func (m *Model) toggle() tea.Cmd {
	m.pending = true
	c := m.controls
	return func() tea.Msg {
		return toggledMsg{err: c.Toggle(context.Background())}
	}
}

func (m *Model) refreshLog() {
	width := m.log.Width
	if width <= 0 {
		width = 80
	}
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(formatMessage(msg, width))
	}
	if len(m.messages) == 0 {
		b.WriteString(helpStyle.Render("No messages yet. Press space to start talking."))
	}
	m.log.SetContent(b.String())
	m.log.GotoBottom()
}

func formatMessage(msg chat.Message, width int) string {
	label := modelStyle.Render("Assistant")
	if msg.Role == chat.RoleUser {
		label = userStyle.Render("You")
	}
	stamp := helpStyle.Render(msg.Timestamp.Local().Format("15:04"))
	body := lipgloss.NewStyle().Width(width).Render(msg.Text)
	return fmt.Sprintf("%s %s\n%s", label, stamp, body)
}

func (m *Model) button() string {
	var label, color string
	switch m.status {
	case voice.StatusActive:
		label, color = "■ Stop", colorRed
	case voice.StatusConnecting:
		label, color = "… Connecting", colorAmber
	case voice.StatusIdle:
		if m.pending {
			label, color = "… Connecting", colorAmber
		} else {
			label, color = "● Start talking", colorGreen
		}
	case voice.StatusError:
		label, color = "! Error", colorRed
	default:
		label, color = "● Start talking", colorGreen
	}
	return buttonStyle.BorderForeground(lipgloss.Color(color)).Foreground(lipgloss.Color(color)).Render(label)
}

func (m *Model) captionLine() string {
	switch {
	case m.caption.Model != "":
		return captionStyle.Render("Assistant: " + m.caption.Model)
	case m.caption.User != "":
		return captionStyle.Render("You: " + m.caption.User)
	case m.status == voice.StatusActive:
		return captionStyle.Render("Listening...")
	}
	return ""
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("  ")
	b.WriteString(helpStyle.Render(m.status.String()))
	b.WriteString("\n\n")
	b.WriteString(m.log.View())
	b.WriteString("\n\n")
	b.WriteString(m.captionLine())
	b.WriteString("\n")
	b.WriteString(m.button())
	b.WriteString("\n")
	if m.lastErr != "" {
		b.WriteString(errStyle.Render(m.lastErr))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render(fmt.Sprintf("%s • %s • %s",
		helpText(m.keys.Toggle), helpText(m.keys.Up), helpText(m.keys.Quit))))
	return b.String()
}

func helpText(b key.Binding) string {
	h := b.Help()
	return h.Key + " " + h.Desc
}
