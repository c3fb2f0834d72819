package voice

import (
	"strings"
	"sync"

	"github.com/sales-voice-lab/internal/chat"
)

// Snapshot is the in-progress caption for the current turn.
type Snapshot struct {
	User  string `json:"user"`
	Model string `json:"model"`
}

// Assembler accumulates partial transcripts per direction and turns them
// into chat messages at turn boundaries.
type Assembler struct {
	mu    sync.Mutex
	user  strings.Builder
	model strings.Builder
}

func NewAssembler() *Assembler { return &Assembler{} }

// AddInput appends a partial transcript of the user's speech.
func (a *Assembler) AddInput(text string) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.WriteString(text)
	return a.snapshotLocked()
}

// AddOutput appends a partial transcript of the model's speech.
func (a *Assembler) AddOutput(text string) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.model.WriteString(text)
	return a.snapshotLocked()
}

func (a *Assembler) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Assembler) snapshotLocked() Snapshot {
	return Snapshot{User: a.user.String(), Model: a.model.String()}
}

// Complete closes the turn: one message per non-empty accumulator, user
// first, then both accumulators are cleared.
func (a *Assembler) Complete() []chat.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []chat.Message
	if a.user.Len() > 0 {
		out = append(out, chat.NewMessage(chat.RoleUser, a.user.String()))
	}
	if a.model.Len() > 0 {
		out = append(out, chat.NewMessage(chat.RoleModel, a.model.String()))
	}
	a.user.Reset()
	a.model.Reset()
	return out
}

func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.Reset()
	a.model.Reset()
}
