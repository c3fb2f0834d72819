package voice

import (
	"testing"

	"github.com/sales-voice-lab/internal/chat"
)

func TestAssemblerJoinsPartialsIntoOneMessage(t *testing.T) {
	a := NewAssembler()
	for _, p := range []string{"Hel", "lo ", "there"} {
		a.AddInput(p)
	}
	snap := a.Snapshot()
	if snap.User != "Hello there" || snap.Model != "" {
		t.Fatalf("snapshot: %+v", snap)
	}

	msgs := a.Complete()
	if len(msgs) != 1 {
		t.Fatalf("want 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != chat.RoleUser || msgs[0].Text != "Hello there" {
		t.Fatalf("unexpected message: %+v", msgs[0])
	}
	if got := a.Snapshot(); got != (Snapshot{}) {
		t.Fatalf("accumulators not cleared: %+v", got)
	}
}

func TestAssemblerUserBeforeModel(t *testing.T) {
	a := NewAssembler()
	a.AddOutput("Sure, ")
	a.AddInput("Can you help?")
	a.AddOutput("happy to.")

	msgs := a.Complete()
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != chat.RoleUser || msgs[0].Text != "Can you help?" {
		t.Fatalf("first message: %+v", msgs[0])
	}
	if msgs[1].Role != chat.RoleModel || msgs[1].Text != "Sure, happy to." {
		t.Fatalf("second message: %+v", msgs[1])
	}
}

func TestAssemblerEmptyTurn(t *testing.T) {
	a := NewAssembler()
	if msgs := a.Complete(); len(msgs) != 0 {
		t.Fatalf("empty turn produced %d messages", len(msgs))
	}
	a.AddInput("dropped")
	a.Reset()
	if msgs := a.Complete(); len(msgs) != 0 {
		t.Fatalf("reset turn produced %d messages", len(msgs))
	}
}
