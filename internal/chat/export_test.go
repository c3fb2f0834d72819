package chat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	l := NewLog()
	l.Append(NewMessage(RoleUser, "What's the price?"))
	l.Append(NewMessage(RoleModel, "Forty per seat."))

	path := filepath.Join(t.TempDir(), "sessions", "transcript.json")
	if err := l.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := l.Messages()
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Role != want[i].Role || got[i].Text != want[i].Text || !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Fatalf("message %d: want %+v got %+v", i, want[i], got[i])
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.json")
	l := NewLog()
	l.Append(NewMessage(RoleUser, "one"))
	if err := l.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	l.Append(NewMessage(RoleModel, "two"))
	if err := l.Save(path); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	got, err := Load(path)
	if err != nil || len(got) != 2 {
		t.Fatalf("Load: %d messages, %v", len(got), err)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
