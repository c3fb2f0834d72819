package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sales-voice-lab/internal/chat"
)

func TestOpenLogResumesTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.json")

	log, err := openLog(path)
	if err != nil {
		t.Fatalf("openLog on a missing file: %v", err)
	}
	if log.Len() != 0 {
		t.Fatal("missing file should give an empty log")
	}
	log.Append(chat.NewMessage(chat.RoleUser, "Remind me of the discount."))
	if err := saveLog(log, path); err != nil {
		t.Fatalf("saveLog: %v", err)
	}

	resumed, err := openLog(path)
	if err != nil {
		t.Fatalf("openLog: %v", err)
	}
	if got := resumed.Messages(); len(got) != 1 || got[0].Text != "Remind me of the discount." {
		t.Fatalf("resumed %+v", got)
	}

	if err := saveLog(resumed, ""); err != nil {
		t.Fatalf("saveLog without a path: %v", err)
	}
}

func TestTranscriptFileIsOptIn(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	log, err := openLog("")
	if err != nil {
		t.Fatalf("openLog without a path: %v", err)
	}
	log.Append(chat.NewMessage(chat.RoleModel, "Happy to help."))
	if err := saveLog(log, ""); err != nil {
		t.Fatalf("saveLog without a path: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("nothing should be written without --transcript, found %d entries", len(entries))
	}
}
