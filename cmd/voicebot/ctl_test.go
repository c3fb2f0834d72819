package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sales-voice-lab/internal/chat"
	"github.com/sales-voice-lab/internal/control"
	"github.com/sales-voice-lab/internal/voice"
)

type stubVoice struct {
	status voice.Status
}

func (s *stubVoice) Start(ctx context.Context) error  { s.status = voice.StatusActive; return nil }
func (s *stubVoice) Stop(reason string)               { s.status = voice.StatusIdle }
func (s *stubVoice) Toggle(ctx context.Context) error { return nil }
func (s *stubVoice) Status() voice.Status             { return s.status }
func (s *stubVoice) Transcript() voice.Snapshot       { return voice.Snapshot{} }
func (s *stubVoice) SessionID() string                { return "" }
func (s *stubVoice) AddObserver(voice.Observer)       {}

func TestCallTool(t *testing.T) {
	log := chat.NewLog()
	log.Append(chat.NewMessage(chat.RoleUser, "hello"))
	srv := control.NewServer(control.Options{Voice: &stubVoice{}, Log: log})
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()

	ctlTimeout = 5 * time.Second
	out, err := callTool(context.Background(), hs.URL, control.ToolStart, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if out != "active" {
		t.Fatalf("start printed %q", out)
	}

	out, err = callTool(context.Background(), strings.TrimPrefix(hs.URL, "http://"), control.ToolMessages, map[string]any{"limit": 5})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if !strings.HasSuffix(out, "[user] hello") {
		t.Fatalf("messages printed %q", out)
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("VOICE_BACKEND", "websocket")
	f := sessionFlags{persona: "skeptical-cfo", backend: "genai", noControl: true}
	cfg, err := f.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PersonaID != "skeptical-cfo" || cfg.Backend != "genai" || cfg.ControlAddr != "" {
		t.Fatalf("flags not applied: %+v", cfg)
	}

	f = sessionFlags{backend: "carrier-pigeon"}
	if _, err := f.load(); err == nil {
		t.Fatal("unknown backend should fail validation")
	}
}
