package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "VOICE_MODEL", "VOICE_NAME",
		"VOICE_BACKEND", "VOICE_FRAME_SIZE", "VOICE_DRAIN_TIMEOUT", "CONTROL_ADDR"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	if c.Model != DefaultModel || c.Voice != DefaultVoice || c.Backend != BackendWebSocket {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.FrameSize != DefaultFrameSize || c.DrainTimeout != 2*time.Second || c.ControlAddr != DefaultControlAddr {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if err := c.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Validate: want ErrMissingAPIKey, got %v", err)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("VOICE_BACKEND", "GenAI")
	t.Setenv("VOICE_FRAME_SIZE", "2048")
	t.Setenv("VOICE_DRAIN_TIMEOUT", "500")
	c := FromEnv()
	if c.APIKey != "g-key" {
		t.Fatalf("api key fallback: %q", c.APIKey)
	}
	if c.Backend != BackendGenAI || c.FrameSize != 2048 || c.DrainTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected overrides: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	t.Setenv("VOICE_FRAME_SIZE", "lots")
	t.Setenv("VOICE_DRAIN_TIMEOUT", "3s")
	c = FromEnv()
	if c.FrameSize != DefaultFrameSize || c.DrainTimeout != 3*time.Second {
		t.Fatalf("unexpected fallback: %+v", c)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	c := &Config{APIKey: "k", Model: "m", Backend: "grpc", FrameSize: 1}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "grpc") {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateDiscord(t *testing.T) {
	c := &Config{DiscordToken: "t"}
	err := c.ValidateDiscord()
	if err == nil || !strings.Contains(err.Error(), "GUILD_ID") || !strings.Contains(err.Error(), "VOICE_CHANNEL_ID") {
		t.Fatalf("ValidateDiscord: %v", err)
	}
	c.GuildID, c.VoiceChannelID = "g", "v"
	if err := c.ValidateDiscord(); err != nil {
		t.Fatalf("ValidateDiscord: %v", err)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("VOICE_NAME=Puck\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("VOICE_NAME", "")
	os.Unsetenv("VOICE_NAME")
	if c := Load(); c.Voice != "Puck" {
		t.Fatalf("voice from .env: %q", c.Voice)
	}
}

func TestDiscordListsAndFlags(t *testing.T) {
	t.Setenv("ALLOWED_USER_IDS", " 1, 2,,3 ")
	t.Setenv("DISCORD_LOG_EVENTS", "true")
	c := FromEnv()
	if strings.Join(c.AllowedUserIDs, "|") != "1|2|3" {
		t.Fatalf("AllowedUserIDs = %v", c.AllowedUserIDs)
	}
	if !c.DiscordLogEvents {
		t.Fatal("DISCORD_LOG_EVENTS not applied")
	}

	t.Setenv("ALLOWED_USER_IDS", "")
	t.Setenv("DISCORD_LOG_EVENTS", "sometimes")
	c = FromEnv()
	if c.AllowedUserIDs != nil || c.DiscordLogEvents {
		t.Fatalf("unexpected values: %v %v", c.AllowedUserIDs, c.DiscordLogEvents)
	}
}

func TestTraceEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	if c := FromEnv(); c.TraceEndpoint != "http://collector:4318" {
		t.Fatalf("TraceEndpoint = %q", c.TraceEndpoint)
	}
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "http://traces:4318/v1/traces")
	if c := FromEnv(); c.TraceEndpoint != "http://traces:4318/v1/traces" {
		t.Fatalf("TraceEndpoint = %q", c.TraceEndpoint)
	}
}
