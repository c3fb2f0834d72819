// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backends understood by VOICE_BACKEND.
const (
	BackendWebSocket = "websocket"
	BackendGenAI     = "genai"
)

const (
	DefaultModel       = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice       = "Zephyr"
	DefaultFrameSize   = 4096
	DefaultControlAddr = ":8089"
)

var ErrMissingAPIKey = errors.New("GEMINI_API_KEY or GOOGLE_API_KEY is required")

// Config holds the process configuration.
type Config struct {
	// Voice service
	APIKey       string
	Model        string
	Voice        string
	Backend      string
	Endpoint     string // websocket backend only; empty means the public endpoint
	FrameSize    int
	DrainTimeout time.Duration

	// Personas
	PersonaFile string
	PersonaID   string

	// Control surface
	ControlAddr string

	// Discord
	DiscordToken   string
	GuildID        string
	VoiceChannelID string
	TextChannelID  string

	// AllowedUserIDs limits who the bot listens to; empty means everyone.
	AllowedUserIDs   []string
	DiscordLogEvents bool

	// Logging and tracing
	LogLevel string
	// TraceEndpoint is an OTLP/HTTP collector URL; empty disables export.
	TraceEndpoint string
}

// Load reads .env (when present) and then the environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() *Config {
	apiKey := getEnv("GEMINI_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("GOOGLE_API_KEY", "")
	}
	return &Config{
		APIKey:           apiKey,
		Model:            getEnv("VOICE_MODEL", DefaultModel),
		Voice:            getEnv("VOICE_NAME", DefaultVoice),
		Backend:          strings.ToLower(getEnv("VOICE_BACKEND", BackendWebSocket)),
		Endpoint:         getEnv("VOICE_ENDPOINT", ""),
		FrameSize:        getEnvInt("VOICE_FRAME_SIZE", DefaultFrameSize),
		DrainTimeout:     getEnvDuration("VOICE_DRAIN_TIMEOUT", 2*time.Second),
		PersonaFile:      getEnv("PERSONA_FILE", ""),
		PersonaID:        getEnv("PERSONA", ""),
		ControlAddr:      getEnv("CONTROL_ADDR", DefaultControlAddr),
		DiscordToken:     getEnv("DISCORD_BOT_TOKEN", ""),
		GuildID:          getEnv("GUILD_ID", ""),
		VoiceChannelID:   getEnv("VOICE_CHANNEL_ID", ""),
		TextChannelID:    getEnv("TEXT_CHANNEL_ID", ""),
		AllowedUserIDs:   splitList(getEnv("ALLOWED_USER_IDS", "")),
		DiscordLogEvents: getEnvBool("DISCORD_LOG_EVENTS", false),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		TraceEndpoint:    getEnv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
	}
}

// Validate checks the settings every voice command needs.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	switch c.Backend {
	case BackendWebSocket, BackendGenAI:
	default:
		return fmt.Errorf("VOICE_BACKEND: unknown backend %q", c.Backend)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("VOICE_FRAME_SIZE must be positive, got %d", c.FrameSize)
	}
	if c.Model == "" {
		return errors.New("VOICE_MODEL must not be empty")
	}
	return nil
}

// ValidateDiscord checks the settings the discord command needs.
func (c *Config) ValidateDiscord() error {
	var missing []string
	if c.DiscordToken == "" {
		missing = append(missing, "DISCORD_BOT_TOKEN")
	}
	if c.GuildID == "" {
		missing = append(missing, "GUILD_ID")
	}
	if c.VoiceChannelID == "" {
		missing = append(missing, "VOICE_CHANNEL_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("2s") or bare milliseconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// splitList parses a comma separated list, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
