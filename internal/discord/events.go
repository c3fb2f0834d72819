package discord

import (
	"encoding/json"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/sales-voice-lab/internal/logging"
)

const (
	maxEventPayload = 4096
	redacted        = "<redacted>"
	omitted         = "<raw data omitted>"
)

// secretFields are matched case-insensitively against object keys.
var secretFields = []string{
	"token", "session_id", "access_token", "refresh_token",
	"authorization", "password", "email", "client_secret",
}

func isSecret(key string) bool {
	for _, f := range secretFields {
		if strings.EqualFold(key, f) {
			return true
		}
	}
	return false
}

// scrub returns a copy of a decoded JSON value with secret fields masked.
func scrub(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			if isSecret(k) {
				out[k] = redacted
			} else {
				out[k] = scrub(child)
			}
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = scrub(child)
		}
		return out
	}
	return v
}

// eventPayload renders a raw gateway event for the debug log.
func eventPayload(raw []byte) string {
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return omitted
	}
	out, err := json.Marshal(scrub(v))
	if err != nil {
		return omitted
	}
	if len(out) > maxEventPayload {
		return string(out[:maxEventPayload]) + "<truncated>"
	}
	return string(out)
}

func logEvent(_ *discordgo.Session, evt *discordgo.Event) {
	logging.Debugw("discord event", "type", evt.Type, "payload", eventPayload(evt.RawData))
}
