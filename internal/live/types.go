package live

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultDrainTimeout bounds how long Close waits for queued frames.
	DefaultDrainTimeout = 2 * time.Second
	// DefaultWriteWait is the write deadline for one websocket message.
	DefaultWriteWait = 10 * time.Second
	// DefaultMaxMessageSize is the websocket read limit.
	DefaultMaxMessageSize = 16 * 1024 * 1024
	// DefaultVoice is the prebuilt voice used when none is configured.
	DefaultVoice = "Zephyr"

	inboundBuffer = 64
)

var (
	// ErrClosing is returned by SendAudio once the session stopped
	// accepting frames.
	ErrClosing = errors.New("live session is closing")
	// ErrSetupFailed wraps every failure before the endpoint acknowledged
	// the session setup.
	ErrSetupFailed = errors.New("live session setup failed")
)

// SessionConfig fixes the behaviour of one session for its lifetime.
type SessionConfig struct {
	Model       string
	Instruction string
	Voice       string
	// CorrelationID tags logs; a random id is used when empty.
	CorrelationID string
}

// Frame is one outbound unit of microphone audio in wire form.
type Frame struct {
	Data     string // base64 PCM16 LE
	MIMEType string
}

// AudioChunk is one inbound unit of synthesized speech.
type AudioChunk struct {
	Data     string // base64 PCM16 LE
	MIMEType string
}

// Message is one decoded server content event.
type Message struct {
	Audio            []AudioChunk
	InputTranscript  string
	OutputTranscript string
	TurnComplete     bool
	Interrupted      bool
}

func (m Message) empty() bool {
	return len(m.Audio) == 0 && m.InputTranscript == "" && m.OutputTranscript == "" &&
		!m.TurnComplete && !m.Interrupted
}

// Session is an open duplex channel to the endpoint.
type Session interface {
	ID() string
	State() State
	// SendAudio queues a frame without blocking. Frames are written in the
	// order they were queued. After Close or a remote close it returns
	// ErrClosing.
	SendAudio(Frame) error
	// Inbound yields server events in arrival order and is closed when the
	// session ends for any reason.
	Inbound() <-chan Message
	// Err is the reason the session ended, nil for a clean close.
	Err() error
	// Close drains queued frames and releases the connection. Idempotent.
	Close() error
}

// Dialer opens sessions. Dial returns once the endpoint acknowledged the
// setup, or with an error wrapping ErrSetupFailed. Only ctx bounds it.
type Dialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (Session, error)
}
