package voice

import (
	"context"
	"time"

	"github.com/sales-voice-lab/internal/audio"
)

// Microphone acquires a capture device. Open must fail synchronously when
// access is denied or no device exists. ctx bounds the open call only; the
// stream lives until Close.
type Microphone interface {
	Open(ctx context.Context, sampleRate, frameSize int) (CaptureStream, error)
}

// CaptureStream delivers mono float samples at the requested rate. Frames
// is closed when the device stops producing audio.
type CaptureStream interface {
	Frames() <-chan []float32
	Close() error
}

// Speaker opens an output context backed by a playback device. As with
// Microphone, ctx bounds only the open call.
type Speaker interface {
	Open(ctx context.Context, sampleRate int) (OutputContext, error)
}

// OutputContext is a timeline with a clock onto which decoded buffers are
// scheduled. *audio.Context implements it.
type OutputContext interface {
	CurrentTime() time.Duration
	Schedule(buf audio.Buffer, at time.Duration) (*audio.Source, error)
	Close() error
}
