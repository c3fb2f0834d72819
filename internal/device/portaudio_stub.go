//go:build !portaudio

package device

import (
	"context"

	"github.com/sales-voice-lab/internal/voice"
)

// Microphone is a stub; build with -tags portaudio for real capture.
type Microphone struct{}

func (Microphone) Open(ctx context.Context, sampleRate, frameSize int) (voice.CaptureStream, error) {
	return nil, ErrUnavailable
}

// Speaker is a stub; build with -tags portaudio for real playback.
type Speaker struct{}

func (Speaker) Open(ctx context.Context, sampleRate int) (voice.OutputContext, error) {
	return nil, ErrUnavailable
}
