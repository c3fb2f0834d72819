package voice

import (
	"github.com/sales-voice-lab/internal/audio"
	"github.com/sales-voice-lab/internal/live"
)

// encoder turns captured samples into outbound wire frames. Samples are
// regrouped into fixed-size frames first.
type encoder struct {
	framer *audio.Framer
	mime   string
}

func newEncoder(frameSize int) *encoder {
	return &encoder{framer: audio.NewFramer(frameSize), mime: audio.InputMIMEType()}
}

func (e *encoder) push(samples []float32) []live.Frame {
	frames := e.framer.Push(samples)
	if len(frames) == 0 {
		return nil
	}
	out := make([]live.Frame, len(frames))
	for i, f := range frames {
		out[i] = live.Frame{Data: audio.EncodeFrame(f), MIMEType: e.mime}
	}
	return out
}
