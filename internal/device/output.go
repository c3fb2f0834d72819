// Package device provides local audio devices for voice sessions.
package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sales-voice-lab/internal/audio"
	"github.com/sales-voice-lab/internal/voice"
)

// ErrUnavailable is returned when the binary was built without audio
// device support.
var ErrUnavailable = errors.New("audio devices not available in this build")

// Output is a software output context whose clock is advanced by a render
// loop owned by a device.
type Output struct {
	*audio.Context

	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	release func() error
	err     error
}

func newOutput(rate int, release func() error) *Output {
	return &Output{
		Context: audio.NewContext(rate),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		release: release,
	}
}

// RunOutput creates an output at rate and runs loop on its own goroutine.
// loop renders from o until stop is closed. release, when set, frees the
// device after the loop returned.
func RunOutput(rate int, loop func(o *Output, stop <-chan struct{}), release func() error) *Output {
	o := newOutput(rate, release)
	go func() {
		defer close(o.done)
		loop(o, o.stop)
	}()
	return o
}

// Close stops the render loop, then the device, then the context.
func (o *Output) Close() error {
	o.once.Do(func() {
		close(o.stop)
		<-o.done
		var errs []error
		if o.release != nil {
			errs = append(errs, o.release())
		}
		errs = append(errs, o.Context.Close())
		o.err = errors.Join(errs...)
	})
	return o.err
}

// NullSpeaker renders to nowhere in real time. Useful on machines without
// an output device and in tests of the full pipeline.
type NullSpeaker struct {
	// Period is the render tick, 20ms when zero.
	Period time.Duration
}

var _ voice.Speaker = NullSpeaker{}

func (n NullSpeaker) Open(ctx context.Context, sampleRate int) (voice.OutputContext, error) {
	period := n.Period
	if period <= 0 {
		period = 20 * time.Millisecond
	}
	frame := make([]float32, audio.DurationSamples(period, sampleRate))
	o := RunOutput(sampleRate, func(o *Output, stop <-chan struct{}) {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				o.Render(frame)
			}
		}
	}, nil)
	return o, nil
}
