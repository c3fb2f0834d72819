//go:build portaudio

package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/sales-voice-lab/internal/logging"
	"github.com/sales-voice-lab/internal/voice"
)

// outputFramesPerBuffer is 40ms at 24kHz.
const outputFramesPerBuffer = 960

// maxReadErrors is how many consecutive failed reads end a capture stream.
const maxReadErrors = 50

var (
	paMu   sync.Mutex
	paRefs int
)

func acquire() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("initialize portaudio: %w", err)
		}
	}
	paRefs++
	return nil
}

func releasePA() error {
	paMu.Lock()
	defer paMu.Unlock()
	paRefs--
	if paRefs == 0 {
		return portaudio.Terminate()
	}
	return nil
}

// Microphone captures from the default input device.
type Microphone struct{}

var _ voice.Microphone = Microphone{}

func (Microphone) Open(ctx context.Context, sampleRate, frameSize int) (voice.CaptureStream, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	in := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(in), in)
	if err != nil {
		_ = releasePA()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		_ = releasePA()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	c := &capture{
		stream: stream,
		frames: make(chan []float32, 32),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.loop(in)
	logging.Infow("microphone opened", "sample_rate", sampleRate, "frames_per_buffer", frameSize)
	return c, nil
}

type capture struct {
	stream *portaudio.Stream
	frames chan []float32
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	err    error

	dropped uint64
}

func (c *capture) Frames() <-chan []float32 { return c.frames }

func (c *capture) loop(in []float32) {
	defer close(c.done)
	defer close(c.frames)
	failures := 0
	for {
		select {
		case <-c.stop:
			return
		default:
		}
		if err := c.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			failures++
			if failures >= maxReadErrors {
				logging.Errorw("microphone read failing, giving up", "err", err)
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		failures = 0
		frame := make([]float32, len(in))
		copy(frame, in)
		select {
		case c.frames <- frame:
		case <-c.stop:
			return
		default:
			c.dropped++
			if c.dropped%100 == 1 {
				logging.Warnw("microphone frames dropped", "dropped", c.dropped)
			}
		}
	}
}

func (c *capture) Close() error {
	c.once.Do(func() {
		close(c.stop)
		errs := []error{c.stream.Stop()}
		<-c.done
		errs = append(errs, c.stream.Close(), releasePA())
		c.err = errors.Join(errs...)
	})
	return c.err
}

// Speaker plays to the default output device.
type Speaker struct{}

var _ voice.Speaker = Speaker{}

func (Speaker) Open(ctx context.Context, sampleRate int) (voice.OutputContext, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	buf := make([]float32, outputFramesPerBuffer*sampleRate/24000)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(buf), buf)
	if err != nil {
		_ = releasePA()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		_ = releasePA()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	o := RunOutput(sampleRate, func(o *Output, stop <-chan struct{}) {
		for {
			select {
			case <-stop:
				return
			default:
			}
			o.Render(buf)
			if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
				logging.Warnw("speaker write failed", "err", err)
				time.Sleep(10 * time.Millisecond)
			}
		}
	}, func() error {
		return errors.Join(stream.Stop(), stream.Close(), releasePA())
	})
	logging.Infow("speaker opened", "sample_rate", sampleRate)
	return o, nil
}
