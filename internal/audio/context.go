package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrContextClosed is returned when scheduling on a closed Context.
var ErrContextClosed = errors.New("audio context closed")

// Context is a software output context. Its clock is the number of samples
// rendered so far; the device driving it pulls samples with Render. Sources
// scheduled on the timeline are mixed into whatever Render produces while
// the clock is inside their span. A Context that is never rendered keeps
// its clock at zero.
type Context struct {
	rate int

	mu      sync.Mutex
	pos     int64
	sources map[*Source]struct{}
	closed  bool
}

func NewContext(sampleRate int) *Context {
	if sampleRate <= 0 {
		sampleRate = OutputSampleRate
	}
	return &Context{rate: sampleRate, sources: make(map[*Source]struct{})}
}

func (c *Context) SampleRate() int { return c.rate }

// CurrentTime is the output clock.
func (c *Context) CurrentTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SamplesDuration(int(c.pos), c.rate)
}

// Schedule places buf on the timeline starting at at. Start times in the
// past are moved to the current clock. Buffers at a different rate are
// resampled.
func (c *Context) Schedule(buf Buffer, at time.Duration) (*Source, error) {
	samples := buf.Samples
	if buf.SampleRate != 0 && buf.SampleRate != c.rate {
		samples = Resample(samples, buf.SampleRate, c.rate)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrContextClosed
	}
	start := DurationSamples(at, c.rate)
	if start < c.pos {
		start = c.pos
	}
	src := &Source{
		ctx:     c,
		start:   start,
		end:     start + int64(len(samples)),
		samples: samples,
		done:    make(chan struct{}),
	}
	if len(samples) == 0 {
		c.mu.Unlock()
		src.finish()
		return src, nil
	}
	c.sources[src] = struct{}{}
	c.mu.Unlock()
	return src, nil
}

// Render fills out with the mix of every source overlapping the next
// len(out) samples and advances the clock. Sources that end inside the
// rendered span are finished. A closed context renders silence without
// advancing.
func (c *Context) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	from := c.pos
	to := from + int64(len(out))
	var finished []*Source
	for src := range c.sources {
		lo, hi := src.start, src.end
		if lo < from {
			lo = from
		}
		if hi > to {
			hi = to
		}
		for f := lo; f < hi; f++ {
			out[f-from] += src.samples[f-src.start]
		}
		if src.end <= to {
			finished = append(finished, src)
			delete(c.sources, src)
		}
	}
	c.pos = to
	c.mu.Unlock()

	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}
	for _, src := range finished {
		src.finish()
	}
}

// Active is the number of scheduled sources that have not finished.
func (c *Context) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops every source and rejects further scheduling. Idempotent.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	srcs := make([]*Source, 0, len(c.sources))
	for src := range c.sources {
		srcs = append(srcs, src)
	}
	c.sources = make(map[*Source]struct{})
	c.mu.Unlock()
	for _, src := range srcs {
		src.finish()
	}
	return nil
}

// Source is one buffer scheduled on a Context.
type Source struct {
	ctx     *Context
	start   int64
	end     int64
	samples []float32
	done    chan struct{}
	once    sync.Once
}

// Start is the scheduled start on the output clock.
func (s *Source) Start() time.Duration {
	return SamplesDuration(int(s.start), s.ctx.rate)
}

func (s *Source) Duration() time.Duration {
	return SamplesDuration(len(s.samples), s.ctx.rate)
}

// End is where the source stops on the output clock, after any resampling.
func (s *Source) End() time.Duration {
	return SamplesDuration(int(s.end), s.ctx.rate)
}

// Done is closed when the source finished playing or was stopped.
func (s *Source) Done() <-chan struct{} { return s.done }

// Stop removes the source from its context. Idempotent.
func (s *Source) Stop() {
	s.ctx.mu.Lock()
	delete(s.ctx.sources, s)
	s.ctx.mu.Unlock()
	s.finish()
}

func (s *Source) finish() {
	s.once.Do(func() { close(s.done) })
}
