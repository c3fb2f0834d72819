package voice

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sales-voice-lab/internal/audio"
	"github.com/sales-voice-lab/internal/live"
	"github.com/sales-voice-lab/internal/metrics"
)

// ErrSchedulerClosed is returned by Enqueue after Close.
var ErrSchedulerClosed = errors.New("playback scheduler closed")

// Scheduler plays inbound chunks back to back. Each chunk starts at
// max(nextStartTime, clock) and nextStartTime moves to where that chunk
// ends on the output clock, so chunks never overlap and never start in the
// past. Interrupt starts a new playback epoch at the current clock.
type Scheduler struct {
	out     OutputContext
	metrics *metrics.Metrics

	mu     sync.Mutex
	next   time.Duration
	active map[*audio.Source]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewScheduler(out OutputContext, m *metrics.Metrics) *Scheduler {
	return &Scheduler{out: out, metrics: m, active: make(map[*audio.Source]struct{})}
}

// Enqueue decodes chunk and schedules it. Undecodable chunks are rejected
// without touching the queue.
func (s *Scheduler) Enqueue(chunk live.AudioChunk) (*audio.Source, error) {
	buf, err := audio.DecodeChunk(chunk.Data, sampleRateOf(chunk.MIMEType, audio.OutputSampleRate))
	if err != nil {
		s.metrics.ChunkDecodeError()
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSchedulerClosed
	}
	now := s.out.CurrentTime()
	startAt := s.next
	if now > startAt {
		startAt = now
	}
	src, err := s.out.Schedule(buf, startAt)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	// the context may have moved the start if its clock advanced after
	// CurrentTime, and resampling can change the length
	s.next = src.End()
	s.active[src] = struct{}{}
	n := len(s.active)
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.ChunkScheduled(src.Start() - now)
	s.metrics.SetActivePlayback(n)
	go s.watch(src)
	return src, nil
}

func (s *Scheduler) watch(src *audio.Source) {
	defer s.wg.Done()
	<-src.Done()
	s.mu.Lock()
	delete(s.active, src)
	n := len(s.active)
	s.mu.Unlock()
	s.metrics.SetActivePlayback(n)
}

// NextStartTime is where the next chunk will be placed if the clock has
// not overtaken it.
func (s *Scheduler) NextStartTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Active is the number of chunks scheduled and not yet finished.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Interrupt drops everything queued and starts a new playback epoch at the
// current clock; this is the only place nextStartTime moves backwards.
// Used when the user talks over the model.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	srcs := s.takeActiveLocked()
	if !s.closed {
		s.next = s.out.CurrentTime()
	}
	s.mu.Unlock()
	for _, src := range srcs {
		src.Stop()
	}
	return len(srcs)
}

// Close stops every active chunk and closes the output context. Idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srcs := s.takeActiveLocked()
	s.mu.Unlock()
	for _, src := range srcs {
		src.Stop()
	}
	err := s.out.Close()
	s.wg.Wait()
	s.metrics.SetActivePlayback(0)
	return err
}

func (s *Scheduler) takeActiveLocked() []*audio.Source {
	srcs := make([]*audio.Source, 0, len(s.active))
	for src := range s.active {
		srcs = append(srcs, src)
	}
	s.active = make(map[*audio.Source]struct{})
	return srcs
}

// sampleRateOf reads the rate parameter of an audio/pcm mime type.
func sampleRateOf(mime string, def int) int {
	for _, p := range strings.Split(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
