package voice

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sales-voice-lab/internal/audio"
	"github.com/sales-voice-lab/internal/live"
	"github.com/sales-voice-lab/internal/metrics"
)

const outputMIME = "audio/pcm;rate=24000"

// chunkOf returns a silent chunk lasting d at 24 kHz.
func chunkOf(d time.Duration) live.AudioChunk {
	n := audio.DurationSamples(d, audio.OutputSampleRate)
	return live.AudioChunk{Data: audio.EncodeFrame(make([]float32, n)), MIMEType: outputMIME}
}

func TestSchedulerPlacesChunksBackToBack(t *testing.T) {
	out := audio.NewContext(audio.OutputSampleRate)
	s := NewScheduler(out, nil)
	defer s.Close()

	first, err := s.Enqueue(chunkOf(500 * time.Millisecond))
	if err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	second, err := s.Enqueue(chunkOf(300 * time.Millisecond))
	if err != nil {
		t.Fatalf("enqueue second: %v", err)
	}
	if first.Start() != 0 {
		t.Fatalf("first start: want 0 got %v", first.Start())
	}
	if second.Start() != 500*time.Millisecond {
		t.Fatalf("second start: want 500ms got %v", second.Start())
	}
	if got := s.NextStartTime(); got != 800*time.Millisecond {
		t.Fatalf("next start: want 800ms got %v", got)
	}
	if s.Active() != 2 {
		t.Fatalf("active: want 2 got %d", s.Active())
	}
}

func TestSchedulerNeverStartsInThePast(t *testing.T) {
	out := audio.NewContext(audio.OutputSampleRate)
	s := NewScheduler(out, nil)
	defer s.Close()

	if _, err := s.Enqueue(chunkOf(200 * time.Millisecond)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// one second of output overtakes the queue
	out.Render(make([]float32, audio.OutputSampleRate))

	src, err := s.Enqueue(chunkOf(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if src.Start() != time.Second {
		t.Fatalf("start: want 1s got %v", src.Start())
	}
	if got := s.NextStartTime(); got != 1100*time.Millisecond {
		t.Fatalf("next start: want 1.1s got %v", got)
	}

	var prev time.Duration
	for i := 0; i < 5; i++ {
		src, err := s.Enqueue(chunkOf(40 * time.Millisecond))
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		if src.Start() < prev || src.Start() < out.CurrentTime() {
			t.Fatalf("chunk %d starts at %v, previous %v", i, src.Start(), prev)
		}
		prev = src.Start()
	}
}

// driftingOutput renders some audio between the scheduler reading the clock
// and the chunk landing on the timeline, like a device callback would.
type driftingOutput struct {
	*audio.Context
	drift int
}

func (o *driftingOutput) Schedule(buf audio.Buffer, at time.Duration) (*audio.Source, error) {
	o.Render(make([]float32, o.drift))
	return o.Context.Schedule(buf, at)
}

func TestSchedulerFollowsClockMovedDuringSchedule(t *testing.T) {
	// 40ms at 24 kHz
	out := &driftingOutput{Context: audio.NewContext(audio.OutputSampleRate), drift: 960}
	s := NewScheduler(out, nil)
	defer s.Close()

	first, err := s.Enqueue(chunkOf(200 * time.Millisecond))
	if err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	if first.Start() != 40*time.Millisecond {
		t.Fatalf("first start: want 40ms got %v", first.Start())
	}
	second, err := s.Enqueue(chunkOf(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("enqueue second: %v", err)
	}
	if second.Start() != first.End() {
		t.Fatalf("second starts at %v, first ends at %v", second.Start(), first.End())
	}
	if s.NextStartTime() != second.End() {
		t.Fatalf("next start %v, second ends %v", s.NextStartTime(), second.End())
	}
}

func TestSchedulerGaplessAcrossSampleRates(t *testing.T) {
	out := audio.NewContext(audio.OutputSampleRate)
	s := NewScheduler(out, nil)
	defer s.Close()

	chunk := live.AudioChunk{Data: audio.EncodeFrame(make([]float32, 3)), MIMEType: "audio/pcm;rate=16000"}
	var prev *audio.Source
	for i := 0; i < 6; i++ {
		src, err := s.Enqueue(chunk)
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		if prev != nil && src.Start() != prev.End() {
			t.Fatalf("chunk %d starts at %v, previous ends at %v", i, src.Start(), prev.End())
		}
		prev = src
	}
	if s.NextStartTime() != prev.End() {
		t.Fatalf("next start %v, last end %v", s.NextStartTime(), prev.End())
	}
}

func TestSchedulerFinishedChunksLeaveActiveSet(t *testing.T) {
	out := audio.NewContext(audio.OutputSampleRate)
	s := NewScheduler(out, nil)
	defer s.Close()

	src, err := s.Enqueue(chunkOf(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	out.Render(make([]float32, audio.OutputSampleRate/5))
	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("source did not finish")
	}
	waitFor(t, func() bool { return s.Active() == 0 })
}

func TestSchedulerSkipsUndecodableChunk(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	out := audio.NewContext(audio.OutputSampleRate)
	s := NewScheduler(out, m)
	defer s.Close()

	if _, err := s.Enqueue(live.AudioChunk{Data: "not base64!", MIMEType: outputMIME}); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := s.Enqueue(live.AudioChunk{Data: "AAE=AA", MIMEType: outputMIME}); err == nil {
		t.Fatal("expected error for malformed chunk")
	}
	if s.Active() != 0 || s.NextStartTime() != 0 {
		t.Fatalf("rejected chunk touched the queue: active=%d next=%v", s.Active(), s.NextStartTime())
	}
	if got := testutil.ToFloat64(m.ChunkDecodeErrors); got != 2 {
		t.Fatalf("decode errors: want 2 got %v", got)
	}

	src, err := s.Enqueue(chunkOf(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("later chunk rejected: %v", err)
	}
	if src.Start() != 0 {
		t.Fatalf("later chunk start: %v", src.Start())
	}
}

func TestSchedulerInterruptDropsQueue(t *testing.T) {
	out := audio.NewContext(audio.OutputSampleRate)
	s := NewScheduler(out, nil)
	defer s.Close()

	a, _ := s.Enqueue(chunkOf(500 * time.Millisecond))
	b, _ := s.Enqueue(chunkOf(500 * time.Millisecond))
	out.Render(make([]float32, audio.OutputSampleRate/10))

	if n := s.Interrupt(); n != 2 {
		t.Fatalf("interrupt dropped %d sources, want 2", n)
	}
	for _, src := range []*audio.Source{a, b} {
		select {
		case <-src.Done():
		case <-time.After(time.Second):
			t.Fatal("interrupted source still playing")
		}
	}
	// the interrupt opens a new epoch at the clock, behind the old queue end
	if got := s.NextStartTime(); got != 100*time.Millisecond || got != out.CurrentTime() {
		t.Fatalf("next start after interrupt: want 100ms got %v", got)
	}
	src, err := s.Enqueue(chunkOf(50 * time.Millisecond))
	if err != nil {
		t.Fatalf("enqueue after interrupt: %v", err)
	}
	if src.Start() != 100*time.Millisecond {
		t.Fatalf("start after interrupt: %v", src.Start())
	}
	next, err := s.Enqueue(chunkOf(50 * time.Millisecond))
	if err != nil {
		t.Fatalf("enqueue after interrupt: %v", err)
	}
	if next.Start() != src.End() || s.NextStartTime() < next.Start() {
		t.Fatalf("epoch not monotonic: start %v after %v, next %v", next.Start(), src.End(), s.NextStartTime())
	}
}

func TestSchedulerClose(t *testing.T) {
	out := audio.NewContext(audio.OutputSampleRate)
	s := NewScheduler(out, nil)

	src, _ := s.Enqueue(chunkOf(time.Second))
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	select {
	case <-src.Done():
	default:
		t.Fatal("source not stopped by close")
	}
	if !out.Closed() {
		t.Fatal("output context left open")
	}
	if _, err := s.Enqueue(chunkOf(time.Second)); !errors.Is(err, ErrSchedulerClosed) {
		t.Fatalf("enqueue after close: %v", err)
	}
}

func TestSampleRateOf(t *testing.T) {
	cases := map[string]int{
		"audio/pcm;rate=24000":          24000,
		"audio/pcm; rate=16000":         16000,
		"audio/pcm":                     24000,
		"audio/pcm;rate=bogus":          24000,
		"audio/L16;codec=pcm;rate=8000": 8000,
	}
	for mime, want := range cases {
		if got := sampleRateOf(mime, 24000); got != want {
			t.Errorf("sampleRateOf(%q) = %d, want %d", mime, got, want)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
