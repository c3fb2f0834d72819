package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sales-voice-lab/internal/audio"
	"github.com/sales-voice-lab/internal/chat"
	"github.com/sales-voice-lab/internal/live"
	"github.com/sales-voice-lab/internal/logging"
	"github.com/sales-voice-lab/internal/metrics"
	"github.com/sales-voice-lab/internal/telemetry"
)

var (
	// ErrStopped is returned by Start when Stop cancelled it.
	ErrStopped = errors.New("voice session stopped")
	// ErrNotConfigured is returned by New when a collaborator is missing.
	ErrNotConfigured = errors.New("voice controller not configured")
)

// Observer is told about status and caption changes. Callbacks run on the
// controller's goroutines and must not block.
type Observer interface {
	StatusChanged(Status)
	TranscriptChanged(Snapshot)
}

// Config parameterizes a Controller. The same controller serves a generic
// assistant and a persona trainer; only Instruction differs.
type Config struct {
	Instruction string
	Model       string
	Voice       string

	Microphone Microphone
	Speaker    Speaker
	Dialer     live.Dialer
	Sink       chat.Sink

	// FrameSize is samples per outbound frame at 16 kHz.
	FrameSize int
	Metrics   *metrics.Metrics
	Tracer    trace.Tracer
	Observers []Observer
}

// Controller owns at most one voice session and everything it holds.
type Controller struct {
	cfg        Config
	tracer     trace.Tracer
	transcript *Assembler

	// opMu serializes teardown so a new Start never overlaps a release.
	opMu sync.Mutex

	mu          sync.Mutex
	status      Status
	gen         uint64
	res         *resources
	cancelSetup context.CancelFunc
	starting    chan struct{}
	observers   []Observer

	notifyMu  sync.Mutex
	published Status
}

func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Microphone == nil:
		return nil, fmt.Errorf("%w: microphone", ErrNotConfigured)
	case cfg.Speaker == nil:
		return nil, fmt.Errorf("%w: speaker", ErrNotConfigured)
	case cfg.Dialer == nil:
		return nil, fmt.Errorf("%w: dialer", ErrNotConfigured)
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = audio.DefaultFrameSize
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer(nil)
	}
	return &Controller{
		cfg:        cfg,
		tracer:     tracer,
		transcript: NewAssembler(),
		observers:  append([]Observer(nil), cfg.Observers...),
	}, nil
}

// AddObserver registers o for future notifications.
func (c *Controller) AddObserver(o Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Transcript is the caption of the turn in progress.
func (c *Controller) Transcript() Snapshot {
	return c.transcript.Snapshot()
}

// SessionID is the correlation id of the active session, or "".
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.res == nil {
		return ""
	}
	return c.res.id
}

// Instruction is the persona instruction sessions are opened with.
func (c *Controller) Instruction() string { return c.cfg.Instruction }

// Start opens a session: microphone, then output, then the transport
// handshake. It is a no-op while a session is active or pending, and
// blocks until the session is active or has failed. A failure is reported
// to the message log and leaves the controller idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusIdle || c.starting != nil || c.res != nil {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	setupCtx, cancel := context.WithCancel(ctx)
	starting := make(chan struct{})
	c.cancelSetup = cancel
	c.starting = starting
	c.status = StatusConnecting
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.starting == starting {
			c.starting = nil
			c.cancelSetup = nil
		}
		c.mu.Unlock()
		close(starting)
	}()

	c.transcript.Reset()
	c.publishTranscript(Snapshot{})
	c.notifyStatus()

	id := uuid.NewString()
	res := &resources{id: id}
	res.ctx = logging.WithFields(ctx, logging.SessionFields(id, c.cfg.Model)...)
	setupCtx = logging.WithFields(setupCtx, logging.SessionFields(id, c.cfg.Model)...)

	spanCtx, span := c.tracer.Start(ctx, "voice.session.start",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.String("voice.model", c.cfg.Model),
		))
	defer span.End()
	logging.InfowCtx(setupCtx, "voice session starting")

	stream, err := c.cfg.Microphone.Open(setupCtx, audio.InputSampleRate, c.cfg.FrameSize)
	if err != nil {
		return c.abortStart(gen, res, span, metrics.FailureDevice,
			fmt.Sprintf("Could not access the microphone: %v", err), err)
	}
	res.stream = stream

	out, err := c.cfg.Speaker.Open(setupCtx, audio.OutputSampleRate)
	if err != nil {
		return c.abortStart(gen, res, span, metrics.FailureDevice,
			fmt.Sprintf("Could not open the audio output: %v", err), err)
	}
	res.scheduler = NewScheduler(out, c.cfg.Metrics)

	sess, err := c.cfg.Dialer.Dial(setupCtx, live.SessionConfig{
		Model:         c.cfg.Model,
		Instruction:   c.cfg.Instruction,
		Voice:         c.cfg.Voice,
		CorrelationID: id,
	})
	if err != nil {
		return c.abortStart(gen, res, span, metrics.FailureHandshake,
			fmt.Sprintf("Could not connect to the voice service: %v", err), err)
	}
	res.session = sess
	res.encoder = newEncoder(c.cfg.FrameSize)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		_ = res.release()
		span.SetStatus(codes.Error, "stopped during setup")
		return ErrStopped
	}
	res.quit = make(chan struct{})
	res.loopDone = make(chan struct{})
	res.started = time.Now()
	_, res.span = c.tracer.Start(spanCtx, "voice.session",
		trace.WithAttributes(attribute.String("session.id", id)))
	c.res = res
	c.status = StatusActive
	c.mu.Unlock()

	c.cfg.Metrics.SessionStarted()
	c.notifyStatus()
	logging.InfowCtx(res.ctx, "voice session active")
	go c.run(res, gen)
	return nil
}

// abortStart reports a setup failure unless Stop already took over, then
// releases what was acquired.
func (c *Controller) abortStart(gen uint64, res *resources, span trace.Span, kind, text string, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, kind)

	c.mu.Lock()
	superseded := gen != c.gen
	if !superseded {
		c.gen++
		c.status = StatusError
	}
	c.mu.Unlock()

	if superseded {
		_ = res.release()
		logging.InfowCtx(res.ctx, "voice session setup abandoned", "err", cause)
		return fmt.Errorf("%w: %w", ErrStopped, cause)
	}

	logging.WarnwCtx(res.ctx, "voice session setup failed", "kind", kind, "err", cause)
	c.notifyStatus()
	c.cfg.Metrics.SessionFailed(kind)
	c.emit(chat.NewMessage(chat.RoleModel, text))
	_ = res.release()
	c.transcript.Reset()
	c.publishTranscript(Snapshot{})
	c.setIdle()
	return cause
}

// Stop ends the current session, or cancels one being set up, and returns
// once everything it owned is released. A non-empty reason is appended to
// the log as a model message first. Safe to call any number of times.
func (c *Controller) Stop(reason string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	pending := c.starting
	res := c.res
	if c.status == StatusIdle && pending == nil && res == nil {
		c.mu.Unlock()
		return
	}
	c.gen++
	if c.cancelSetup != nil {
		c.cancelSetup()
	}
	c.res = nil
	c.mu.Unlock()

	_, span := c.tracer.Start(context.Background(), "voice.session.stop",
		trace.WithAttributes(attribute.String("voice.stop_reason", reason)))
	defer span.End()

	if reason != "" {
		c.emit(chat.NewMessage(chat.RoleModel, reason))
	}
	if pending != nil {
		<-pending
	}
	if res != nil {
		c.teardown(res)
	}
	c.transcript.Reset()
	c.publishTranscript(Snapshot{})
	c.setIdle()
}

// Toggle stops an active or connecting session and starts one when idle.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	busy := c.status != StatusIdle || c.starting != nil || c.res != nil
	c.mu.Unlock()
	if busy {
		c.Stop("")
		return nil
	}
	return c.Start(ctx)
}

// finish tears down after the loop saw the session end on its own.
func (c *Controller) finish(gen uint64, kind, text string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if gen != c.gen || c.res == nil {
		c.mu.Unlock()
		return
	}
	res := c.res
	c.res = nil
	c.gen++
	if text != "" {
		c.status = StatusError
	}
	c.mu.Unlock()

	if text != "" {
		logging.WarnwCtx(res.ctx, "voice session failed", "kind", kind, "reason", text)
		c.notifyStatus()
		c.cfg.Metrics.SessionFailed(kind)
		c.emit(chat.NewMessage(chat.RoleModel, text))
	} else {
		logging.InfowCtx(res.ctx, "voice session closed by remote")
	}
	c.teardown(res)
	c.transcript.Reset()
	c.publishTranscript(Snapshot{})
	c.setIdle()
}

func (c *Controller) teardown(res *resources) {
	close(res.quit)
	<-res.loopDone
	err := res.release()
	c.cfg.Metrics.SessionEnded(time.Since(res.started))
	if res.span != nil {
		if err != nil {
			res.span.RecordError(err)
		}
		res.span.End()
	}
	logging.InfowCtx(res.ctx, "voice session released", "duration_ms", time.Since(res.started).Milliseconds())
}

// run is the session's event loop. Capture frames and inbound messages are
// handled one at a time, in arrival order.
func (c *Controller) run(res *resources, gen uint64) {
	defer close(res.loopDone)
	frames := res.stream.Frames()
	inbound := res.session.Inbound()
	for {
		select {
		case <-res.quit:
			return
		case samples, ok := <-frames:
			if !ok {
				go c.finish(gen, metrics.FailureMicrophone, "Microphone disconnected.")
				return
			}
			c.send(res, samples)
		case msg, ok := <-inbound:
			if !ok {
				if err := res.session.Err(); err != nil {
					go c.finish(gen, metrics.FailureTransport, fmt.Sprintf("Voice session ended: %v", err))
				} else {
					go c.finish(gen, "", "")
				}
				return
			}
			c.handle(res, msg)
		}
	}
}

func (c *Controller) send(res *resources, samples []float32) {
	for _, f := range res.encoder.push(samples) {
		if err := res.session.SendAudio(f); err != nil {
			c.cfg.Metrics.FrameRejected()
			logging.DebugwCtx(res.ctx, "voice session: frame not sent", "err", err)
			continue
		}
		c.cfg.Metrics.FrameSent()
	}
}

func (c *Controller) handle(res *resources, msg live.Message) {
	if msg.Interrupted {
		n := res.scheduler.Interrupt()
		c.cfg.Metrics.Interrupted()
		logging.DebugwCtx(res.ctx, "voice session: playback interrupted", "dropped", n)
	}
	for _, chunk := range msg.Audio {
		src, err := res.scheduler.Enqueue(chunk)
		if err != nil {
			logging.WarnwCtx(res.ctx, "voice session: skipping audio chunk", "err", err, "bytes", len(chunk.Data))
			continue
		}
		samples := int(audio.DurationSamples(src.Duration(), audio.OutputSampleRate))
		logging.DebugwCtx(res.ctx, "voice session: chunk scheduled",
			append(logging.ChunkFields(samples, src.Duration().Milliseconds()), "start_ms", src.Start().Milliseconds())...)
	}
	if msg.InputTranscript != "" {
		c.publishTranscript(c.transcript.AddInput(msg.InputTranscript))
	}
	if msg.OutputTranscript != "" {
		c.publishTranscript(c.transcript.AddOutput(msg.OutputTranscript))
	}
	if msg.TurnComplete {
		c.cfg.Metrics.TurnCompleted()
		for _, m := range c.transcript.Complete() {
			c.emit(m)
		}
		c.publishTranscript(Snapshot{})
	}
}

func (c *Controller) emit(m chat.Message) {
	if c.cfg.Sink != nil {
		c.cfg.Sink.Append(m)
	}
	c.cfg.Metrics.MessageEmitted(string(m.Role))
}

func (c *Controller) setIdle() {
	c.mu.Lock()
	c.status = StatusIdle
	c.mu.Unlock()
	c.notifyStatus()
}

func (c *Controller) observerList() []Observer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Observer(nil), c.observers...)
}

// notifyStatus publishes the current status if it changed since the last
// publication.
func (c *Controller) notifyStatus() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	st := c.Status()
	if st == c.published {
		return
	}
	c.published = st
	logging.Infow("voice status", "status", st.String())
	for _, o := range c.observerList() {
		o.StatusChanged(st)
	}
}

func (c *Controller) publishTranscript(s Snapshot) {
	for _, o := range c.observerList() {
		o.TranscriptChanged(s)
	}
}
