package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure kinds for SessionFailures.
const (
	FailureDevice     = "device"
	FailureHandshake  = "handshake"
	FailureTransport  = "transport"
	FailureMicrophone = "microphone"
)

// Metrics contains the Prometheus collectors for the voice session core.
// All methods are safe on a nil *Metrics.
type Metrics struct {
	// Capture / transport
	FramesSent     prometheus.Counter
	FramesRejected prometheus.Counter

	// Playback
	ChunksScheduled   prometheus.Counter
	ChunkDecodeErrors prometheus.Counter
	ActivePlayback    prometheus.Gauge
	PlaybackLead      prometheus.Histogram
	Interruptions     prometheus.Counter

	// Lifecycle
	SessionsStarted prometheus.Counter
	SessionFailures *prometheus.CounterVec
	SessionActive   prometheus.Gauge
	SessionDuration prometheus.Histogram
	TurnsCompleted  prometheus.Counter
	MessagesEmitted *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Passing a fresh
// registry keeps tests independent of the global one.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_frames_sent_total",
			Help: "Microphone frames queued to the live session",
		}),
		FramesRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_frames_rejected_total",
			Help: "Microphone frames refused because the session was closing",
		}),
		ChunksScheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_chunks_scheduled_total",
			Help: "Inbound audio chunks scheduled for playback",
		}),
		ChunkDecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_chunk_decode_errors_total",
			Help: "Inbound audio chunks skipped because they could not be decoded",
		}),
		ActivePlayback: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_playback_active_sources",
			Help: "Scheduled playback chunks that have not finished",
		}),
		PlaybackLead: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_playback_lead_seconds",
			Help:    "How far ahead of the output clock a chunk was scheduled",
			Buckets: []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		Interruptions: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_interruptions_total",
			Help: "Model turns cut short by the user speaking",
		}),
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_started_total",
			Help: "Voice sessions that reached the active state",
		}),
		SessionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_session_failures_total",
			Help: "Voice sessions that ended because of a failure",
		}, []string{"kind"}),
		SessionActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_session_active",
			Help: "1 while a voice session is active",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_session_duration_seconds",
			Help:    "Wall time of completed voice sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		TurnsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_turns_completed_total",
			Help: "Turn-complete signals received",
		}),
		MessagesEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_messages_emitted_total",
			Help: "Chat messages appended to the log by role",
		}, []string{"role"}),
	}
}

func (m *Metrics) FrameSent() {
	if m != nil {
		m.FramesSent.Inc()
	}
}

func (m *Metrics) FrameRejected() {
	if m != nil {
		m.FramesRejected.Inc()
	}
}

// ChunkScheduled records a scheduled chunk and its lead over the clock.
func (m *Metrics) ChunkScheduled(lead time.Duration) {
	if m != nil {
		m.ChunksScheduled.Inc()
		m.PlaybackLead.Observe(lead.Seconds())
	}
}

func (m *Metrics) ChunkDecodeError() {
	if m != nil {
		m.ChunkDecodeErrors.Inc()
	}
}

func (m *Metrics) SetActivePlayback(n int) {
	if m != nil {
		m.ActivePlayback.Set(float64(n))
	}
}

func (m *Metrics) Interrupted() {
	if m != nil {
		m.Interruptions.Inc()
	}
}

func (m *Metrics) SessionStarted() {
	if m != nil {
		m.SessionsStarted.Inc()
		m.SessionActive.Set(1)
	}
}

// SessionEnded records the end of an active session.
func (m *Metrics) SessionEnded(d time.Duration) {
	if m != nil {
		m.SessionActive.Set(0)
		m.SessionDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SessionFailed(kind string) {
	if m != nil {
		m.SessionFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) TurnCompleted() {
	if m != nil {
		m.TurnsCompleted.Inc()
	}
}

func (m *Metrics) MessageEmitted(role string) {
	if m != nil {
		m.MessagesEmitted.WithLabelValues(role).Inc()
	}
}
