package voice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/sales-voice-lab/internal/live"
	"github.com/sales-voice-lab/internal/logging"
)

// resources is everything one session owns. It is built up during Start
// and released as one unit.
type resources struct {
	id        string
	ctx       context.Context
	span      trace.Span
	started   time.Time
	stream    CaptureStream
	scheduler *Scheduler
	session   live.Session
	encoder   *encoder

	quit     chan struct{}
	loopDone chan struct{}
}

// release stops capture, halts playback, closes the output context and
// closes the transport, in that order. Safe on a partially built bundle.
func (r *resources) release() error {
	var errs []error
	if r.stream != nil {
		if err := r.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("capture: %w", err))
		}
	}
	if r.scheduler != nil {
		if err := r.scheduler.Close(); err != nil {
			errs = append(errs, fmt.Errorf("playback: %w", err))
		}
	}
	if r.session != nil {
		if err := r.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("transport: %w", err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		logging.WarnwCtx(r.ctx, "voice session: release errors", "err", err)
	}
	return err
}
