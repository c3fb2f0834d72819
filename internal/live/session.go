package live

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sales-voice-lab/internal/logging"
)

// wire is the backend-specific half of a session.
type wire interface {
	writeAudio(Frame) error
	// read blocks for the next server message.
	read() (Message, error)
	// goodbye tells the peer we are leaving. Called after the writer drained.
	goodbye() error
	close() error
}

// session is the backend-independent half: state, the outbound queue and
// its writer, and the inbound read loop.
type session struct {
	id           string
	sm           stateMachine
	drainTimeout time.Duration
	w            wire

	mu      sync.Mutex
	queue   []Frame
	closing bool
	remote  bool
	err     error

	notify     chan struct{}
	stop       chan struct{}
	inbound    chan Message
	writerDone chan struct{}
	readerDone chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

func newSession(correlationID string, drainTimeout time.Duration) *session {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	s := &session{
		id:           correlationID,
		drainTimeout: drainTimeout,
		notify:       make(chan struct{}, 1),
		stop:         make(chan struct{}),
		inbound:      make(chan Message, inboundBuffer),
		writerDone:   make(chan struct{}),
		readerDone:   make(chan struct{}),
	}
	s.sm.onChange = func(from, to State) {
		logging.Debugw("live session state", "correlation_id", s.id, "from", from.String(), "to", to.String())
	}
	return s
}

// begin moves Idle to Connecting.
func (s *session) begin() {
	_ = s.sm.transition(StateConnecting)
}

// abort records a setup failure.
func (s *session) abort(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	_ = s.sm.transition(StateError)
}

// open attaches the wire and starts the pumps. Connecting to Open.
func (s *session) open(w wire) error {
	s.w = w
	if err := s.sm.transition(StateOpen); err != nil {
		return err
	}
	go s.writeLoop()
	go s.readLoop()
	return nil
}

func (s *session) ID() string             { return s.id }
func (s *session) State() State           { return s.sm.get() }
func (s *session) Inbound() <-chan Message { return s.inbound }

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Pending is the number of queued frames not yet written.
func (s *session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *session) SendAudio(f Frame) error {
	s.mu.Lock()
	if s.closing || s.remote {
		s.mu.Unlock()
		return ErrClosing
	}
	if st := s.sm.get(); st != StateOpen {
		err := s.err
		s.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrClosing
	}
	s.queue = append(s.queue, f)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

func (s *session) pop() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Frame{}, false
	}
	f := s.queue[0]
	s.queue[0] = Frame{}
	s.queue = s.queue[1:]
	return f, true
}

func (s *session) writeLoop() {
	defer close(s.writerDone)
	for {
		f, ok := s.pop()
		if !ok {
			select {
			case <-s.notify:
				continue
			case <-s.stop:
				s.drain()
				return
			}
		}
		if err := s.w.writeAudio(f); err != nil {
			s.fail(err)
			return
		}
	}
}

// drain writes whatever was queued before Closing began.
func (s *session) drain() {
	for {
		f, ok := s.pop()
		if !ok {
			return
		}
		if err := s.w.writeAudio(f); err != nil {
			logging.Warnw("live session: drain write failed", "correlation_id", s.id, "err", err)
			return
		}
	}
}

func (s *session) readLoop() {
	defer close(s.readerDone)
	defer close(s.inbound)
	for {
		msg, err := s.w.read()
		if err != nil {
			if isCleanClose(err) {
				s.mu.Lock()
				s.remote = true
				s.mu.Unlock()
				logging.Infow("live session closed by remote", "correlation_id", s.id)
			} else {
				s.fail(err)
			}
			return
		}
		if msg.empty() {
			continue
		}
		select {
		case s.inbound <- msg:
		case <-s.stop:
			return
		}
	}
}

// fail moves the session to Error unless it is already shutting down.
func (s *session) fail(err error) {
	s.mu.Lock()
	if s.closing || s.err != nil {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.mu.Unlock()
	if terr := s.sm.transition(StateError); terr != nil {
		logging.Debugw("live session: error after shutdown", "correlation_id", s.id, "err", err)
		return
	}
	logging.Errorw("live session transport error", "correlation_id", s.id, "err", err)
	// unblock the peer loop
	_ = s.w.close()
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		graceful := s.sm.transition(StateClosing) == nil
		close(s.stop)

		if s.w == nil {
			return
		}
		timer := time.NewTimer(s.drainTimeout)
		select {
		case <-s.writerDone:
			timer.Stop()
		case <-timer.C:
			logging.Warnw("live session: drain timed out", "correlation_id", s.id, "pending", s.Pending())
		}

		var errs []error
		s.mu.Lock()
		remote := s.remote
		s.mu.Unlock()
		if graceful && !remote {
			if err := s.w.goodbye(); err != nil && !isCleanClose(err) {
				errs = append(errs, err)
			}
		}
		if err := s.w.close(); err != nil {
			errs = append(errs, err)
		}
		<-s.readerDone
		<-s.writerDone
		if graceful {
			_ = s.sm.transition(StateClosed)
		}
		s.closeErr = errors.Join(errs...)
		logging.Infow("live session closed", "correlation_id", s.id, "state", s.sm.get().String())
	})
	return s.closeErr
}

func isCleanClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return errors.Is(err, websocket.ErrCloseSent)
}
