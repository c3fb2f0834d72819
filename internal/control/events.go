package control

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sales-voice-lab/internal/chat"
	"github.com/sales-voice-lab/internal/logging"
	"github.com/sales-voice-lab/internal/voice"
)

const (
	EventStatus     = "status"
	EventTranscript = "transcript"
	EventMessage    = "message"

	clientBuffer = 64
	writeWait    = 5 * time.Second
)

// Event is one frame on the /api/events stream.
type Event struct {
	Type       string          `json:"type"`
	Status     *voice.Status   `json:"status,omitempty"`
	Transcript *voice.Snapshot `json:"transcript,omitempty"`
	Message    *chat.Message   `json:"message,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans controller and log events out to websocket clients. It is a
// voice.Observer; a client that falls behind is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan Event
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

func (h *Hub) StatusChanged(s voice.Status) {
	h.Broadcast(Event{Type: EventStatus, Status: &s})
}

func (h *Hub) TranscriptChanged(s voice.Snapshot) {
	h.Broadcast(Event{Type: EventTranscript, Transcript: &s})
}

// Broadcast queues ev for every client without blocking.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			logging.Warnw("control: event client too slow, dropping", "remote", c.conn.RemoteAddr().String())
			h.removeLocked(c)
		}
	}
}

// Pump forwards appended log messages until the returned stop func is called.
func (h *Hub) Pump(log MessageLog) (stop func()) {
	msgs, cancel := log.Subscribe(clientBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for m := range msgs {
			h.Broadcast(Event{Type: EventMessage, Message: &m})
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.once.Do(func() { close(c.send) })
}

// writeLoop owns all writes to the connection.
func (c *client) writeLoop() {
	defer c.conn.Close()
	for ev := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			logging.Debugw("control: event write failed", "err", err)
			// closing fails the read loop, which removes the client
			_ = c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// Events streams status, transcript and message events. The first two
// frames are the current status and transcript.
// GET /api/events
func (s *Server) Events(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logging.Warnw("control: events upgrade failed", "err", err)
		return nil
	}
	cl := &client{conn: conn, send: make(chan Event, clientBuffer)}
	st := s.opts.Voice.Status()
	tr := s.opts.Voice.Transcript()
	cl.send <- Event{Type: EventStatus, Status: &st}
	cl.send <- Event{Type: EventTranscript, Transcript: &tr}
	if !s.hub.add(cl) {
		_ = conn.Close()
		return nil
	}
	go cl.writeLoop()

	// reads only detect the peer going away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.remove(cl)
	return nil
}
