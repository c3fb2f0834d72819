package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who spoke a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one immutable entry of the conversation log.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps a message with a fresh id and the current time.
func NewMessage(role Role, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// Sink receives appended messages. The voice session only ever appends.
type Sink interface {
	Append(Message)
}

// Fanout appends to several sinks in order.
type Fanout []Sink

func (f Fanout) Append(m Message) {
	for _, s := range f {
		s.Append(m)
	}
}

// Log is an in-memory append-only message log. Subscribers receive every
// message appended after they subscribed.
type Log struct {
	mu       sync.RWMutex
	messages []Message
	subs     map[int]chan Message
	nextSub  int
}

func NewLog() *Log {
	return &Log{subs: make(map[int]chan Message)}
}

// Append adds m to the log and fans it out to subscribers. Slow subscribers
// miss messages rather than block the caller.
func (l *Log) Append(m Message) {
	l.mu.Lock()
	l.messages = append(l.messages, m)
	subs := make([]chan Message, 0, len(l.subs))
	for _, ch := range l.subs {
		subs = append(subs, ch)
	}
	l.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- m:
		default:
		}
	}
}

// Messages returns a copy of the log.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Subscribe returns a channel of future messages and a cancel func that
// unregisters and closes it.
func (l *Log) Subscribe(buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Message, buffer)
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}
