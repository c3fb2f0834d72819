package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/sales-voice-lab/internal/chat"
	"github.com/sales-voice-lab/internal/logging"
)

const (
	sinkBuffer = 64
	// Discord allows roughly five posts per channel every five seconds.
	postBurst    = 5
	postInterval = time.Second
)

// messageSender is the slice of *discordgo.Session the sink uses.
type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// TextSink mirrors chat messages to a text channel. Append never blocks;
// messages beyond the buffer are dropped with a warning.
type TextSink struct {
	s         messageSender
	channelID string
	limiter   *rate.Limiter
	ch        chan chat.Message
	done      chan struct{}
	once      sync.Once
}

func NewTextSink(s messageSender, channelID string) *TextSink {
	t := &TextSink{
		s:         s,
		channelID: channelID,
		limiter:   rate.NewLimiter(rate.Every(postInterval), postBurst),
		ch:        make(chan chat.Message, sinkBuffer),
		done:      make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *TextSink) Append(m chat.Message) {
	select {
	case t.ch <- m:
	default:
		logging.Warnw("discord: text sink full, dropping message", "message_id", m.ID)
	}
}

func (t *TextSink) run() {
	defer close(t.done)
	for m := range t.ch {
		if err := t.limiter.Wait(context.Background()); err != nil {
			logging.Warnw("discord: post rate limiter failed", "err", err)
		}
		if _, err := t.s.ChannelMessageSend(t.channelID, Format(m)); err != nil {
			logging.Warnw("discord: post message failed", "channel_id", t.channelID, "err", err)
		}
	}
}

// Close flushes pending messages. Append must not be called afterwards.
func (t *TextSink) Close() error {
	t.once.Do(func() { close(t.ch) })
	<-t.done
	return nil
}

// Format renders a message for a text channel.
func Format(m chat.Message) string {
	who := "Assistant"
	if m.Role == chat.RoleUser {
		who = "You"
	}
	return fmt.Sprintf("**%s:** %s", who, m.Text)
}

