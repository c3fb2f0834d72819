package live

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/sales-voice-lab/internal/logging"
)

// GenAIDialer opens sessions through the google.golang.org/genai Live
// client instead of the raw websocket protocol.
type GenAIDialer struct {
	Client       *genai.Client
	DrainTimeout time.Duration
}

// NewGenAIDialer builds a Gemini API client for apiKey.
func NewGenAIDialer(ctx context.Context, apiKey string) (*GenAIDialer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GenAIDialer{Client: client}, nil
}

func (d *GenAIDialer) Dial(ctx context.Context, cfg SessionConfig) (Session, error) {
	s := newSession(cfg.CorrelationID, d.DrainTimeout)
	s.begin()
	logging.Infow("live session connecting", append(logging.SessionFields(s.id, cfg.Model), "backend", "genai")...)

	type result struct {
		sess *genai.Session
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		sess, err := d.Client.Live.Connect(ctx, strings.TrimPrefix(cfg.Model, "models/"), liveConnectConfig(cfg))
		if err != nil {
			ch <- result{nil, err}
			return
		}
		// Connect returns once setup is written; cancelling ctx closes the
		// socket so the wait for setupComplete unblocks.
		stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
		err = awaitSetupComplete(sess)
		if !stop() {
			ch <- result{nil, ctx.Err()}
			return
		}
		if err != nil {
			_ = sess.Close()
			ch <- result{nil, err}
			return
		}
		ch <- result{sess, nil}
	}()
	var r result
	select {
	case <-ctx.Done():
		return d.fail(s, ctx.Err())
	case r = <-ch:
	}
	if r.err != nil {
		return d.fail(s, r.err)
	}
	if err := s.open(&genaiWire{sess: r.sess}); err != nil {
		_ = r.sess.Close()
		return d.fail(s, err)
	}
	logging.Infow("live session open", append(logging.SessionFields(s.id, cfg.Model), "backend", "genai")...)
	return s, nil
}

// awaitSetupComplete reads the first server message, which must
// acknowledge the setup.
func awaitSetupComplete(sess *genai.Session) error {
	msg, err := sess.Receive()
	if err != nil {
		return err
	}
	if msg.SetupComplete == nil {
		return errors.New("first server message was not setupComplete")
	}
	return nil
}

func (d *GenAIDialer) fail(s *session, err error) (Session, error) {
	err = fmt.Errorf("%w: %w", ErrSetupFailed, err)
	s.abort(err)
	logging.Warnw("live session setup failed", "correlation_id", s.id, "err", err)
	return nil, err
}

func liveConnectConfig(cfg SessionConfig) *genai.LiveConnectConfig {
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.Instruction != "" {
		lc.SystemInstruction = genai.NewContentFromText(cfg.Instruction, genai.RoleUser)
	}
	return lc
}

type genaiWire struct {
	sess      *genai.Session
	closeOnce sync.Once
	closeErr  error
}

func (w *genaiWire) writeAudio(f Frame) error {
	data, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		return fmt.Errorf("frame payload: %w", err)
	}
	return w.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: data, MIMEType: f.MIMEType},
	})
}

func (w *genaiWire) read() (Message, error) {
	for {
		msg, err := w.sess.Receive()
		if err != nil {
			return Message{}, err
		}
		if msg.GoAway != nil {
			logging.Warnw("live session: server going away", "time_left", msg.GoAway.TimeLeft.String())
		}
		if msg.ServerContent == nil {
			continue
		}
		return fromGenAI(msg.ServerContent), nil
	}
}

func fromGenAI(sc *genai.LiveServerContent) Message {
	var m Message
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p == nil || p.InlineData == nil || !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
				continue
			}
			m.Audio = append(m.Audio, AudioChunk{
				Data:     base64.StdEncoding.EncodeToString(p.InlineData.Data),
				MIMEType: p.InlineData.MIMEType,
			})
		}
	}
	if sc.InputTranscription != nil {
		m.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		m.OutputTranscript = sc.OutputTranscription.Text
	}
	m.TurnComplete = sc.TurnComplete
	m.Interrupted = sc.Interrupted
	return m
}

// goodbye is a no-op; the SDK writes the close frame in Close.
func (w *genaiWire) goodbye() error { return nil }

func (w *genaiWire) close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.sess.Close()
	})
	return w.closeErr
}
