package live

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sales-voice-lab/internal/logging"
)

// DefaultEndpoint is the Gemini Live bidirectional streaming endpoint.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// WebSocketDialer speaks the Live JSON protocol over gorilla/websocket.
type WebSocketDialer struct {
	Endpoint       string
	APIKey         string
	WriteWait      time.Duration
	MaxMessageSize int64
	DrainTimeout   time.Duration
	// Dialer overrides the websocket dialer, mostly for tests.
	Dialer *websocket.Dialer
}

func (d *WebSocketDialer) Dial(ctx context.Context, cfg SessionConfig) (Session, error) {
	s := newSession(cfg.CorrelationID, d.DrainTimeout)
	s.begin()

	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}
	header := http.Header{}
	if d.APIKey != "" {
		header.Set("x-goog-api-key", d.APIKey)
	}

	logging.Infow("live session connecting", logging.SessionFields(s.id, cfg.Model)...)
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return d.fail(s, fmt.Errorf("dial: %w", err))
	}
	maxSize := d.MaxMessageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	conn.SetReadLimit(maxSize)

	w := &wsWire{conn: conn, writeWait: d.WriteWait}
	if w.writeWait <= 0 {
		w.writeWait = DefaultWriteWait
	}
	if err := w.writeJSON(buildSetup(cfg)); err != nil {
		_ = w.close()
		return d.fail(s, fmt.Errorf("send setup: %w", err))
	}
	if err := w.awaitSetup(ctx); err != nil {
		_ = w.close()
		return d.fail(s, err)
	}
	if err := s.open(w); err != nil {
		_ = w.close()
		return d.fail(s, err)
	}
	logging.Infow("live session open", logging.SessionFields(s.id, cfg.Model)...)
	return s, nil
}

func (d *WebSocketDialer) fail(s *session, err error) (Session, error) {
	err = fmt.Errorf("%w: %w", ErrSetupFailed, err)
	s.abort(err)
	logging.Warnw("live session setup failed", "correlation_id", s.id, "err", err)
	return nil, err
}

type wsWire struct {
	conn      *websocket.Conn
	writeWait time.Duration
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (w *wsWire) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// awaitSetup reads until setupComplete. The read runs on its own goroutine
// so ctx cancellation can abandon a hung handshake.
func (w *wsWire) awaitSetup(ctx context.Context) error {
	type result struct {
		msg serverMessage
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var r result
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			r.err = err
		} else {
			r.err = json.Unmarshal(data, &r.msg)
		}
		ch <- r
	}()
	select {
	case <-ctx.Done():
		_ = w.close()
		<-ch
		return ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("await setup: %w", r.err)
		}
		if r.msg.SetupComplete == nil {
			return fmt.Errorf("await setup: unexpected first message")
		}
		return nil
	}
}

func (w *wsWire) writeAudio(f Frame) error {
	return w.writeJSON(realtimeInputMessage{RealtimeInput: realtimeInput{
		MediaChunks: []mediaChunk{{MIMEType: f.MIMEType, Data: f.Data}},
	}})
}

func (w *wsWire) read() (Message, error) {
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return Message{}, err
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Warnw("live session: undecodable server message", "err", err, "bytes", len(data))
			continue
		}
		if msg.GoAway != nil {
			logging.Warnw("live session: server going away", "time_left", msg.GoAway.TimeLeft)
		}
		if msg.ServerContent == nil {
			continue
		}
		return msg.ServerContent.toMessage(), nil
	}
}

func (w *wsWire) goodbye() error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.writeWait))
}

func (w *wsWire) close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

// Wire types for the Live JSON protocol.

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtime_input"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"media_chunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	GoAway        *goAway        `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

func (sc *serverContent) toMessage() Message {
	var m Message
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
				continue
			}
			m.Audio = append(m.Audio, AudioChunk{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType})
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

func modelPath(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

func buildSetup(cfg SessionConfig) setupMessage {
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	sc := setupConfig{
		Model: modelPath(cfg.Model),
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice},
			}},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if cfg.Instruction != "" {
		sc.SystemInstruction = &content{Parts: []part{{Text: cfg.Instruction}}}
	}
	return setupMessage{Setup: sc}
}
