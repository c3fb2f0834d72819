package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

func newFakeGenAI(t *testing.T, handle func(conn *websocket.Conn)) *GenAIDialer {
	t.Helper()
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  "test-key",
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    liveServerURL(t, handle),
			APIVersion: "v1beta",
		},
	})
	if err != nil {
		t.Fatalf("genai client: %v", err)
	}
	return &GenAIDialer{Client: client, DrainTimeout: time.Second}
}

func TestGenAIDialWaitsForSetupAndReadsContent(t *testing.T) {
	setups := make(chan setupMessage, 1)
	d := newFakeGenAI(t, func(conn *websocket.Conn) {
		setups <- readSetup(t, conn)
		_ = ackSetup(conn)
		msgs := []string{
			`{"serverContent":{"inputTranscription":{"text":"Hel"}}}`,
			`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAA="}},{"text":"ignored"}]},"outputTranscription":{"text":"Hi"}}}`,
			`{"serverContent":{"turnComplete":true}}`,
		}
		for _, m := range msgs {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(m))
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	s := dial(t, d)
	defer s.Close()
	if s.State() != StateOpen {
		t.Fatalf("expected open session, got %s", s.State())
	}

	setup := <-setups
	if setup.Setup.Model != "models/test-model" {
		t.Fatalf("unexpected model %q", setup.Setup.Model)
	}
	if sc := setup.Setup.GenerationConfig.SpeechConfig; sc == nil || sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Puck" {
		t.Fatalf("unexpected speech config %+v", sc)
	}
	if si := setup.Setup.SystemInstruction; si == nil || len(si.Parts) != 1 || si.Parts[0].Text != "be brief" {
		t.Fatalf("unexpected system instruction %+v", si)
	}

	var got []Message
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case m, ok := <-s.Inbound():
			if !ok {
				done = true
				continue
			}
			got = append(got, m)
		case <-timeout:
			t.Fatal("timed out reading inbound")
		}
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d: %+v", len(got), got)
	}
	if got[0].InputTranscript != "Hel" {
		t.Fatalf("unexpected input transcript %q", got[0].InputTranscript)
	}
	if len(got[1].Audio) != 1 || got[1].Audio[0].Data != "AAA=" || got[1].OutputTranscript != "Hi" {
		t.Fatalf("unexpected model turn %+v", got[1])
	}
	if !got[2].TurnComplete {
		t.Fatalf("expected turn complete, got %+v", got[2])
	}
	if s.Err() != nil {
		t.Fatalf("clean remote close should not record an error, got %v", s.Err())
	}
}

func TestGenAIDialFailsWithoutSetupComplete(t *testing.T) {
	cases := []struct {
		name   string
		answer func(conn *websocket.Conn)
	}{
		{"policy close", func(conn *websocket.Conn) {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad model"))
		}},
		{"content before setup", func(conn *websocket.Conn) {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"turnComplete":true}}`))
		}},
		{"error payload", func(conn *websocket.Conn) {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":{"code":400}}`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newFakeGenAI(t, func(conn *websocket.Conn) {
				readSetup(t, conn)
				tc.answer(conn)
				for {
					if _, _, err := conn.ReadMessage(); err != nil {
						return
					}
				}
			})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s, err := d.Dial(ctx, SessionConfig{Model: "m"})
			if !errors.Is(err, ErrSetupFailed) {
				t.Fatalf("expected ErrSetupFailed, got %v", err)
			}
			if s != nil {
				t.Fatal("expected no session")
			}
		})
	}
}

func TestGenAIDialHonoursCancelWhileSetupPending(t *testing.T) {
	release := make(chan struct{})
	d := newFakeGenAI(t, func(conn *websocket.Conn) {
		readSetup(t, conn)
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := d.Dial(ctx, SessionConfig{Model: "m"})
		errCh <- err
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrSetupFailed) {
			t.Fatalf("expected canceled setup failure, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Dial did not return after cancel")
	}
}

func TestFromGenAI(t *testing.T) {
	cases := []struct {
		name string
		in   *genai.LiveServerContent
		want Message
	}{
		{
			name: "empty",
			in:   &genai.LiveServerContent{},
		},
		{
			name: "audio reencoded and other parts skipped",
			in: &genai.LiveServerContent{ModelTurn: &genai.Content{Parts: []*genai.Part{
				nil,
				{Text: "hello"},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{1}}},
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{0, 0}}},
			}}},
			want: Message{Audio: []AudioChunk{{Data: "AAA=", MIMEType: "audio/pcm;rate=24000"}}},
		},
		{
			name: "transcripts",
			in: &genai.LiveServerContent{
				InputTranscription:  &genai.Transcription{Text: "hi"},
				OutputTranscription: &genai.Transcription{Text: "hello there"},
			},
			want: Message{InputTranscript: "hi", OutputTranscript: "hello there"},
		},
		{
			name: "flags",
			in:   &genai.LiveServerContent{TurnComplete: true, Interrupted: true},
			want: Message{TurnComplete: true, Interrupted: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := fromGenAI(tc.in)
			if len(got.Audio) != len(tc.want.Audio) {
				t.Fatalf("audio: got %+v, want %+v", got.Audio, tc.want.Audio)
			}
			for i := range got.Audio {
				if got.Audio[i] != tc.want.Audio[i] {
					t.Fatalf("audio[%d]: got %+v, want %+v", i, got.Audio[i], tc.want.Audio[i])
				}
			}
			if got.InputTranscript != tc.want.InputTranscript || got.OutputTranscript != tc.want.OutputTranscript {
				t.Fatalf("transcripts: got %q/%q, want %q/%q", got.InputTranscript, got.OutputTranscript, tc.want.InputTranscript, tc.want.OutputTranscript)
			}
			if got.TurnComplete != tc.want.TurnComplete || got.Interrupted != tc.want.Interrupted {
				t.Fatalf("flags: got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestLiveConnectConfig(t *testing.T) {
	cases := []struct {
		name            string
		cfg             SessionConfig
		wantVoice       string
		wantInstruction string
	}{
		{"defaults", SessionConfig{Model: "m"}, DefaultVoice, ""},
		{"voice and instruction", SessionConfig{Model: "m", Voice: "Kore", Instruction: "be brief"}, "Kore", "be brief"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lc := liveConnectConfig(tc.cfg)
			if len(lc.ResponseModalities) != 1 || lc.ResponseModalities[0] != genai.ModalityAudio {
				t.Fatalf("unexpected modalities %v", lc.ResponseModalities)
			}
			if got := lc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != tc.wantVoice {
				t.Fatalf("voice: got %q, want %q", got, tc.wantVoice)
			}
			if lc.InputAudioTranscription == nil || lc.OutputAudioTranscription == nil {
				t.Fatal("transcription should be requested both ways")
			}
			if tc.wantInstruction == "" {
				if lc.SystemInstruction != nil {
					t.Fatalf("expected no system instruction, got %+v", lc.SystemInstruction)
				}
				return
			}
			si := lc.SystemInstruction
			if si == nil || len(si.Parts) != 1 || si.Parts[0].Text != tc.wantInstruction {
				t.Fatalf("unexpected system instruction %+v", si)
			}
		})
	}
}
