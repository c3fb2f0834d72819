//go:build opus

package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hraban/opus"

	"github.com/sales-voice-lab/internal/audio"
	"github.com/sales-voice-lab/internal/device"
	"github.com/sales-voice-lab/internal/logging"
	"github.com/sales-voice-lab/internal/voice"
)

const (
	discordRate     = 48000
	discordChannels = 2
	// 20ms at 48kHz, per channel
	discordFrame = 960
	maxOpusBytes = 4000
)

// Microphone captures what users say in the joined voice channel.
type Microphone struct {
	VC       *discordgo.VoiceConnection
	Speakers *Speakers
}

var _ voice.Microphone = (*Microphone)(nil)

func (m *Microphone) Open(ctx context.Context, sampleRate, frameSize int) (voice.CaptureStream, error) {
	if m.VC == nil || m.VC.OpusRecv == nil {
		return nil, errors.New("discord: not connected to a voice channel")
	}
	c := &capture{
		recv:     m.VC.OpusRecv,
		speakers: m.Speakers,
		rate:     sampleRate,
		decoders: make(map[uint32]*opus.Decoder),
		frames:   make(chan []float32, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.loop()
	logging.Infow("discord: capture started", "sample_rate", sampleRate)
	return c, nil
}

type capture struct {
	recv     <-chan *discordgo.Packet
	speakers *Speakers
	rate     int
	decoders map[uint32]*opus.Decoder
	frames   chan []float32
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once

	decodeErrs uint64
}

func (c *capture) Frames() <-chan []float32 { return c.frames }

func (c *capture) loop() {
	defer close(c.done)
	defer close(c.frames)
	pcm := make([]int16, discordFrame*discordChannels)
	for {
		select {
		case <-c.stop:
			return
		case pkt, ok := <-c.recv:
			if !ok {
				logging.Warnw("discord: voice receive channel closed")
				return
			}
			if pkt == nil || len(pkt.Opus) == 0 {
				continue
			}
			if c.speakers != nil && !c.speakers.Allowed(pkt.SSRC) {
				continue
			}
			samples, err := c.decode(pkt, pcm)
			if err != nil {
				c.decodeErrs++
				logging.Debugw("discord: opus decode error", "ssrc", pkt.SSRC, "err", err, "errors", c.decodeErrs)
				continue
			}
			select {
			case c.frames <- samples:
			case <-c.stop:
				return
			default:
				logging.Warnw("discord: capture queue full, dropping packet", "ssrc", pkt.SSRC)
			}
		}
	}
}

// decode turns one 48kHz stereo opus packet into mono float samples at the
// requested rate.
func (c *capture) decode(pkt *discordgo.Packet, pcm []int16) ([]float32, error) {
	dec, ok := c.decoders[pkt.SSRC]
	if !ok {
		var err error
		dec, err = opus.NewDecoder(discordRate, discordChannels)
		if err != nil {
			return nil, fmt.Errorf("new decoder: %w", err)
		}
		c.decoders[pkt.SSRC] = dec
	}
	n, err := dec.Decode(pkt.Opus, pcm)
	if err != nil {
		return nil, err
	}
	mono := audio.DownmixStereo(pcm[:n*discordChannels])
	return audio.Resample(audio.Int16ToFloat(mono), discordRate, c.rate), nil
}

func (c *capture) Close() error {
	c.once.Do(func() { close(c.stop) })
	<-c.done
	return nil
}

// Speaker plays synthesized speech into the joined voice channel.
type Speaker struct {
	VC *discordgo.VoiceConnection
}

var _ voice.Speaker = (*Speaker)(nil)

func (s *Speaker) Open(ctx context.Context, sampleRate int) (voice.OutputContext, error) {
	if s.VC == nil || s.VC.OpusSend == nil {
		return nil, errors.New("discord: not connected to a voice channel")
	}
	enc, err := opus.NewEncoder(discordRate, discordChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("discord: new opus encoder: %w", err)
	}
	vc := s.VC
	var speaking bool
	frame := make([]float32, sampleRate/50)
	packet := make([]byte, maxOpusBytes)
	o := device.RunOutput(sampleRate, func(o *device.Output, stop <-chan struct{}) {
		t := time.NewTicker(20 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
			}
			playing := o.Active() > 0
			o.Render(frame)
			if !playing {
				if speaking {
					_ = vc.Speaking(false)
					speaking = false
				}
				continue
			}
			if !speaking {
				if err := vc.Speaking(true); err != nil {
					logging.Warnw("discord: set speaking failed", "err", err)
				}
				speaking = true
			}
			up := audio.Resample(frame, sampleRate, discordRate)
			pcm := audio.UpmixStereo(audio.FloatToInt16(up))
			n, err := enc.Encode(pcm, packet)
			if err != nil {
				logging.Warnw("discord: opus encode failed", "err", err)
				continue
			}
			select {
			case vc.OpusSend <- append([]byte(nil), packet[:n]...):
			case <-stop:
				return
			}
		}
	}, func() error {
		// runs after the loop returned
		if speaking {
			return vc.Speaking(false)
		}
		return nil
	})
	logging.Infow("discord: playback started", "sample_rate", sampleRate)
	return o, nil
}
