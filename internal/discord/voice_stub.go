//go:build !opus

package discord

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/sales-voice-lab/internal/voice"
)

// This file stands in for the opus-backed voice devices in builds without
// libopus. Build with -tags opus to talk in a voice channel.

var errNoOpus = errors.New("discord: voice audio requires a build with -tags opus")

type Microphone struct {
	VC       *discordgo.VoiceConnection
	Speakers *Speakers
}

func (m *Microphone) Open(ctx context.Context, sampleRate, frameSize int) (voice.CaptureStream, error) {
	return nil, errNoOpus
}

type Speaker struct {
	VC *discordgo.VoiceConnection
}

func (s *Speaker) Open(ctx context.Context, sampleRate int) (voice.OutputContext, error) {
	return nil, errNoOpus
}
