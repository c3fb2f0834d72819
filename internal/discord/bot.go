// Package discord runs voice sessions inside a Discord voice channel and
// mirrors the transcript to a text channel.
package discord

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/sales-voice-lab/internal/logging"
)

// Options configures Connect.
type Options struct {
	Token          string
	GuildID        string
	VoiceChannelID string
	// TextChannelID receives the transcript; empty disables mirroring.
	TextChannelID string
	AllowedUsers  []string
	// LogEvents logs every gateway event at debug level, redacted.
	LogEvents bool
}

// Bot is a connected Discord session joined to one voice channel.
type Bot struct {
	Session  *discordgo.Session
	Voice    *discordgo.VoiceConnection
	Resolver *Resolver
	Speakers *Speakers
	Sink     *TextSink

	opts Options
}

// Connect opens the gateway, joins the voice channel and wires the speaking
// handler. The caller owns the returned Bot and must Close it.
func Connect(opts Options) (*Bot, error) {
	dg, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("discordgo.New: %w", err)
	}
	// Guilds + GuildVoiceStates are enough to join and receive voice.
	if dg.Identify.Intents == 0 {
		dg.Identify = discordgo.Identify{Intents: discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates}
	}
	privileged := discordgo.IntentsGuildMembers | discordgo.IntentsGuildPresences
	if dg.Identify.Intents&privileged != 0 {
		logging.Warnw("bot is requesting privileged gateway intents; ensure these are enabled in the Discord Developer Portal", "intents", dg.Identify.Intents)
	}
	if opts.LogEvents {
		dg.AddHandler(logEvent)
	}

	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("discord session open: %w", err)
	}
	b := &Bot{Session: dg, Resolver: NewResolver(dg), opts: opts}
	b.Speakers = NewSpeakers(b.Resolver)
	if len(opts.AllowedUsers) > 0 {
		b.Speakers.SetAllowedUsers(opts.AllowedUsers)
	}

	fields := append(logging.GuildFields(opts.GuildID, b.Resolver.GuildName(opts.GuildID)),
		logging.ChannelFields(opts.VoiceChannelID, b.Resolver.ChannelName(opts.VoiceChannelID))...)
	vc, err := dg.ChannelVoiceJoin(opts.GuildID, opts.VoiceChannelID, false, false)
	if err != nil {
		_ = dg.Close()
		return nil, fmt.Errorf("voice join: %w", err)
	}
	b.Voice = vc
	vc.AddHandler(b.Speakers.HandleSpeakingUpdate)
	logging.Infow("joined voice channel", fields...)

	if opts.TextChannelID != "" {
		b.Sink = NewTextSink(dg, opts.TextChannelID)
	}
	return b, nil
}

// Microphone captures the voice channel.
func (b *Bot) Microphone() *Microphone {
	return &Microphone{VC: b.Voice, Speakers: b.Speakers}
}

// Speaker plays into the voice channel.
func (b *Bot) Speaker() *Speaker {
	return &Speaker{VC: b.Voice}
}

// Close flushes the text sink, leaves the voice channel and closes the
// gateway session.
func (b *Bot) Close() error {
	var errs []error
	if b.Sink != nil {
		errs = append(errs, b.Sink.Close())
	}
	if b.Voice != nil {
		if err := b.Voice.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("voice disconnect: %w", err))
		}
	}
	if err := b.Session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("discord session close: %w", err))
	}
	return errors.Join(errs...)
}
