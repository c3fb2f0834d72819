package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/sales-voice-lab/internal/chat"
	"github.com/sales-voice-lab/internal/control"
	"github.com/sales-voice-lab/internal/discord"
	"github.com/sales-voice-lab/internal/logging"
	"github.com/sales-voice-lab/internal/telemetry"
	"github.com/sales-voice-lab/internal/voice"
)

var (
	discordFlags     sessionFlags
	discordAutostart bool
	discordLogEvents bool
)

var discordCmd = &cobra.Command{
	Use:   "discord",
	Short: "Talk inside a Discord voice channel",
	Long: `discord joins VOICE_CHANNEL_ID in GUILD_ID, listens to the users speaking
there (optionally limited to ALLOWED_USER_IDS) and plays the model's reply
into the channel. Finished turns are posted to TEXT_CHANNEL_ID when set.
Build with -tags opus for voice audio.`,
	Args: cobra.NoArgs,
	RunE: runDiscord,
}

func init() {
	discordFlags.register(discordCmd)
	discordCmd.Flags().BoolVar(&discordAutostart, "autostart", true, "start a session as soon as the bot joins")
	discordCmd.Flags().BoolVar(&discordLogEvents, "log-events", false, "log every gateway event at debug level (DISCORD_LOG_EVENTS)")
	rootCmd.AddCommand(discordCmd)
}

func runDiscord(cmd *cobra.Command, args []string) error {
	cfg, err := discordFlags.load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateDiscord(); err != nil {
		return err
	}
	logging.InitWith(logging.Options{Level: cfg.LogLevel})
	defer logging.Sync()

	persona, err := resolvePersona(cfg)
	if err != nil {
		return err
	}
	rootCtx, rootCancel := context.WithCancel(cmd.Context())
	defer rootCancel()

	flushTraces, err := setupTracing(rootCtx, cfg)
	if err != nil {
		return err
	}
	defer flushTraces()

	dialer, err := newDialer(rootCtx, cfg)
	if err != nil {
		return err
	}
	m, reg := newMetrics()

	bot, err := discord.Connect(discord.Options{
		Token:          cfg.DiscordToken,
		GuildID:        cfg.GuildID,
		VoiceChannelID: cfg.VoiceChannelID,
		TextChannelID:  cfg.TextChannelID,
		AllowedUsers:   cfg.AllowedUserIDs,
		LogEvents:      discordLogEvents || cfg.DiscordLogEvents,
	})
	if err != nil {
		return err
	}

	log, err := openLog(discordFlags.transcript)
	if err != nil {
		return errors.Join(err, bot.Close())
	}
	sinks := chat.Fanout{log}
	if bot.Sink != nil {
		sinks = append(sinks, bot.Sink)
	}
	ctrl, err := voice.New(voice.Config{
		Instruction: persona.Instruction(),
		Model:       cfg.Model,
		Voice:       cfg.Voice,
		Microphone:  bot.Microphone(),
		Speaker:     bot.Speaker(),
		Dialer:      dialer,
		Sink:        sinks,
		FrameSize:   cfg.FrameSize,
		Metrics:     m,
		Tracer:      telemetry.Tracer(nil),
	})
	if err != nil {
		return errors.Join(err, bot.Close())
	}

	// nil without a control server, so the select below ignores it
	var serverDone chan error
	if cfg.ControlAddr != "" {
		serverDone = make(chan error, 1)
		srv := control.NewServer(control.Options{
			Addr:     cfg.ControlAddr,
			Voice:    ctrl,
			Log:      log,
			Persona:  persona.ID,
			Gatherer: reg,
		})
		go func() { serverDone <- srv.Run(rootCtx) }()
	}

	if discordAutostart {
		startCtx, cancel := context.WithTimeout(rootCtx, 30*time.Second)
		if err := ctrl.Start(startCtx); err != nil {
			logging.Warnw("initial voice session failed", "err", err)
		}
		cancel()
	}

	logging.Infow("voicebot running; press Ctrl+C to exit", logging.PersonaFields(persona.ID, persona.Name)...)
	var serverErr error
	serverStopped := false
	select {
	case <-rootCtx.Done():
	case serverErr = <-serverDone:
		serverStopped = true
	}

	logging.Infow("shutting down")
	shutdown := make(chan error, 1)
	go func() {
		ctrl.Stop("")
		rootCancel()
		if serverDone != nil && !serverStopped {
			serverErr = <-serverDone
		}
		shutdown <- errors.Join(serverErr, saveLog(log, discordFlags.transcript), bot.Close())
	}()
	select {
	case err := <-shutdown:
		return err
	case <-time.After(10 * time.Second):
		return errors.New("shutdown timed out")
	}
}
