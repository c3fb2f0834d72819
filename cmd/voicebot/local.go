package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sales-voice-lab/internal/chat"
	"github.com/sales-voice-lab/internal/control"
	"github.com/sales-voice-lab/internal/device"
	"github.com/sales-voice-lab/internal/logging"
	"github.com/sales-voice-lab/internal/telemetry"
	"github.com/sales-voice-lab/internal/tui"
	"github.com/sales-voice-lab/internal/voice"
)

var (
	localFlags   sessionFlags
	localLogFile string
	localMute    bool
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Talk through this machine's microphone and speakers",
	Long: `local opens a terminal UI with a single microphone button. Press space to
start a session and again to end it. Logs go to --log-file so they do not
corrupt the screen. Build with -tags portaudio for real audio devices.`,
	Args: cobra.NoArgs,
	RunE: runLocal,
}

func init() {
	localFlags.register(localCmd)
	localCmd.Flags().StringVar(&localLogFile, "log-file", "voicebot.log", "log destination")
	localCmd.Flags().BoolVar(&localMute, "mute", false, "discard model audio instead of playing it")
	rootCmd.AddCommand(localCmd)
}

func runLocal(cmd *cobra.Command, args []string) error {
	cfg, err := localFlags.load()
	if err != nil {
		return err
	}
	logging.InitWith(logging.Options{Level: cfg.LogLevel, OutputPaths: []string{localLogFile}})
	defer logging.Sync()

	persona, err := resolvePersona(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	flushTraces, err := setupTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer flushTraces()

	dialer, err := newDialer(ctx, cfg)
	if err != nil {
		return err
	}
	m, reg := newMetrics()

	var speaker voice.Speaker = device.Speaker{}
	if localMute {
		speaker = device.NullSpeaker{}
	}
	log, err := openLog(localFlags.transcript)
	if err != nil {
		return err
	}
	obs := tui.NewObserver()
	ctrl, err := voice.New(voice.Config{
		Instruction: persona.Instruction(),
		Model:       cfg.Model,
		Voice:       cfg.Voice,
		Microphone:  device.Microphone{},
		Speaker:     speaker,
		Dialer:      dialer,
		Sink:        chat.Fanout{log, obs},
		FrameSize:   cfg.FrameSize,
		Metrics:     m,
		Tracer:      telemetry.Tracer(nil),
		Observers:   []voice.Observer{obs},
	})
	if err != nil {
		return err
	}
	defer ctrl.Stop("")

	serverDone := make(chan error, 1)
	if cfg.ControlAddr != "" {
		srv := control.NewServer(control.Options{
			Addr:     cfg.ControlAddr,
			Voice:    ctrl,
			Log:      log,
			Persona:  persona.ID,
			Gatherer: reg,
		})
		go func() { serverDone <- srv.Run(ctx) }()
	} else {
		close(serverDone)
	}

	p := tea.NewProgram(tui.NewModel(ctrl, persona.Name, log.Messages()), tea.WithAltScreen(), tea.WithContext(ctx))
	obs.Attach(p)
	_, runErr := p.Run()
	if errors.Is(runErr, tea.ErrProgramKilled) {
		runErr = nil
	}
	if runErr != nil {
		runErr = fmt.Errorf("terminal UI: %w", runErr)
	}

	ctrl.Stop("")
	cancel()
	return errors.Join(runErr, <-serverDone, saveLog(log, localFlags.transcript))
}
