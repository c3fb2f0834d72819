package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sales-voice-lab/internal/chat"
	"github.com/sales-voice-lab/internal/config"
	"github.com/sales-voice-lab/internal/live"
	"github.com/sales-voice-lab/internal/logging"
	"github.com/sales-voice-lab/internal/metrics"
	"github.com/sales-voice-lab/internal/telemetry"
)

// sessionFlags are shared by the commands that run a voice session.
type sessionFlags struct {
	persona     string
	personaFile string
	backend     string
	controlAddr string
	noControl   bool
	logLevel    string
	transcript  string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.persona, "persona", "", "persona id (PERSONA); \"assistant\" selects the built-in assistant")
	flags.StringVar(&f.personaFile, "persona-file", "", "persona YAML file (PERSONA_FILE)")
	flags.StringVar(&f.backend, "backend", "", "voice backend: websocket or genai (VOICE_BACKEND)")
	flags.StringVar(&f.controlAddr, "control-addr", "", "control server listen address (CONTROL_ADDR)")
	flags.BoolVar(&f.noControl, "no-control", false, "do not start the control server")
	flags.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	flags.StringVar(&f.transcript, "transcript", "", "JSON file the conversation is resumed from and saved to on exit")
}

// load reads the environment and applies flag overrides.
func (f *sessionFlags) load() (*config.Config, error) {
	cfg := config.Load()
	if f.persona != "" {
		cfg.PersonaID = f.persona
	}
	if f.personaFile != "" {
		cfg.PersonaFile = f.personaFile
	}
	if f.backend != "" {
		cfg.Backend = f.backend
	}
	if f.controlAddr != "" {
		cfg.ControlAddr = f.controlAddr
	}
	if f.noControl {
		cfg.ControlAddr = ""
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newDialer(ctx context.Context, cfg *config.Config) (live.Dialer, error) {
	switch cfg.Backend {
	case config.BackendGenAI:
		d, err := live.NewGenAIDialer(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		d.DrainTimeout = cfg.DrainTimeout
		return d, nil
	case config.BackendWebSocket:
		return &live.WebSocketDialer{
			Endpoint:     cfg.Endpoint,
			APIKey:       cfg.APIKey,
			DrainTimeout: cfg.DrainTimeout,
		}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// newMetrics registers the voice collectors next to the Go runtime ones.
func newMetrics() (*metrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg), reg
}

// setupTracing exports spans when a collector is configured. The returned
// func flushes within a few seconds and never fails the command.
func setupTracing(ctx context.Context, cfg *config.Config) (func(), error) {
	shutdown, err := telemetry.Setup(ctx, cfg.TraceEndpoint, "voicebot")
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	if cfg.TraceEndpoint != "" {
		logging.Infow("exporting traces", "endpoint", cfg.TraceEndpoint)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logging.Warnw("trace flush failed", "err", err)
		}
	}, nil
}

func resolvePersona(cfg *config.Config) (config.AIPersona, error) {
	p, err := cfg.ResolvePersona()
	if err != nil {
		return config.AIPersona{}, err
	}
	logging.Infow("persona selected", logging.PersonaFields(p.ID, p.Name)...)
	return p, nil
}

// openLog returns a log seeded from path when the file exists.
func openLog(path string) (*chat.Log, error) {
	log := chat.NewLog()
	if path == "" {
		return log, nil
	}
	history, err := chat.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return log, nil
	}
	if err != nil {
		return nil, err
	}
	for _, m := range history {
		log.Append(m)
	}
	logging.Infow("transcript resumed", "path", path, "messages", len(history))
	return log, nil
}

func saveLog(log *chat.Log, path string) error {
	if path == "" {
		return nil
	}
	if err := log.Save(path); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	logging.Infow("transcript saved", "path", path, "messages", log.Len())
	return nil
}
