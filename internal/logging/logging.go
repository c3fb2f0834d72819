// Package logging is a small key/value logging facade over zap. Every
// package logs through the package-level helpers so tests can swap the
// backend with SetLogger.
package logging

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is what the helpers forward to. *zap.SugaredLogger satisfies it.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
	Sync() error
}

type discard struct{}

func (discard) Debugw(string, ...any) {}
func (discard) Infow(string, ...any)  {}
func (discard) Warnw(string, ...any)  {}
func (discard) Errorw(string, ...any) {}
func (discard) Sync() error           { return nil }

var (
	mu      sync.RWMutex
	base    Logger = discard{}
	current Logger = discard{}
	once    sync.Once
)

// Options configure InitWith. The zero value logs JSON to stdout at the
// LOG_LEVEL level.
type Options struct {
	Level string
	// OutputPaths replaces stdout; the terminal UI logs to a file.
	OutputPaths []string
}

// InitWith builds the process logger once and redirects the standard
// library logger into it. Later calls return without effect.
func InitWith(opts Options) {
	once.Do(func() {
		logger, err := build(opts)
		if err != nil {
			logger, _ = zap.NewProduction()
		}
		_ = zap.RedirectStdLog(logger)
		mu.Lock()
		base = logger.Sugar()
		current = base
		mu.Unlock()
	})
}

func build(opts Options) (*zap.Logger, error) {
	level := opts.Level
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(level)),
		Encoding:         "json",
		EncoderConfig:    enc,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	return cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zap.ErrorLevel))
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// SetLogger swaps the backend; nil restores the one InitWith built.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		current = base
		return
	}
	current = l
}

// GetLogger returns the active backend.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Debugw(msg string, kv ...any) { GetLogger().Debugw(msg, kv...) }
func Infow(msg string, kv ...any)  { GetLogger().Infow(msg, kv...) }
func Warnw(msg string, kv ...any)  { GetLogger().Warnw(msg, kv...) }
func Errorw(msg string, kv ...any) { GetLogger().Errorw(msg, kv...) }

// Sync flushes buffered entries.
func Sync() error { return GetLogger().Sync() }

type fieldsKey struct{}

// WithFields returns ctx carrying kv after any fields it already had. The
// parent's fields are never modified.
func WithFields(ctx context.Context, kv ...any) context.Context {
	if len(kv) == 0 {
		return ctx
	}
	return context.WithValue(ctx, fieldsKey{}, concat(FromContext(ctx), kv))
}

// FromContext returns the fields attached with WithFields.
func FromContext(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	return fields
}

func concat(a, b []any) []any {
	if len(a) == 0 {
		return b
	}
	out := make([]any, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

func DebugwCtx(ctx context.Context, msg string, kv ...any) {
	Debugw(msg, concat(FromContext(ctx), kv)...)
}

func InfowCtx(ctx context.Context, msg string, kv ...any) {
	Infow(msg, concat(FromContext(ctx), kv)...)
}

func WarnwCtx(ctx context.Context, msg string, kv ...any) {
	Warnw(msg, concat(FromContext(ctx), kv)...)
}

// SessionFields tags log lines belonging to one voice session.
func SessionFields(sessionID, model string) []any {
	if model == "" {
		return []any{"correlation_id", sessionID}
	}
	return []any{"correlation_id", sessionID, "model", model}
}

func PersonaFields(id, name string) []any { return named("persona", id, name) }
func GuildFields(id, name string) []any   { return named("guild", id, name) }
func ChannelFields(id, name string) []any { return named("channel", id, name) }

// named yields "<kind>.id" and, when known, "<kind>.name".
func named(kind, id, name string) []any {
	if name == "" {
		return []any{kind + ".id", id}
	}
	return []any{kind + ".id", id, kind + ".name", name}
}

// ChunkFields describes one inbound audio chunk.
func ChunkFields(samples int, durationMs int64) []any {
	return []any{"samples", samples, "duration_ms", durationMs}
}
