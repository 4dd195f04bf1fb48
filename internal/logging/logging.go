package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type Backend string

const (
	BackendText Backend = "text"
	BackendJSON Backend = "json"
	BackendZap  Backend = "zap"
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	Level     slog.Level
	Backend   Backend
	AddSource bool

	// Output defaults to stderr.
	Output io.Writer

	// zap sampling, per second
	SampleInitial    int
	SampleThereafter int
}

// ParseLevel maps LOG_LEVEL style names to slog levels. Unknown names
// return def.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return def
}

// LevelFromEnv reads LOG_LEVEL, falling back to def.
func LevelFromEnv(def slog.Level) slog.Level {
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		return ParseLevel(l, def)
	}
	return def
}

// New builds a logger for cfg without touching the slog default.
func New(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Service == "" {
		cfg.Service = "pinch"
	}
	cfg.InstanceID = ensureInstanceID(cfg.InstanceID)

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(cfg)
	case BackendJSON:
		h = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource})
	default:
		h = slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource})
	}

	return slog.New(h.WithAttrs(commonAttr(cfg)))
}

// Init builds a logger and installs it as the slog default.
func Init(cfg Config) *slog.Logger {
	l := New(cfg)
	slog.SetDefault(l)
	return l
}

func ensureInstanceID(v string) string {
	if v != "" {
		return v
	}
	hn, _ := os.Hostname()
	return hn + "-" + uuid.NewString()[:8]
}

func commonAttr(cfg Config) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("instance_id", cfg.InstanceID),
	}
	if cfg.Version != "" {
		attrs = append(attrs, slog.String("version", cfg.Version))
	}
	return attrs
}

// Discard is a logger that drops everything, for tests and quiet callers.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
