package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// LevelTrace sits below slog.LevelDebug for pion's very chatty trace output.
const LevelTrace = slog.LevelDebug - 4

// slogFactory routes pion's internal logging through slog so both share one
// handler and level.
type slogFactory struct {
	log *slog.Logger
}

// NewLoggerFactory adapts l for pion's SettingEngine.
func NewLoggerFactory(l *slog.Logger) logging.LoggerFactory {
	return slogFactory{log: l}
}

func (f slogFactory) NewLogger(scope string) logging.LeveledLogger {
	return &slogLeveled{log: f.log.With("pion", scope)}
}

type slogLeveled struct {
	log *slog.Logger
}

func (l *slogLeveled) logf(level slog.Level, format string, args ...any) {
	ctx := context.Background()
	if !l.log.Enabled(ctx, level) {
		return
	}
	l.log.Log(ctx, level, fmt.Sprintf(format, args...))
}

func (l *slogLeveled) Trace(msg string)                  { l.logf(LevelTrace, "%s", msg) }
func (l *slogLeveled) Tracef(format string, args ...any) { l.logf(LevelTrace, format, args...) }
func (l *slogLeveled) Debug(msg string)                  { l.logf(slog.LevelDebug, "%s", msg) }
func (l *slogLeveled) Debugf(format string, args ...any) { l.logf(slog.LevelDebug, format, args...) }
func (l *slogLeveled) Info(msg string)                   { l.logf(slog.LevelInfo, "%s", msg) }
func (l *slogLeveled) Infof(format string, args ...any)  { l.logf(slog.LevelInfo, format, args...) }
func (l *slogLeveled) Warn(msg string)                   { l.logf(slog.LevelWarn, "%s", msg) }
func (l *slogLeveled) Warnf(format string, args ...any)  { l.logf(slog.LevelWarn, format, args...) }
func (l *slogLeveled) Error(msg string)                  { l.logf(slog.LevelError, "%s", msg) }
func (l *slogLeveled) Errorf(format string, args ...any) { l.logf(slog.LevelError, format, args...) }
