package logging

import (
	"context"
	"log/slog"
	"math"
	"strings"
)

// Levels beyond the four slog defaults, used by the legacy accessory
// logLevel setting.
const (
	LevelTrace = slog.Level(-8)

	// levelNone is above every level and silences a logger.
	levelNone = slog.Level(math.MaxInt32)
)

// parseAccessoryLevel maps a legacy accessory logLevel onto a slog
// threshold. ok is false for an empty or unknown level, leaving the
// service threshold alone.
//
// The legacy "critical" level is mapped to error: nothing in the service
// logs above error.
func parseAccessoryLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "none":
		return levelNone, true
	case "critical", "error":
		return slog.LevelError, true
	case "warning", "warn":
		return slog.LevelWarn, true
	case "info":
		return slog.LevelInfo, true
	case "debug":
		return slog.LevelDebug, true
	case "trace":
		return LevelTrace, true
	default:
		return 0, false
	}
}

// WithAccessoryLevel returns a logger that drops records below an
// accessory's legacy logLevel. Accessories add their own name to every
// record, so no attribute is attached here.
//
// The accessory level can only narrow what the service logs: a "debug"
// accessory under an "info" service still logs at info.
//
// Parameters:
//   - level: Legacy logLevel (none, critical, error, warning, info, debug, trace)
//
// Returns:
//   - *Logger: Filtered child logger, or l itself for an empty level
func (l *Logger) WithAccessoryLevel(level string) *Logger {
	threshold, ok := parseAccessoryLevel(level)
	if !ok {
		return l
	}
	return &Logger{
		Logger: slog.New(&levelHandler{min: threshold, inner: l.Handler()}),
	}
}

// levelHandler filters records below min before the wrapped handler sees
// them.
type levelHandler struct {
	min   slog.Level
	inner slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min && h.inner.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{min: h.min, inner: h.inner.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{min: h.min, inner: h.inner.WithGroup(name)}
}
