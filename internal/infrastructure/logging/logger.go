package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/config"
)

// serviceName is attached to every record as "service".
const serviceName = "irbridge"

// Logger is the service's structured logger.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds the service logger from cfg. Every record carries the
// service name and the binary version.
//
// Parameters:
//   - cfg: Level (trace, debug, info, warn, error), format (json, text)
//     and output (stdout, stderr)
//   - version: Build version
//
// Returns:
//   - *Logger: Configured logger
func New(cfg config.LoggingConfig, version string) *Logger {
	return newLogger(outputFor(cfg.Output), cfg.Format, parseLevel(cfg.Level), version)
}

// Default is the logger used before the configuration is loaded: JSON on
// stdout at info.
func Default() *Logger {
	return newLogger(os.Stdout, "json", slog.LevelInfo, "dev")
}

func newLogger(w io.Writer, format string, level slog.Leveler, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: nameLevels,
	}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)}
}

func outputFor(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel maps the configured level name; unknown names mean info.
func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// nameLevels prints LevelTrace as TRACE instead of slog's "DEBUG-4".
func nameLevels(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 || a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// With returns a child logger carrying args on every record.
//
// Example:
//
//	gwLog := logger.With("component", "broadlink")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}
