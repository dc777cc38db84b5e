package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/adamscao/certlink/internal/config"
)

// New builds a logger from the logging section: JSON or text output at
// the configured level.
func New(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup builds the logger and installs it as the slog default so that
// package-level slog calls share the configuration.
func Setup(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	logger := New(cfg, w)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
