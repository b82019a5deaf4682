package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// NewLogger builds the process logger. Output goes to the configured log
// file, or to fallback when none is set. The returned close func releases
// the file and is safe to call when no file was opened.
func NewLogger(cfg *Config, fallback io.Writer) (*slog.Logger, func() error, error) {
	level, _ := parseLevel(cfg.Logging.Level)
	closeFn := func() error { return nil }

	w := fallback
	if w == nil {
		w = io.Discard
	}
	if path := cfg.LogFile(); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, closeFn, err
		}
		w = f
		closeFn = f.Close
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	return logger, closeFn, nil
}

// DiscardLogger stands in when a caller passes no logger.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
