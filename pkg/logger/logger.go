package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"sql-runner/configs"
)

// New builds the run logger. With a log file configured, events are written
// to it as JSON lines; otherwise they go to fallback in the configured format.
// The returned closer releases the log file and is never nil.
func New(cfg configs.LogConfig, fallback io.Writer) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.Create(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("create log file: %w", err)
		}
		return slog.New(slog.NewJSONHandler(f, opts)), f.Close, nil
	}

	if fallback == nil {
		fallback = io.Discard
	}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(fallback, opts)
	} else {
		handler = slog.NewTextHandler(fallback, opts)
	}
	return slog.New(handler), func() error { return nil }, nil
}

func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
