package common

import (
	"io"
	"log/slog"
)

// NewLogger builds the JSON logger used by every command and installs it as
// the slog default.
func NewLogger(w io.Writer, cfg LogConfig) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return logger
}
