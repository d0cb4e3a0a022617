// Package observability sets up diagnostic logging and error reporting.
package observability

import (
	"io"
	"log/slog"
)

// NewLogger returns a text logger on w at Info, or Debug when verbose.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetupLogging installs the logger as slog's default and returns it.
func SetupLogging(w io.Writer, verbose bool) *slog.Logger {
	logger := NewLogger(w, verbose)
	slog.SetDefault(logger)
	return logger
}
