// Package logging configures the process-wide slog default.
package logging

import (
	"io"
	"log/slog"
)

// Setup installs a text handler at the chosen level as the slog default.
func Setup(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})))
}
