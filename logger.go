package main

import (
	"io"
	"log/slog"
)

// NewLogger returns a structured slog.Logger writing text records to w.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}
