package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger: structured JSON on stdout. Services accept
// a *slog.Logger option so tests can pass a discarding logger instead.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
