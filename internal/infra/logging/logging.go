package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a JSON logger at level tagged with the service name.
func New(w io.Writer, level slog.Level, service string) *slog.Logger {
	return slog.New(
		slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}),
	).With("service", service)
}

// SetupJSON sets slog's default logger to use JSON output on stdout at the
// given level.
func SetupJSON(level slog.Level, service string) {
	slog.SetDefault(New(os.Stdout, level, service))
}
