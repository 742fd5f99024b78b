package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger. JSON output goes to log shippers,
// text to terminals. Source annotations are kept out of production; they
// are for debugging sessions, not dashboards.
func NewLogger(cfg *Config) *slog.Logger {
	format := ""
	if cfg != nil {
		format = cfg.LogFormat
	}
	return newLogger(os.Stdout, format, cfg.IsProduction())
}

func newLogger(w io.Writer, format string, production bool) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: !production}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
