// Package infrastructure wires the ambient concerns: structured logging
// with a per-run id, OpenTelemetry tracing and the Prometheus-backed
// metrics the pipeline writes out at the end of a run.
package infrastructure

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"tippanel/internal/config"
)

// InitializeLogger builds the slog logger from config, writing to out. The
// handler injects the run id from context into every record.
func InitializeLogger(cfg config.LoggingConfig, out io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	logger := slog.New(&runHandler{Handler: handler})
	slog.SetDefault(logger)
	return logger
}

// runHandler wraps a slog.Handler to stamp records with the run id.
type runHandler struct {
	slog.Handler
}

func (h *runHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RunIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("run_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *runHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &runHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *runHandler) WithGroup(name string) slog.Handler {
	return &runHandler{Handler: h.Handler.WithGroup(name)}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
