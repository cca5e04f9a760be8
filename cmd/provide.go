package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/taskboard/task-events-service/config"
	"github.com/taskboard/task-events-service/infra/otel"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// levelVar is shared between the logger and the config watcher so the
// log level can be adjusted at runtime.
var levelVar = new(slog.LevelVar)

func ProvideLogger(cfg *config.Config, telemetry *otel.Telemetry) *slog.Logger {
	levelVar.Set(parseLevel(cfg.Service.LogLevel))

	opts := &slog.HandlerOptions{Level: levelVar}

	var handler slog.Handler
	if cfg.Service.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	if lp := telemetry.LoggerProvider(); lp != nil {
		handler = teeHandler{handlers: []slog.Handler{
			handler,
			otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(lp)),
		}}
	}

	logger := slog.New(handler).With(
		"service", cfg.Service.Name,
		"version", version,
	)
	slog.SetDefault(logger)
	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// teeHandler duplicates records to every wrapped handler. Used to keep
// stdout logging alongside OTLP export.
type teeHandler struct {
	handlers []slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return teeHandler{handlers: next}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithGroup(name)
	}
	return teeHandler{handlers: next}
}
