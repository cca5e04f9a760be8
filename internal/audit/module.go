package audit

import (
	"log/slog"

	"github.com/taskboard/task-events-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(
		func(sink Sink, deadLetters DeadLetterSink, logger *slog.Logger, cfg *config.Config) (*Processor, error) {
			return NewProcessor(sink, deadLetters, logger, cfg.Audit.DedupCacheSize)
		},
	),
)
