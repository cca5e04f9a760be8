package amqp

import (
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
)

// CorrelationMiddleware guarantees a correlation_id on every delivery
// so log lines across the pipeline can be stitched together.
func CorrelationMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if msg.Metadata.Get("correlation_id") == "" {
			msg.Metadata.Set("correlation_id", uuid.NewString())
		}
		return h(msg)
	}
}

// LoggingMiddleware records outcome and latency per delivery.
func LoggingMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := h(msg)

			logger.Debug("delivery handled",
				"msg_id", msg.UUID,
				"correlation_id", msg.Metadata.Get("correlation_id"),
				"duration_ms", time.Since(start).Milliseconds(),
				"success", err == nil,
			)
			return msgs, err
		}
	}
}

// NewRetryMiddleware paces redelivery of nacked messages with
// exponential backoff before the poison queue takes over.
func NewRetryMiddleware(maxRetries int) middleware.Retry {
	return middleware.Retry{
		MaxRetries:      maxRetries,
		InitialInterval: 2 * time.Second,
		MaxInterval:     15 * time.Second,
		Multiplier:      2.0,
	}
}
