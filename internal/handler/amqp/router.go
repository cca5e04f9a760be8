package amqp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/taskboard/task-events-service/config"
	"github.com/taskboard/task-events-service/internal/adapter/pubsub"
	"github.com/taskboard/task-events-service/internal/audit"
	"github.com/taskboard/task-events-service/internal/domain/event"
	"github.com/taskboard/task-events-service/internal/domain/registry"
)

// EventHandler consumes the task-event stream for the audit trail and
// the task-update stream for live fan-out.
type EventHandler struct {
	processor   *audit.Processor
	hub         registry.Hubber
	deadLetters audit.DeadLetterSink
	logger      *slog.Logger
	dispatcher  pubsub.EventDispatcher
}

func NewEventHandler(processor *audit.Processor, hub registry.Hubber, deadLetters audit.DeadLetterSink, logger *slog.Logger, dispatcher pubsub.EventDispatcher) *EventHandler {
	return &EventHandler{processor, hub, deadLetters, logger, dispatcher}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{}, logger)
}

// SubscriberFactory yields a subscriber participating in the named
// consumer group. Satisfied by the AMQP adapter in production and by
// in-process pub/sub in tests.
type SubscriberFactory interface {
	Build(group string) (message.Subscriber, error)
}

// RegisterHandlers wires the consumer pipeline. The audit handlers
// share the configured consumer group, so instances divide the stream
// and redeliveries after a rebalance are absorbed by the idempotent
// sink. The fan-out handler uses a per-instance group instead: every
// gateway node must see every update to serve its own connections.
func (h *EventHandler) RegisterHandlers(cfg *config.Config, router *message.Router, subs SubscriberFactory) error {
	poison, err := middleware.PoisonQueue(h.dispatcher.Publisher(), cfg.Broker.PoisonTopic)
	if err != nil {
		return fmt.Errorf("amqp: poison queue setup: %w", err)
	}

	instanceGroup := fmt.Sprintf("gateway.%s", uuid.NewString()[:8])

	configs := []struct {
		name    string
		topic   string
		group   string
		handler message.NoPublishHandlerFunc
	}{
		{"on_task_event", event.TopicTaskEvents, cfg.Broker.ConsumerGroup, h.bind(h.OnTaskEventV1)},
		{"on_reminder_event", event.TopicReminderEvents, cfg.Broker.ConsumerGroup, h.bind(h.OnReminderEventV1)},
		{"on_task_update", event.TopicTaskUpdates, instanceGroup, h.bind(h.OnTaskUpdateV1)},
	}

	for _, c := range configs {
		sub, err := subs.Build(c.group)
		if err != nil {
			return err
		}

		// First-listed middleware is outermost. Poison must wrap Retry:
		// that way a failing delivery exhausts its backoff attempts
		// inside Retry first, and only the final error reaches the
		// poison queue. The reverse order would poison on the first
		// transient failure and ack it.
		router.AddNoPublisherHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			CorrelationMiddleware,
			LoggingMiddleware(h.logger),
			poison,
			NewRetryMiddleware(cfg.Audit.MaxRetries).Middleware,
			middleware.Timeout(30*time.Second),
		)
	}

	h.logger.Info("consumer pipeline ready",
		"group", cfg.Broker.ConsumerGroup,
		"poison_topic", cfg.Broker.PoisonTopic,
	)
	return nil
}
