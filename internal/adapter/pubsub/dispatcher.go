package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/taskboard/task-events-service/internal/domain/event"
)

// EventDispatcher is the producer boundary: the contract the CRUD API
// publishes through after a state change, and the one this service
// uses for poison-queue traffic. It keeps callers agnostic of the
// transport implementation.
type EventDispatcher interface {
	Publish(ctx context.Context, env *event.Envelope) error
	Publisher() message.Publisher
}

type eventDispatcher struct {
	publisher message.Publisher
}

func NewEventDispatcher(pub message.Publisher) EventDispatcher {
	return &eventDispatcher{publisher: pub}
}

// Publish validates the envelope and routes it by its event type.
// Validation here is the "fails before transport" arm of the schema
// contract.
func (d *eventDispatcher) Publish(ctx context.Context, env *event.Envelope) error {
	if env == nil {
		return fmt.Errorf("dispatcher: cannot publish nil envelope")
	}
	if err := env.Validate(); err != nil {
		return fmt.Errorf("dispatcher: reject %s: %w", env.EventID, err)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("dispatcher: marshal %s: %w", env.EventID, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_id", env.EventID)
	msg.Metadata.Set("correlation_id", env.CorrelationID)

	topic := env.Topic()
	if err := d.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("dispatcher: publish %s to %s: %w", env.EventID, topic, err)
	}
	return nil
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.publisher
}
