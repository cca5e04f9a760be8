package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/taskboard/task-events-service/internal/audit"
	"github.com/taskboard/task-events-service/internal/domain/event"
)

// envelopeHandler is the functional signature for domain logic: one
// delivered envelope plus its transport position.
type envelopeHandler func(ctx context.Context, env *event.Envelope, pos audit.Position) error

// bind bridges Watermill deliveries to domain handlers: position
// extraction, decode-failure dead-lettering and panic recovery.
//
// Ack discipline: a nil return acknowledges the delivery, so it is only
// returned after the handler has durably dealt with the event
// (commit-after-write). Errors propagate to the retry middleware.
func (h *EventHandler) bind(fn envelopeHandler) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("handler panic recovered",
					"panic", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
				err = fmt.Errorf("amqp: handler panic: %v", r)
			}
		}()

		pos := positionOf(msg)

		env := new(event.Envelope)
		if decodeErr := json.Unmarshal(msg.Payload, env); decodeErr != nil {
			// Undecodable payloads can never succeed; dead-letter with
			// the raw bytes and acknowledge so the queue keeps moving.
			dl := &audit.DeadLetter{
				Topic:      pos.Topic,
				Partition:  pos.Partition,
				Offset:     pos.Offset,
				Reason:     fmt.Sprintf("decode: %v", decodeErr),
				Payload:    msg.Payload,
				ReceivedAt: time.Now().UTC(),
			}
			if recErr := h.deadLetters.Record(msg.Context(), dl); recErr != nil {
				return fmt.Errorf("amqp: dead-letter undecodable message %s: %w", msg.UUID, recErr)
			}
			h.logger.Warn("undecodable payload dead-lettered",
				"msg_id", msg.UUID, "topic", pos.Topic, "error", decodeErr)
			return nil
		}

		return fn(msg.Context(), env, pos)
	}
}

// positionOf extracts the delivery position for diagnostics. Partition
// and offset are producer-stamped metadata; brokers that do not expose
// them leave both at zero.
func positionOf(msg *message.Message) audit.Position {
	topic := message.SubscribeTopicFromCtx(msg.Context())
	pos := audit.Position{
		Topic:     topic,
		MessageID: msg.UUID,
	}
	if raw := msg.Metadata.Get("partition"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 32); err == nil {
			pos.Partition = int32(v)
		}
	}
	if raw := msg.Metadata.Get("offset"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			pos.Offset = v
		}
	}
	return pos
}
