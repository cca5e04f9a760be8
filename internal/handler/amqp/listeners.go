package amqp

import (
	"context"

	"github.com/taskboard/task-events-service/internal/audit"
	"github.com/taskboard/task-events-service/internal/domain/event"
)

// OnTaskEventV1 feeds the audit trail. The position is acknowledged by
// the router only after ProcessEvent returns nil, i.e. after the audit
// row committed or the event was classified as unprocessable.
func (h *EventHandler) OnTaskEventV1(ctx context.Context, env *event.Envelope, pos audit.Position) error {
	return h.processor.ProcessEvent(ctx, env, pos)
}

// OnReminderEventV1 audits reminder activity through the same path;
// reminder types take the documented UPDATE fallback.
func (h *EventHandler) OnReminderEventV1(ctx context.Context, env *event.Envelope, pos audit.Position) error {
	return h.processor.ProcessEvent(ctx, env, pos)
}

// OnTaskUpdateV1 pushes live notifications to this instance's
// subscribers. A miss (nobody here watches the task) is not an error,
// and neither is shedding: the live channel is lossy by contract and
// clients reconcile through the CRUD read API.
func (h *EventHandler) OnTaskUpdateV1(ctx context.Context, env *event.Envelope, pos audit.Position) error {
	if err := env.Validate(); err != nil {
		h.logger.WarnContext(ctx, "dropping invalid task update",
			append([]any{"error", err}, pos.LogAttrs()...)...)
		return nil
	}

	if !h.hub.Broadcast(env) {
		h.logger.DebugContext(ctx, "no local subscribers for task update",
			"task_id", env.TaskID, "event_id", env.EventID)
	}
	return nil
}
