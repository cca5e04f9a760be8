package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the closed enumeration of event kinds accepted on the bus.
// Producers must publish one of these values; anything else fails
// validation before transport.
type Type string

const (
	TaskCreated   Type = "task.created"
	TaskUpdated   Type = "task.updated"
	TaskDeleted   Type = "task.deleted"
	TaskCompleted Type = "task.completed"
	TaskRestored  Type = "task.restored"

	ReminderCreated   Type = "reminder.created"
	ReminderTriggered Type = "reminder.triggered"
	ReminderCancelled Type = "reminder.cancelled"

	AuditRecorded Type = "audit.recorded"
)

// ------------------- TOPICS -------------------
const (
	TopicTaskEvents     = "task-events"
	TopicTaskUpdates    = "task-updates"
	TopicReminderEvents = "reminder-events"
	TopicAuditLog       = "audit-log"
)

// EnvelopeVersion is the single supported envelope schema version.
const EnvelopeVersion = "1"

var knownTypes = map[Type]struct{}{
	TaskCreated:       {},
	TaskUpdated:       {},
	TaskDeleted:       {},
	TaskCompleted:     {},
	TaskRestored:      {},
	ReminderCreated:   {},
	ReminderTriggered: {},
	ReminderCancelled: {},
	AuditRecorded:     {},
}

// IsKnown reports membership in the closed event-type set.
func (t Type) IsKnown() bool {
	_, ok := knownTypes[t]
	return ok
}

// IsTaskEvent reports whether the type carries a task mutation and
// therefore requires a taskId on the envelope.
func (t Type) IsTaskEvent() bool {
	switch t {
	case TaskCreated, TaskUpdated, TaskDeleted, TaskCompleted, TaskRestored:
		return true
	}
	return false
}

// TopicFor routes an event type to its transport topic. Pure and total:
// every member of the closed set maps to exactly one topic.
func TopicFor(t Type) string {
	switch t {
	case TaskCreated, TaskUpdated, TaskDeleted, TaskCompleted, TaskRestored:
		return TopicTaskEvents
	case ReminderCreated, ReminderTriggered, ReminderCancelled:
		return TopicReminderEvents
	case AuditRecorded:
		return TopicAuditLog
	default:
		return TopicTaskEvents
	}
}

// Metadata carries envelope provenance.
type Metadata struct {
	SourceService string `json:"sourceService"`
	Version       string `json:"version"`
}

// Payload is the variant part of the envelope. Exactly which fields are
// populated depends on the event type: task.created carries a full
// snapshot under Task, task.updated carries AfterState (and optionally
// BeforeState and Changes), reminder events carry Reminder.
type Payload struct {
	Task        json.RawMessage `json:"task,omitempty"`
	BeforeState json.RawMessage `json:"beforeState,omitempty"`
	AfterState  json.RawMessage `json:"afterState,omitempty"`
	Changes     map[string]any  `json:"changes,omitempty"`
	Reminder    json.RawMessage `json:"reminder,omitempty"`
}

// Snapshot returns the post-event state of the entity. AfterState wins
// when present; task.created events carry the full snapshot under the
// task field instead, so both must be checked.
func (p Payload) Snapshot() json.RawMessage {
	if len(p.AfterState) > 0 {
		return p.AfterState
	}
	if len(p.Task) > 0 {
		return p.Task
	}
	return nil
}

// Envelope is the canonical wire-level event record, immutable once
// published. EventID is unique for the lifetime of the system; the same
// envelope may be delivered more than once but must be applied at most
// once downstream.
type Envelope struct {
	EventID       string    `json:"eventId"`
	EventType     Type      `json:"eventType"`
	Timestamp     time.Time `json:"timestamp"`
	UserID        string    `json:"userId"`
	TaskID        string    `json:"taskId,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Metadata      Metadata  `json:"metadata"`
	Payload       Payload   `json:"payload"`
}

var (
	ErrMissingEventID   = errors.New("event: missing eventId")
	ErrMissingUserID    = errors.New("event: missing userId")
	ErrMissingTaskID    = errors.New("event: missing taskId for task event")
	ErrMissingTimestamp = errors.New("event: missing timestamp")
	ErrUnknownEventType = errors.New("event: eventType outside the closed set")
)

// NewEnvelope constructs a valid envelope at publish time. The eventId
// and timestamp are assigned here; correlationId defaults to the
// eventId so a fresh chain starts with its own root.
func NewEnvelope(t Type, userID, taskID, sourceService string, payload Payload) (*Envelope, error) {
	id := uuid.NewString()
	env := &Envelope{
		EventID:       id,
		EventType:     t,
		Timestamp:     time.Now().UTC(),
		UserID:        userID,
		TaskID:        taskID,
		CorrelationID: id,
		Metadata: Metadata{
			SourceService: sourceService,
			Version:       EnvelopeVersion,
		},
		Payload: payload,
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// Validate enforces the producer contract on required envelope fields.
func (e *Envelope) Validate() error {
	if e.EventID == "" {
		return ErrMissingEventID
	}
	if !e.EventType.IsKnown() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.EventType)
	}
	if e.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if e.UserID == "" {
		return ErrMissingUserID
	}
	if e.EventType.IsTaskEvent() && e.TaskID == "" {
		return ErrMissingTaskID
	}
	return nil
}

// Topic returns the transport topic this envelope routes to.
func (e *Envelope) Topic() string {
	return TopicFor(e.EventType)
}
