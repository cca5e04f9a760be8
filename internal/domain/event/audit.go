package event

import (
	"encoding/json"
	"time"
)

// AuditRecord is the durable row derived from one processed envelope.
// Append-only: created once per successfully processed, non-duplicate
// event, then never mutated or deleted by this service.
type AuditRecord struct {
	EventID       string          `json:"eventId"`
	OperationType OperationType   `json:"operationType"`
	TaskID        string          `json:"taskId,omitempty"`
	UserID        string          `json:"userId"`
	CorrelationID string          `json:"correlationId,omitempty"`
	BeforeState   json.RawMessage `json:"beforeState,omitempty"`
	AfterState    json.RawMessage `json:"afterState,omitempty"`
	Metadata      Metadata        `json:"metadata"`
	RecordedAt    time.Time       `json:"recordedAt"`
}

// DeriveAuditRecord maps an envelope to its audit row. States are taken
// directly from the payload, never fetched independently; AfterState
// honors the afterState-then-task fallback (see Payload.Snapshot).
func DeriveAuditRecord(env *Envelope) *AuditRecord {
	return &AuditRecord{
		EventID:       env.EventID,
		OperationType: OperationFor(env.EventType),
		TaskID:        env.TaskID,
		UserID:        env.UserID,
		CorrelationID: env.CorrelationID,
		BeforeState:   env.Payload.BeforeState,
		AfterState:    env.Payload.Snapshot(),
		Metadata:      env.Metadata,
		RecordedAt:    time.Now().UTC(),
	}
}
