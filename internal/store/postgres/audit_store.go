package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskboard/task-events-service/internal/domain/event"
)

// AuditStore persists derived audit records. The table enforces a
// primary key on event_id; inserts go through ON CONFLICT DO NOTHING so
// that redelivery of the same event never produces a second row and
// never errors the caller's retry path.
type AuditStore struct {
	db *pgxpool.Pool
}

func NewAuditStore(db *pgxpool.Pool) *AuditStore {
	return &AuditStore{db: db}
}

// InsertAuditRecord writes one audit row. applied=false means the row
// already existed (duplicate delivery), which is not an error.
func (s *AuditStore) InsertAuditRecord(ctx context.Context, rec *event.AuditRecord) (bool, error) {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return false, fmt.Errorf("audit store: marshal metadata: %w", err)
	}

	query := `
		INSERT INTO audit_records
			(event_id, operation_type, task_id, user_id, correlation_id, before_state, after_state, metadata, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
	`

	tag, err := s.db.Exec(ctx, query,
		rec.EventID,
		string(rec.OperationType),
		nullable(rec.TaskID),
		rec.UserID,
		nullable(rec.CorrelationID),
		rawOrNil(rec.BeforeState),
		rawOrNil(rec.AfterState),
		metadata,
		rec.RecordedAt,
	)
	if err != nil {
		return false, fmt.Errorf("audit store: insert %s: %w", rec.EventID, mapError(err))
	}

	return tag.RowsAffected() > 0, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
