package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskboard/task-events-service/internal/audit"
)

// DeadLetterStore keeps envelopes that failed validation, with their
// transport position, so a stalled partition never blocks on them and
// an operator can replay or discard them later.
type DeadLetterStore struct {
	db *pgxpool.Pool
}

func NewDeadLetterStore(db *pgxpool.Pool) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

func (s *DeadLetterStore) Record(ctx context.Context, dl *audit.DeadLetter) error {
	query := `
		INSERT INTO dead_letter_events
			(event_id, topic, partition, stream_offset, reason, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.Exec(ctx, query,
		nullable(dl.EventID),
		dl.Topic,
		dl.Partition,
		dl.Offset,
		dl.Reason,
		dl.Payload,
		dl.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("dead-letter store: insert: %w", mapError(err))
	}
	return nil
}
