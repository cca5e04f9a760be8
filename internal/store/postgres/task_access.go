package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskAccessStore answers ownership questions against the tasks table
// the CRUD API maintains. This subsystem only reads it.
type TaskAccessStore struct {
	db *pgxpool.Pool
}

func NewTaskAccessStore(db *pgxpool.Pool) *TaskAccessStore {
	return &TaskAccessStore{db: db}
}

// Owns reports whether taskID belongs to userID. A missing task and
// someone else's task both come back false.
func (s *TaskAccessStore) Owns(ctx context.Context, userID, taskID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1 AND user_id = $2)`

	var owns bool
	if err := s.db.QueryRow(ctx, query, taskID, userID).Scan(&owns); err != nil {
		return false, fmt.Errorf("task access: lookup %s: %w", taskID, mapError(err))
	}
	return owns, nil
}
