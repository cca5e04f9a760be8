package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors surfaced to callers instead of driver specifics.
var (
	ErrNotFound  = errors.New("postgres: not found")
	ErrDuplicate = errors.New("postgres: duplicate key")
)

// PostgreSQL error codes this package cares about.
const (
	uniqueViolationCode = "23505"
)

// mapError translates driver errors to the package sentinels while
// preserving the original for debugging.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
