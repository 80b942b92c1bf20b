package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSlotTaken is returned when an insert collides with the active-slot
	// unique index.
	ErrSlotTaken = errors.New("slot already taken")

	// ErrDuplicate is returned for any other unique violation.
	ErrDuplicate = errors.New("duplicate")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
