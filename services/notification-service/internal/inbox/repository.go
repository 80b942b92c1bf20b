// Package inbox deduplicates consumed events by event id.
package inbox

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/slaurent/cliniquerdv/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record returns false when the event was already processed. The primary key
// on event_id does the dedup; a unique violation means a redelivery.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, nil
	}
	return false, err
}
