// Package storage persists the notification delivery log.
package storage

import (
	"context"

	"github.com/slaurent/cliniquerdv/libs/db"
)

type Notification struct {
	AccountID int64
	Channel   string
	Recipient string
	Subject   string
	Body      string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert records a pending delivery and returns its id.
func (r *Repository) Insert(ctx context.Context, n Notification) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (account_id, channel, recipient, subject, body, status)
		VALUES (NULLIF($1, 0), $2, $3, $4, $5, 'pending')
		RETURNING id
	`, n.AccountID, n.Channel, n.Recipient, n.Subject, n.Body).Scan(&id)
	return id, err
}

func (r *Repository) MarkSent(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET status = 'sent', sent_at = now() WHERE id = $1
	`, id)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET status = 'failed', error = $2 WHERE id = $1
	`, id, reason)
	return err
}
