// Package storage is the postgres persistence layer for the clinic API.
package storage

import (
	"github.com/slaurent/cliniquerdv/libs/db"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/outbox"
)

// Store groups all repositories over one connection pool. Writes that emit
// domain events share a transaction with the outbox insert.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func New(pool *db.Pool, ob *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: ob}
}
