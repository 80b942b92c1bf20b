package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
)

const accountColumns = `id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(password_hash, ''), role, is_active, created_at`

func scanAccount(row pgx.Row) (model.Account, error) {
	var acc model.Account
	err := row.Scan(&acc.ID, &acc.Name, &acc.Email, &acc.Phone, &acc.PasswordHash, &acc.Role, &acc.IsActive, &acc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, err
	}
	return acc, nil
}

func (s *Store) AccountByID(ctx context.Context, id int64) (model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1 AND is_active`, email))
}

func (s *Store) AccountByPhone(ctx context.Context, phone string) (model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE phone = $1 AND is_active`, phone))
}

// upsertPatient finds or creates the patient account for a booking in one
// statement, so two simultaneous first-time bookings with the same phone
// cannot create duplicate accounts.
func (s *Store) upsertPatient(ctx context.Context, tx pgx.Tx, name, phone, email string) (model.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `
		INSERT INTO accounts (name, phone, email, role)
		VALUES ($1, $2, NULLIF($3, ''), 'patient')
		ON CONFLICT (phone) DO UPDATE
		SET email = COALESCE(accounts.email, NULLIF(EXCLUDED.email, ''))
		RETURNING `+accountColumns, name, phone, email))
}

// EnsureStaffAccount creates a staff login if it does not exist yet. It is
// called at startup for the admin and secretary accounts.
func (s *Store) EnsureStaffAccount(ctx context.Context, name, email, passwordHash, role string) (model.Account, error) {
	acc, err := scanAccount(s.pool.QueryRow(ctx, `
		INSERT INTO accounts (name, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING `+accountColumns, name, email, passwordHash, role))
	if errors.Is(err, ErrNotFound) {
		return s.AccountByEmail(ctx, email)
	}
	return acc, err
}

// SetPasswordHash attaches credentials to an existing account, used when a
// practitioner account seeded without a login gets one.
func (s *Store) SetPasswordHash(ctx context.Context, accountID int64, hash string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE accounts SET password_hash = $2 WHERE id = $1`, accountID, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}
