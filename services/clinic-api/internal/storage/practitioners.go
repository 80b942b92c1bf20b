package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
)

const practitionerColumns = `p.id, p.account_id, a.name, p.specialty, p.description, p.consult_minutes, p.is_available`

func scanPractitioner(row pgx.Row) (model.Practitioner, error) {
	var p model.Practitioner
	err := row.Scan(&p.ID, &p.AccountID, &p.Name, &p.Specialty, &p.Description, &p.ConsultMinutes, &p.IsAvailable)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Practitioner{}, ErrNotFound
	}
	if err != nil {
		return model.Practitioner{}, err
	}
	return p, nil
}

// ListPractitioners returns available practitioners, optionally filtered by
// a case-insensitive specialty substring.
func (s *Store) ListPractitioners(ctx context.Context, specialty string) ([]model.Practitioner, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+practitionerColumns+`
		FROM practitioners p
		JOIN accounts a ON a.id = p.account_id
		WHERE p.is_available
			AND ($1 = '' OR p.specialty ILIKE '%' || $1 || '%')
		ORDER BY a.name
	`, specialty)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pracs []model.Practitioner
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, err
		}
		pracs = append(pracs, p)
	}
	return pracs, rows.Err()
}

func (s *Store) PractitionerByID(ctx context.Context, id int64) (model.Practitioner, error) {
	return scanPractitioner(s.pool.QueryRow(ctx, `
		SELECT `+practitionerColumns+`
		FROM practitioners p
		JOIN accounts a ON a.id = p.account_id
		WHERE p.id = $1
	`, id))
}

func (s *Store) PractitionerByAccountID(ctx context.Context, accountID int64) (model.Practitioner, error) {
	return scanPractitioner(s.pool.QueryRow(ctx, `
		SELECT `+practitionerColumns+`
		FROM practitioners p
		JOIN accounts a ON a.id = p.account_id
		WHERE p.account_id = $1
	`, accountID))
}

func (s *Store) WorkingHoursFor(ctx context.Context, practitionerID int64, weekday time.Weekday) (model.WorkingHours, error) {
	var wh model.WorkingHours
	var wd int
	err := s.pool.QueryRow(ctx, `
		SELECT practitioner_id, weekday, start_minute, end_minute, is_active
		FROM working_hours
		WHERE practitioner_id = $1 AND weekday = $2
	`, practitionerID, int(weekday)).Scan(&wh.PractitionerID, &wd, &wh.StartMinute, &wh.EndMinute, &wh.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkingHours{}, ErrNotFound
	}
	if err != nil {
		return model.WorkingHours{}, err
	}
	wh.Weekday = time.Weekday(wd)
	return wh, nil
}

// WeeklyHours returns all active windows for a practitioner, for the
// practitioner detail view.
func (s *Store) WeeklyHours(ctx context.Context, practitionerID int64) ([]model.WorkingHours, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT practitioner_id, weekday, start_minute, end_minute, is_active
		FROM working_hours
		WHERE practitioner_id = $1 AND is_active
		ORDER BY weekday
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []model.WorkingHours
	for rows.Next() {
		var wh model.WorkingHours
		var wd int
		if err := rows.Scan(&wh.PractitionerID, &wd, &wh.StartMinute, &wh.EndMinute, &wh.IsActive); err != nil {
			return nil, err
		}
		wh.Weekday = time.Weekday(wd)
		hours = append(hours, wh)
	}
	return hours, rows.Err()
}
