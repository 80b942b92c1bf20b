package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/outbox"
)

const appointmentSelect = `
	SELECT ap.id, ap.practitioner_id, pa.name, p.specialty,
		ap.patient_id, ca.name, COALESCE(ca.phone, ''),
		ap.starts_at, ap.status, ap.reason, ap.notes, ap.created_at
	FROM appointments ap
	JOIN practitioners p ON p.id = ap.practitioner_id
	JOIN accounts pa ON pa.id = p.account_id
	JOIN accounts ca ON ca.id = ap.patient_id
`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ID, &a.PractitionerID, &a.PractitionerName, &a.Specialty,
		&a.PatientID, &a.PatientName, &a.PatientPhone,
		&a.StartsAt, &a.Status, &a.Reason, &a.Notes, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	a.Reference = model.BookingReference(a.ID)
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// BookedStarts lists the start times that block slots in [from, to).
func (s *Store) BookedStarts(ctx context.Context, practitionerID int64, from, to time.Time) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT starts_at
		FROM appointments
		WHERE practitioner_id = $1
			AND status IN ('pending', 'confirmed')
			AND starts_at >= $2
			AND starts_at < $3
	`, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var starts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		starts = append(starts, t)
	}
	return starts, rows.Err()
}

// CreateConfirmed books the slot in one transaction: patient upsert,
// appointment insert and outbox event commit together. The partial unique
// index on active appointments is the authority on slot ownership; a
// concurrent insert for the same slot fails here with ErrSlotTaken.
func (s *Store) CreateConfirmed(ctx context.Context, draft model.AppointmentDraft) (model.Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	patient, err := s.upsertPatient(ctx, tx, draft.PatientName, draft.PatientPhone, draft.PatientEmail)
	if err != nil {
		return model.Appointment{}, err
	}

	appt := model.Appointment{
		PractitionerID: draft.PractitionerID,
		PatientID:      patient.ID,
		PatientName:    patient.Name,
		PatientPhone:   patient.Phone,
		StartsAt:       draft.StartsAt,
		Status:         model.StatusConfirmed,
		Reason:         draft.Reason,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (practitioner_id, patient_id, starts_at, status, reason)
		VALUES ($1, $2, $3, 'confirmed', $4)
		RETURNING id, created_at
	`, draft.PractitionerID, patient.ID, draft.StartsAt, draft.Reason).Scan(&appt.ID, &appt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "appointments_active_slot_idx") {
			return model.Appointment{}, ErrSlotTaken
		}
		return model.Appointment{}, err
	}
	appt.Reference = model.BookingReference(appt.ID)

	err = tx.QueryRow(ctx, `
		SELECT a.name, p.specialty
		FROM practitioners p
		JOIN accounts a ON a.id = p.account_id
		WHERE p.id = $1
	`, draft.PractitionerID).Scan(&appt.PractitionerName, &appt.Specialty)
	if err != nil {
		return model.Appointment{}, err
	}

	evt, err := outbox.AppointmentBooked(appt)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Store) AppointmentByID(ctx context.Context, id int64) (model.Appointment, error) {
	return scanAppointment(s.pool.QueryRow(ctx, appointmentSelect+` WHERE ap.id = $1`, id))
}

// MarkCancelled flips an active appointment to cancelled and records the
// event. The status guard in the UPDATE makes concurrent cancels settle on
// exactly one winner.
func (s *Store) MarkCancelled(ctx context.Context, id int64) (model.Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var updated int64
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled'
		WHERE id = $1 AND status IN ('pending', 'confirmed')
		RETURNING id
	`, id).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}

	appt, err := scanAppointment(tx.QueryRow(ctx, appointmentSelect+` WHERE ap.id = $1`, id))
	if err != nil {
		return model.Appointment{}, err
	}

	evt, err := outbox.AppointmentCancelled(appt)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Store) UpcomingForPatient(ctx context.Context, patientID int64, from time.Time) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, appointmentSelect+`
		WHERE ap.patient_id = $1
			AND ap.status IN ('pending', 'confirmed')
			AND ap.starts_at >= $2
		ORDER BY ap.starts_at
	`, patientID, from)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// AppointmentFilter narrows the staff appointment listing. Zero values mean
// no filtering on that field.
type AppointmentFilter struct {
	Status string
	Day    time.Time
}

func (s *Store) ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	query := appointmentSelect + ` WHERE ($1 = '' OR ap.status = $1)`
	args := []any{f.Status}
	if !f.Day.IsZero() {
		query += ` AND ap.starts_at >= $2 AND ap.starts_at < $3`
		args = append(args, f.Day, f.Day.AddDate(0, 0, 1))
	}
	query += ` ORDER BY ap.starts_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *Store) AppointmentsForPractitioner(ctx context.Context, practitionerID int64, from time.Time) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, appointmentSelect+`
		WHERE ap.practitioner_id = $1 AND ap.starts_at >= $2
		ORDER BY ap.starts_at
	`, practitionerID, from)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// UpdateStatus applies a staff status change, optionally replacing the
// notes. Transition validity is checked by the caller.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status, notes string) (model.Appointment, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $2, notes = COALESCE(NULLIF($3, ''), notes)
		WHERE id = $1
	`, id, status, notes)
	if err != nil {
		return model.Appointment{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Appointment{}, ErrNotFound
	}
	return s.AppointmentByID(ctx, id)
}
