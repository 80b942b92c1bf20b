// Package booking implements slot lookup, appointment creation and
// cancellation for the clinic.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/availability"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/storage"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Store is the persistence surface the booking service needs. The postgres
// implementation lives in internal/storage; tests substitute a fake.
type Store interface {
	PractitionerByID(ctx context.Context, id int64) (model.Practitioner, error)
	WorkingHoursFor(ctx context.Context, practitionerID int64, weekday time.Weekday) (model.WorkingHours, error)
	BookedStarts(ctx context.Context, practitionerID int64, from, to time.Time) ([]time.Time, error)
	CreateConfirmed(ctx context.Context, draft model.AppointmentDraft) (model.Appointment, error)
	AppointmentByID(ctx context.Context, id int64) (model.Appointment, error)
	MarkCancelled(ctx context.Context, id int64) (model.Appointment, error)
	AccountByPhone(ctx context.Context, phone string) (model.Account, error)
	UpcomingForPatient(ctx context.Context, patientID int64, from time.Time) ([]model.Appointment, error)
}

// Service coordinates the availability calculator and the store.
type Service struct {
	store Store
	log   *slog.Logger
	loc   *time.Location
	now   func() time.Time
}

func New(store Store, logger *slog.Logger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: store, log: logger, loc: loc, now: time.Now}
}

// SetClock overrides the service clock, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SlotsResult is one day of availability for a practitioner.
type SlotsResult struct {
	Practitioner model.Practitioner
	Date         time.Time
	Times        []time.Time
	Note         string
}

// Slots returns the free start times for a practitioner on a date.
func (s *Service) Slots(ctx context.Context, practitionerID int64, date string) (SlotsResult, error) {
	day, err := time.ParseInLocation(dateLayout, date, s.loc)
	if err != nil {
		return SlotsResult{}, ErrInvalidDateFormat
	}
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	if day.Before(today) {
		return SlotsResult{}, ErrPastDateRejected
	}

	prac, err := s.store.PractitionerByID(ctx, practitionerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return SlotsResult{}, ErrPractitionerNotFound
		}
		return SlotsResult{}, err
	}
	res := SlotsResult{Practitioner: prac, Date: day}
	if !prac.IsAvailable {
		res.Note = "practitioner is not currently taking appointments"
		return res, nil
	}

	wh, err := s.store.WorkingHoursFor(ctx, prac.ID, day.Weekday())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			res.Note = "practitioner does not work on this day"
			return res, nil
		}
		return SlotsResult{}, err
	}
	if !wh.IsActive {
		res.Note = "practitioner does not work on this day"
		return res, nil
	}

	booked, err := s.store.BookedStarts(ctx, prac.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return SlotsResult{}, err
	}
	// starts_at is a wall-clock TIMESTAMP but pgx scans it tagged UTC.
	// Rebuild each value in the clinic location so exclusion matches the
	// grid candidates, which carry s.loc.
	for i, b := range booked {
		booked[i] = time.Date(b.Year(), b.Month(), b.Day(), b.Hour(), b.Minute(), b.Second(), 0, s.loc)
	}

	win := availability.Window{Start: wh.Start(day), End: wh.End(day)}
	res.Times = availability.StartTimes(win, time.Duration(prac.ConsultMinutes)*time.Minute, booked, now)
	if len(res.Times) == 0 && res.Note == "" {
		res.Note = "no slots left on this day"
	}
	return res, nil
}

// BookRequest is a public booking submission.
type BookRequest struct {
	PractitionerID int64
	Date           string
	Time           string
	PatientName    string
	PatientPhone   string
	PatientEmail   string
	Reason         string
}

// Book validates the requested slot and persists a confirmed appointment.
// The free-slot check here is only a fast path. The store enforces the
// one-active-appointment-per-slot rule, so a concurrent booking of the same
// slot loses with ErrSlotAlreadyTaken rather than double booking.
func (s *Service) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	day, err := time.ParseInLocation(dateLayout, req.Date, s.loc)
	if err != nil {
		return model.Appointment{}, ErrInvalidDateFormat
	}
	clock, err := time.Parse(timeLayout, req.Time)
	if err != nil {
		return model.Appointment{}, ErrInvalidTimeFormat
	}
	startsAt := day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)
	if !startsAt.After(s.now().In(s.loc)) {
		return model.Appointment{}, ErrPastDateRejected
	}

	slots, err := s.Slots(ctx, req.PractitionerID, req.Date)
	if err != nil {
		return model.Appointment{}, err
	}
	if !containsTime(slots.Times, startsAt) {
		return model.Appointment{}, ErrSlotAlreadyTaken
	}

	appt, err := s.store.CreateConfirmed(ctx, model.AppointmentDraft{
		PractitionerID: req.PractitionerID,
		StartsAt:       startsAt,
		PatientName:    req.PatientName,
		PatientPhone:   req.PatientPhone,
		PatientEmail:   req.PatientEmail,
		Reason:         req.Reason,
	})
	if err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			return model.Appointment{}, ErrSlotAlreadyTaken
		}
		return model.Appointment{}, err
	}
	s.log.InfoContext(ctx, "appointment booked",
		"appointment_id", appt.ID,
		"reference", appt.Reference,
		"practitioner_id", appt.PractitionerID,
		"starts_at", appt.StartsAt)
	return appt, nil
}

// Cancel marks an appointment cancelled. Cancelling twice fails with
// ErrAlreadyCancelled; completed appointments cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id int64) (model.Appointment, error) {
	appt, err := s.store.AppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Appointment{}, ErrAppointmentNotFound
		}
		return model.Appointment{}, err
	}
	switch appt.Status {
	case model.StatusCancelled:
		return model.Appointment{}, ErrAlreadyCancelled
	case model.StatusCompleted:
		return model.Appointment{}, ErrAppointmentCompleted
	}

	cancelled, err := s.store.MarkCancelled(ctx, id)
	if err != nil {
		// Lost a race with another cancel between the read and the update.
		if errors.Is(err, storage.ErrNotFound) {
			return model.Appointment{}, ErrAlreadyCancelled
		}
		return model.Appointment{}, err
	}
	s.log.InfoContext(ctx, "appointment cancelled", "appointment_id", id, "reference", cancelled.Reference)
	return cancelled, nil
}

// ListUpcoming returns a patient's future appointments, looked up by phone.
func (s *Service) ListUpcoming(ctx context.Context, phone string) ([]model.Appointment, error) {
	account, err := s.store.AccountByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoAccountFound
		}
		return nil, err
	}
	return s.store.UpcomingForPatient(ctx, account.ID, s.now().In(s.loc))
}

func containsTime(ts []time.Time, t time.Time) bool {
	for _, c := range ts {
		if c.Equal(t) {
			return true
		}
	}
	return false
}
