package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/storage"
)

type fakeStore struct {
	pracs     map[int64]model.Practitioner
	hours     map[int64]map[time.Weekday]model.WorkingHours
	appts     map[int64]model.Appointment
	accounts  map[string]model.Account
	createErr error
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pracs:    map[int64]model.Practitioner{},
		hours:    map[int64]map[time.Weekday]model.WorkingHours{},
		appts:    map[int64]model.Appointment{},
		accounts: map[string]model.Account{},
	}
}

func (f *fakeStore) PractitionerByID(_ context.Context, id int64) (model.Practitioner, error) {
	p, ok := f.pracs[id]
	if !ok {
		return model.Practitioner{}, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) WorkingHoursFor(_ context.Context, id int64, wd time.Weekday) (model.WorkingHours, error) {
	wh, ok := f.hours[id][wd]
	if !ok {
		return model.WorkingHours{}, storage.ErrNotFound
	}
	return wh, nil
}

func (f *fakeStore) BookedStarts(_ context.Context, id int64, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, a := range f.appts {
		if a.PractitionerID != id || a.Status == model.StatusCancelled || a.Status == model.StatusCompleted {
			continue
		}
		if !a.StartsAt.Before(from) && a.StartsAt.Before(to) {
			out = append(out, a.StartsAt)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateConfirmed(_ context.Context, draft model.AppointmentDraft) (model.Appointment, error) {
	if f.createErr != nil {
		return model.Appointment{}, f.createErr
	}
	for _, a := range f.appts {
		if a.PractitionerID == draft.PractitionerID && a.StartsAt.Equal(draft.StartsAt) &&
			(a.Status == model.StatusPending || a.Status == model.StatusConfirmed) {
			return model.Appointment{}, storage.ErrSlotTaken
		}
	}
	f.nextID++
	appt := model.Appointment{
		ID:             f.nextID,
		Reference:      model.BookingReference(f.nextID),
		PractitionerID: draft.PractitionerID,
		StartsAt:       draft.StartsAt,
		Status:         model.StatusConfirmed,
		PatientName:    draft.PatientName,
		PatientPhone:   draft.PatientPhone,
		Reason:         draft.Reason,
	}
	f.appts[appt.ID] = appt
	return appt, nil
}

func (f *fakeStore) AppointmentByID(_ context.Context, id int64) (model.Appointment, error) {
	a, ok := f.appts[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) MarkCancelled(_ context.Context, id int64) (model.Appointment, error) {
	a, ok := f.appts[id]
	if !ok || (a.Status != model.StatusPending && a.Status != model.StatusConfirmed) {
		return model.Appointment{}, storage.ErrNotFound
	}
	a.Status = model.StatusCancelled
	f.appts[id] = a
	return a, nil
}

func (f *fakeStore) AccountByPhone(_ context.Context, phone string) (model.Account, error) {
	acc, ok := f.accounts[phone]
	if !ok {
		return model.Account{}, storage.ErrNotFound
	}
	return acc, nil
}

func (f *fakeStore) UpcomingForPatient(_ context.Context, patientID int64, from time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appts {
		if a.PatientID == patientID && !a.StartsAt.Before(from) && a.Status != model.StatusCancelled {
			out = append(out, a)
		}
	}
	return out, nil
}

// Monday 2026-09-14. The clock reads 08:00 so the whole working day is ahead.
var testNow = time.Date(2026, time.September, 14, 8, 0, 0, 0, time.UTC)

func newTestService(store *fakeStore) *Service {
	svc := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), time.UTC)
	svc.now = func() time.Time { return testNow }
	return svc
}

func seedPractitioner(f *fakeStore, id int64, minutes int) {
	f.pracs[id] = model.Practitioner{ID: id, Name: "Dr. Martin Dupont", ConsultMinutes: minutes, IsAvailable: true}
	f.hours[id] = map[time.Weekday]model.WorkingHours{}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		f.hours[id][wd] = model.WorkingHours{PractitionerID: id, Weekday: wd, StartMinute: 540, EndMinute: 1020, IsActive: true}
	}
}

func TestSlotsFullDay(t *testing.T) {
	store := newFakeStore()
	seedPractitioner(store, 1, 30)
	svc := newTestService(store)

	res, err := svc.Slots(context.Background(), 1, "2026-09-15")
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(res.Times) != 16 {
		t.Fatalf("slot count = %d, want 16", len(res.Times))
	}
}

func TestSlotsErrors(t *testing.T) {
	store := newFakeStore()
	seedPractitioner(store, 1, 30)
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Slots(ctx, 1, "15/09/2026"); !errors.Is(err, ErrInvalidDateFormat) {
		t.Fatalf("bad date: got %v, want ErrInvalidDateFormat", err)
	}
	if _, err := svc.Slots(ctx, 1, "2026-09-13"); !errors.Is(err, ErrPastDateRejected) {
		t.Fatalf("past date: got %v, want ErrPastDateRejected", err)
	}
	if _, err := svc.Slots(ctx, 99, "2026-09-15"); !errors.Is(err, ErrPractitionerNotFound) {
		t.Fatalf("unknown practitioner: got %v, want ErrPractitionerNotFound", err)
	}
}

func TestSlotsExcludeBookedScannedAsUTC(t *testing.T) {
	// pgx scans TIMESTAMP columns as wall clock tagged UTC regardless of the
	// clinic timezone. The 10:00 booking must still block the 10:00 slot when
	// the service runs clinic-local.
	loc := time.FixedZone("clinic", 2*60*60)
	store := newFakeStore()
	seedPractitioner(store, 1, 30)
	store.appts[1] = model.Appointment{
		ID: 1, PractitionerID: 1, Status: model.StatusConfirmed,
		StartsAt: time.Date(2026, time.September, 15, 10, 0, 0, 0, time.UTC),
	}
	svc := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), loc)
	svc.SetClock(func() time.Time { return time.Date(2026, time.September, 14, 8, 0, 0, 0, loc) })
	ctx := context.Background()

	res, err := svc.Slots(ctx, 1, "2026-09-15")
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(res.Times) != 15 {
		t.Fatalf("slot count = %d, want 15", len(res.Times))
	}
	for _, ts := range res.Times {
		if ts.Format("15:04") == "10:00" {
			t.Fatal("10:00 is booked but still offered")
		}
	}

	_, err = svc.Book(ctx, BookRequest{
		PractitionerID: 1, Date: "2026-09-15", Time: "10:00",
		PatientName: "Autre Patient", PatientPhone: "0611111111",
	})
	if !errors.Is(err, ErrSlotAlreadyTaken) {
		t.Fatalf("booking the taken slot: got %v, want ErrSlotAlreadyTaken", err)
	}
}

func TestSlotsNonWorkingDay(t *testing.T) {
	store := newFakeStore()
	seedPractitioner(store, 1, 30)
	svc := newTestService(store)

	// 2026-09-20 is a Sunday.
	res, err := svc.Slots(context.Background(), 1, "2026-09-20")
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(res.Times) != 0 {
		t.Fatalf("got %d slots on a non-working day", len(res.Times))
	}
	if res.Note == "" {
		t.Fatal("expected an explanatory note for a non-working day")
	}
}

func TestBookAndSecondBookerLoses(t *testing.T) {
	store := newFakeStore()
	seedPractitioner(store, 1, 30)
	svc := newTestService(store)
	ctx := context.Background()

	req := BookRequest{
		PractitionerID: 1,
		Date:           "2026-09-15",
		Time:           "10:00",
		PatientName:    "Jean Dupont",
		PatientPhone:   "0698765432",
		Reason:         "checkup",
	}
	appt, err := svc.Book(ctx, req)
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if appt.Reference != "RDV-0001" {
		t.Fatalf("reference = %q, want RDV-0001", appt.Reference)
	}
	if appt.Status != model.StatusConfirmed {
		t.Fatalf("status = %q, want confirmed", appt.Status)
	}

	req.PatientName = "Autre Patient"
	req.PatientPhone = "0611111111"
	if _, err := svc.Book(ctx, req); !errors.Is(err, ErrSlotAlreadyTaken) {
		t.Fatalf("second booking: got %v, want ErrSlotAlreadyTaken", err)
	}

	// A neighbouring slot is unaffected.
	req.Time = "10:30"
	if _, err := svc.Book(ctx, req); err != nil {
		t.Fatalf("neighbouring slot: %v", err)
	}
}

func TestBookConstraintRace(t *testing.T) {
	store := newFakeStore()
	seedPractitioner(store, 1, 30)
	// The slot looks free at read time but the insert hits the unique index.
	store.createErr = storage.ErrSlotTaken
	svc := newTestService(store)

	_, err := svc.Book(context.Background(), BookRequest{
		PractitionerID: 1, Date: "2026-09-15", Time: "10:00",
		PatientName: "Jean Dupont", PatientPhone: "0698765432",
	})
	if !errors.Is(err, ErrSlotAlreadyTaken) {
		t.Fatalf("got %v, want ErrSlotAlreadyTaken", err)
	}
}

func TestBookValidation(t *testing.T) {
	store := newFakeStore()
	seedPractitioner(store, 1, 30)
	svc := newTestService(store)
	ctx := context.Background()

	cases := []struct {
		name string
		req  BookRequest
		want *Error
	}{
		{"bad date", BookRequest{PractitionerID: 1, Date: "tomorrow", Time: "10:00"}, ErrInvalidDateFormat},
		{"bad time", BookRequest{PractitionerID: 1, Date: "2026-09-15", Time: "10h00"}, ErrInvalidTimeFormat},
		{"past", BookRequest{PractitionerID: 1, Date: "2026-09-14", Time: "07:00"}, ErrPastDateRejected},
		{"unknown practitioner", BookRequest{PractitionerID: 99, Date: "2026-09-15", Time: "10:00"}, ErrPractitionerNotFound},
		{"outside working hours", BookRequest{PractitionerID: 1, Date: "2026-09-15", Time: "08:00"}, ErrSlotAlreadyTaken},
		{"off grid", BookRequest{PractitionerID: 1, Date: "2026-09-15", Time: "10:10"}, ErrSlotAlreadyTaken},
	}
	for _, tc := range cases {
		if _, err := svc.Book(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestCancel(t *testing.T) {
	store := newFakeStore()
	seedPractitioner(store, 1, 30)
	svc := newTestService(store)
	ctx := context.Background()

	appt, err := svc.Book(ctx, BookRequest{
		PractitionerID: 1, Date: "2026-09-15", Time: "10:00",
		PatientName: "Jean Dupont", PatientPhone: "0698765432",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, appt.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", cancelled.Status)
	}

	if _, err := svc.Cancel(ctx, appt.ID); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("second cancel: got %v, want ErrAlreadyCancelled", err)
	}
	if _, err := svc.Cancel(ctx, 999); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("missing appointment: got %v, want ErrAppointmentNotFound", err)
	}

	// The freed slot is bookable again.
	if _, err := svc.Book(ctx, BookRequest{
		PractitionerID: 1, Date: "2026-09-15", Time: "10:00",
		PatientName: "Autre Patient", PatientPhone: "0611111111",
	}); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
}

func TestCancelCompleted(t *testing.T) {
	store := newFakeStore()
	store.appts[7] = model.Appointment{ID: 7, Status: model.StatusCompleted}
	svc := newTestService(store)

	if _, err := svc.Cancel(context.Background(), 7); !errors.Is(err, ErrAppointmentCompleted) {
		t.Fatalf("got %v, want ErrAppointmentCompleted", err)
	}
}

func TestListUpcoming(t *testing.T) {
	store := newFakeStore()
	store.accounts["0698765432"] = model.Account{ID: 5, Phone: "0698765432"}
	store.appts[1] = model.Appointment{ID: 1, PatientID: 5, StartsAt: testNow.AddDate(0, 0, 2), Status: model.StatusConfirmed}
	store.appts[2] = model.Appointment{ID: 2, PatientID: 5, StartsAt: testNow.AddDate(0, 0, -2), Status: model.StatusCompleted}
	// Starting at this exact instant still counts as upcoming.
	store.appts[3] = model.Appointment{ID: 3, PatientID: 5, StartsAt: testNow, Status: model.StatusConfirmed}
	svc := newTestService(store)

	appts, err := svc.ListUpcoming(context.Background(), "0698765432")
	if err != nil {
		t.Fatalf("ListUpcoming: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("got %d appointments, want 2", len(appts))
	}

	if _, err := svc.ListUpcoming(context.Background(), "0600000000"); !errors.Is(err, ErrNoAccountFound) {
		t.Fatalf("unknown phone: got %v, want ErrNoAccountFound", err)
	}
}
