package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/booking"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/storage"
)

var testNow = time.Date(2026, time.September, 14, 8, 0, 0, 0, time.UTC)

type fakeStore struct {
	pracs  map[int64]model.Practitioner
	hours  map[int64]map[time.Weekday]model.WorkingHours
	appts  map[int64]model.Appointment
	nextID int64
}

func newFakeStore() *fakeStore {
	f := &fakeStore{
		pracs: map[int64]model.Practitioner{},
		hours: map[int64]map[time.Weekday]model.WorkingHours{},
		appts: map[int64]model.Appointment{},
	}
	f.pracs[1] = model.Practitioner{ID: 1, Name: "Dr. Martin Dupont", Specialty: "Cardiologie", ConsultMinutes: 30, IsAvailable: true}
	f.hours[1] = map[time.Weekday]model.WorkingHours{}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		f.hours[1][wd] = model.WorkingHours{PractitionerID: 1, Weekday: wd, StartMinute: 540, EndMinute: 1020, IsActive: true}
	}
	return f
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
		if a.PractitionerID == id && (a.Status == model.StatusPending || a.Status == model.StatusConfirmed) &&
			!a.StartsAt.Before(from) && a.StartsAt.Before(to) {
			out = append(out, a.StartsAt)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateConfirmed(_ context.Context, draft model.AppointmentDraft) (model.Appointment, error) {
	for _, a := range f.appts {
		if a.PractitionerID == draft.PractitionerID && a.StartsAt.Equal(draft.StartsAt) &&
			(a.Status == model.StatusPending || a.Status == model.StatusConfirmed) {
			return model.Appointment{}, storage.ErrSlotTaken
		}
	}
	f.nextID++
	appt := model.Appointment{
		ID:               f.nextID,
		Reference:        model.BookingReference(f.nextID),
		PractitionerID:   draft.PractitionerID,
		PractitionerName: f.pracs[draft.PractitionerID].Name,
		Specialty:        f.pracs[draft.PractitionerID].Specialty,
		StartsAt:         draft.StartsAt,
		Status:           model.StatusConfirmed,
		PatientName:      draft.PatientName,
		PatientPhone:     draft.PatientPhone,
		Reason:           draft.Reason,
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
	return model.Account{}, storage.ErrNotFound
}

func (f *fakeStore) UpcomingForPatient(_ context.Context, patientID int64, from time.Time) ([]model.Appointment, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBookingService(store *fakeStore) *booking.Service {
	svc := booking.New(store, testLogger(), time.UTC)
	svc.SetClock(func() time.Time { return testNow })
	return svc
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	return body
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("response has no error object: %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

func newMux(store *fakeStore) *http.ServeMux {
	logger := testLogger()
	svc := newBookingService(store)
	bookingHandler := NewBookingHandler(svc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/bookings", bookingHandler.Create)
	mux.HandleFunc("DELETE /api/bookings/{id}", bookingHandler.Cancel)
	mux.HandleFunc("GET /api/bookings", bookingHandler.ListByPhone)
	return mux
}

func TestCreateBooking(t *testing.T) {
	store := newFakeStore()
	mux := newMux(store)

	payload := `{"practitioner_id":1,"date":"2026-09-15","time":"10:00","patient_name":"Jean Dupont","patient_phone":"0698765432","reason":"checkup"}`
	req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(payload))
	res := httptest.NewRecorder()
	mux.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", res.Code, res.Body.String())
	}
	body := decodeBody(t, res)
	appt, _ := body["appointment"].(map[string]any)
	if appt["reference"] != "RDV-0001" {
		t.Fatalf("reference = %v, want RDV-0001", appt["reference"])
	}

	// Same slot again conflicts.
	req = httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(payload))
	res = httptest.NewRecorder()
	mux.ServeHTTP(res, req)
	if res.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", res.Code)
	}
	if code := errorCode(t, decodeBody(t, res)); code != "SlotAlreadyTaken" {
		t.Fatalf("error code = %q, want SlotAlreadyTaken", code)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	mux := newMux(newFakeStore())
	cases := []struct {
		name       string
		payload    string
		wantStatus int
		wantCode   string
	}{
		{"bad json", `{`, http.StatusBadRequest, "InvalidBody"},
		{"missing fields", `{"practitioner_id":1}`, http.StatusBadRequest, "MissingFields"},
		{"bad date", `{"practitioner_id":1,"date":"demain","time":"10:00","patient_name":"A","patient_phone":"06"}`, http.StatusBadRequest, "InvalidDateFormat"},
		{"bad time", `{"practitioner_id":1,"date":"2026-09-15","time":"10h","patient_name":"A","patient_phone":"06"}`, http.StatusBadRequest, "InvalidTimeFormat"},
		{"past", `{"practitioner_id":1,"date":"2026-09-10","time":"10:00","patient_name":"A","patient_phone":"06"}`, http.StatusBadRequest, "PastDateRejected"},
		{"unknown practitioner", `{"practitioner_id":9,"date":"2026-09-15","time":"10:00","patient_name":"A","patient_phone":"06"}`, http.StatusNotFound, "PractitionerNotFound"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(tc.payload))
		res := httptest.NewRecorder()
		mux.ServeHTTP(res, req)
		if res.Code != tc.wantStatus {
			t.Fatalf("%s: status = %d, want %d", tc.name, res.Code, tc.wantStatus)
		}
		if code := errorCode(t, decodeBody(t, res)); code != tc.wantCode {
			t.Fatalf("%s: error code = %q, want %q", tc.name, code, tc.wantCode)
		}
	}
}

func TestCancelBooking(t *testing.T) {
	store := newFakeStore()
	store.appts[3] = model.Appointment{ID: 3, PractitionerID: 1, StartsAt: testNow.AddDate(0, 0, 1), Status: model.StatusConfirmed}
	mux := newMux(store)

	req := httptest.NewRequest(http.MethodDelete, "/api/bookings/3", nil)
	res := httptest.NewRecorder()
	mux.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", res.Code, res.Body.String())
	}

	// Cancelling twice conflicts.
	req = httptest.NewRequest(http.MethodDelete, "/api/bookings/3", nil)
	res = httptest.NewRecorder()
	mux.ServeHTTP(res, req)
	if res.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", res.Code)
	}
	if code := errorCode(t, decodeBody(t, res)); code != "AlreadyCancelled" {
		t.Fatalf("error code = %q, want AlreadyCancelled", code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/bookings/99", nil)
	res = httptest.NewRecorder()
	mux.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}

func TestListByPhoneNoAccount(t *testing.T) {
	mux := newMux(newFakeStore())
	req := httptest.NewRequest(http.MethodGet, "/api/bookings?phone=0600000000", nil)
	res := httptest.NewRecorder()
	mux.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
	if code := errorCode(t, decodeBody(t, res)); code != "NoAccountFound" {
		t.Fatalf("error code = %q, want NoAccountFound", code)
	}
}

func TestSlotsEndpoint(t *testing.T) {
	store := newFakeStore()
	svc := newBookingService(store)
	h := NewPractitionerHandler(&fakeDirectory{store: store}, svc, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/practitioners/{id}/slots", h.Slots)

	req := httptest.NewRequest(http.MethodGet, "/api/practitioners/1/slots?date=2026-09-15", nil)
	res := httptest.NewRecorder()
	mux.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", res.Code, res.Body.String())
	}
	body := decodeBody(t, res)
	slots, _ := body["slots"].([]any)
	if len(slots) != 16 {
		t.Fatalf("slot count = %d, want 16", len(slots))
	}
	if slots[0] != "09:00" || slots[15] != "16:30" {
		t.Fatalf("slots = %v ... %v, want 09:00 ... 16:30", slots[0], slots[15])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/practitioners/1/slots?date=15-09-2026", nil)
	res = httptest.NewRecorder()
	mux.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
	if code := errorCode(t, decodeBody(t, res)); code != "InvalidDateFormat" {
		t.Fatalf("error code = %q, want InvalidDateFormat", code)
	}
}

type fakeDirectory struct {
	store *fakeStore
}

func (f *fakeDirectory) ListPractitioners(_ context.Context, _ string) ([]model.Practitioner, error) {
	var out []model.Practitioner
	for _, p := range f.store.pracs {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeDirectory) PractitionerByID(ctx context.Context, id int64) (model.Practitioner, error) {
	return f.store.PractitionerByID(ctx, id)
}

func (f *fakeDirectory) WeeklyHours(_ context.Context, id int64) ([]model.WorkingHours, error) {
	var out []model.WorkingHours
	for _, wh := range f.store.hours[id] {
		out = append(out, wh)
	}
	return out, nil
}

type fakeAdminStore struct {
	appts map[int64]model.Appointment
}

func (f *fakeAdminStore) ListAccounts(context.Context) ([]model.Account, error) { return nil, nil }

func (f *fakeAdminStore) ListAppointments(context.Context, storage.AppointmentFilter) ([]model.Appointment, error) {
	return nil, nil
}

func (f *fakeAdminStore) AppointmentByID(_ context.Context, id int64) (model.Appointment, error) {
	a, ok := f.appts[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (f *fakeAdminStore) UpdateStatus(_ context.Context, id int64, status, notes string) (model.Appointment, error) {
	a := f.appts[id]
	a.Status = status
	f.appts[id] = a
	return a, nil
}

func (f *fakeAdminStore) PractitionerByAccountID(context.Context, int64) (model.Practitioner, error) {
	return model.Practitioner{}, storage.ErrNotFound
}

func (f *fakeAdminStore) AppointmentsForPractitioner(context.Context, int64, time.Time) ([]model.Appointment, error) {
	return nil, nil
}

func TestUpdateAppointmentTransitions(t *testing.T) {
	store := &fakeAdminStore{appts: map[int64]model.Appointment{
		1: {ID: 1, Status: model.StatusConfirmed},
		2: {ID: 2, Status: model.StatusCompleted},
	}}
	h := NewAdminHandler(store, nil, testLogger(), time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/admin/appointments/{id}", h.UpdateAppointment)

	// confirmed -> completed is allowed.
	req := httptest.NewRequest(http.MethodPatch, "/api/admin/appointments/1", strings.NewReader(`{"status":"completed"}`))
	res := httptest.NewRecorder()
	mux.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", res.Code, res.Body.String())
	}

	// completed is terminal.
	req = httptest.NewRequest(http.MethodPatch, "/api/admin/appointments/2", strings.NewReader(`{"status":"confirmed"}`))
	res = httptest.NewRecorder()
	mux.ServeHTTP(res, req)
	if res.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", res.Code)
	}
	if code := errorCode(t, decodeBody(t, res)); code != "InvalidTransition" {
		t.Fatalf("error code = %q, want InvalidTransition", code)
	}

	req = httptest.NewRequest(http.MethodPatch, "/api/admin/appointments/1", strings.NewReader(`{"status":"booked"}`))
	res = httptest.NewRecorder()
	mux.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

type fakeAuthStore struct {
	accounts map[string]model.Account
}

func (f *fakeAuthStore) AccountByEmail(_ context.Context, email string) (model.Account, error) {
	a, ok := f.accounts[email]
	if !ok {
		return model.Account{}, storage.ErrNotFound
	}
	return a, nil
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	store := &fakeAuthStore{accounts: map[string]model.Account{
		"admin@clinic.example": {ID: 1, Name: "Admin", Email: "admin@clinic.example", PasswordHash: string(hash), Role: model.RoleAdmin, IsActive: true},
	}}
	h := NewAuthHandler(store, "test-secret", testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"admin@clinic.example","password":"admin123"}`))
	res := httptest.NewRecorder()
	h.Login(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", res.Code, res.Body.String())
	}
	cookies := res.Result().Cookies()
	var found bool
	for _, c := range cookies {
		if c.Name == "session_token" && c.Value != "" && c.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Fatal("no HttpOnly session cookie set")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"admin@clinic.example","password":"wrong"}`))
	res = httptest.NewRecorder()
	h.Login(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"ghost@clinic.example","password":"x"}`))
	res = httptest.NewRecorder()
	h.Login(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.Code)
	}
}
