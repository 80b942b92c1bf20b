package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/authn"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/booking"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/outbox"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/storage"
)

// AdminStore is the staff-facing persistence surface.
type AdminStore interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	ListAppointments(ctx context.Context, f storage.AppointmentFilter) ([]model.Appointment, error)
	AppointmentByID(ctx context.Context, id int64) (model.Appointment, error)
	UpdateStatus(ctx context.Context, id int64, status, notes string) (model.Appointment, error)
	PractitionerByAccountID(ctx context.Context, accountID int64) (model.Practitioner, error)
	AppointmentsForPractitioner(ctx context.Context, practitionerID int64, from time.Time) ([]model.Appointment, error)
}

// EventSink records events for asynchronous delivery.
type EventSink interface {
	InsertStandalone(ctx context.Context, evt outbox.Event) error
}

type AdminHandler struct {
	store  AdminStore
	events EventSink
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewAdminHandler(store AdminStore, events EventSink, logger *slog.Logger, loc *time.Location) *AdminHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AdminHandler{store: store, events: events, logger: logger, loc: loc, now: time.Now}
}

func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.ListAccounts(r.Context())
	if err != nil {
		writeBookingError(w, h.logger, r, err)
		return
	}
	items := make([]accountItem, 0, len(accounts))
	for _, a := range accounts {
		items = append(items, accountToItem(a))
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "accounts": items, "count": len(items)})
}

func (h *AdminHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	filter := storage.AppointmentFilter{Status: strings.TrimSpace(r.URL.Query().Get("status"))}
	if filter.Status != "" && !model.ValidStatus(filter.Status) {
		writeError(w, http.StatusBadRequest, "InvalidStatus", "unknown appointment status")
		return
	}
	if date := r.URL.Query().Get("date"); date != "" {
		day, err := time.ParseInLocation("2006-01-02", date, h.loc)
		if err != nil {
			writeBookingError(w, h.logger, r, booking.ErrInvalidDateFormat)
			return
		}
		filter.Day = day
	}

	appts, err := h.store.ListAppointments(r.Context(), filter)
	if err != nil {
		writeBookingError(w, h.logger, r, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, appointmentToItem(a))
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "appointments": items, "count": len(items)})
}

type updateAppointmentRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// UpdateAppointment applies a staff status change. Only transitions allowed
// by the appointment state machine go through; cancelled and completed are
// terminal.
func (h *AdminHandler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidID", "appointment id must be an integer")
		return
	}
	var req updateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidBody", "invalid json body")
		return
	}
	if !model.ValidStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "InvalidStatus", "unknown appointment status")
		return
	}

	current, err := h.store.AppointmentByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeBookingError(w, h.logger, r, booking.ErrAppointmentNotFound)
			return
		}
		writeBookingError(w, h.logger, r, err)
		return
	}
	if !model.CanTransition(current.Status, req.Status) {
		writeError(w, http.StatusConflict, "InvalidTransition",
			"cannot move appointment from "+current.Status+" to "+req.Status)
		return
	}

	appt, err := h.store.UpdateStatus(r.Context(), id, req.Status, strings.TrimSpace(req.Notes))
	if err != nil {
		writeBookingError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "appointment": appointmentToItem(appt)})
}

type createNotificationRequest struct {
	AccountID int64  `json:"account_id"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// CreateNotification queues an ad-hoc message to a patient. Delivery happens
// asynchronously in the notification service.
func (h *AdminHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidBody", "invalid json body")
		return
	}
	req.Channel = strings.TrimSpace(req.Channel)
	req.Recipient = strings.TrimSpace(req.Recipient)
	if req.Channel != "email" && req.Channel != "sms" {
		writeError(w, http.StatusBadRequest, "InvalidChannel", "channel must be email or sms")
		return
	}
	if req.Recipient == "" || strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "MissingFields", "recipient and body are required")
		return
	}

	evt, err := outbox.NotificationRequested(outbox.NotificationRequest{
		AccountID:   req.AccountID,
		Channel:     req.Channel,
		Recipient:   req.Recipient,
		Subject:     strings.TrimSpace(req.Subject),
		Body:        req.Body,
		RequestedAt: h.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		writeBookingError(w, h.logger, r, err)
		return
	}
	if err := h.events.InsertStandalone(r.Context(), evt); err != nil {
		writeBookingError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, envelope{"success": true, "message": "notification queued"})
}

// MyAppointments lists the authenticated practitioner's agenda from the
// start of today.
func (h *AdminHandler) MyAppointments(w http.ResponseWriter, r *http.Request) {
	account, ok := authn.CurrentAccount(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	prac, err := h.store.PractitionerByAccountID(r.Context(), account.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeBookingError(w, h.logger, r, booking.ErrPractitionerNotFound)
			return
		}
		writeBookingError(w, h.logger, r, err)
		return
	}
	now := h.now().In(h.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)
	appts, err := h.store.AppointmentsForPractitioner(r.Context(), prac.ID, today)
	if err != nil {
		writeBookingError(w, h.logger, r, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, appointmentToItem(a))
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "appointments": items, "count": len(items)})
}
