package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/booking"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
)

type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

type createBookingRequest struct {
	PractitionerID int64  `json:"practitioner_id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	PatientName    string `json:"patient_name"`
	PatientPhone   string `json:"patient_phone"`
	PatientEmail   string `json:"patient_email"`
	Reason         string `json:"reason"`
}

type appointmentItem struct {
	ID           int64  `json:"id"`
	Reference    string `json:"reference"`
	Practitioner string `json:"practitioner"`
	Specialty    string `json:"specialty"`
	Patient      string `json:"patient,omitempty"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
}

func appointmentToItem(a model.Appointment) appointmentItem {
	date, clock := formatStartsAt(a.StartsAt)
	return appointmentItem{
		ID:           a.ID,
		Reference:    a.Reference,
		Practitioner: a.PractitionerName,
		Specialty:    a.Specialty,
		Patient:      a.PatientName,
		Date:         date,
		Time:         clock,
		Status:       a.Status,
		Reason:       a.Reason,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidBody", "invalid json body")
		return
	}
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.PatientPhone = strings.TrimSpace(req.PatientPhone)
	if req.PractitionerID == 0 || req.PatientName == "" || req.PatientPhone == "" {
		writeError(w, http.StatusBadRequest, "MissingFields", "practitioner_id, patient_name and patient_phone are required")
		return
	}

	appt, err := h.svc.Book(r.Context(), booking.BookRequest{
		PractitionerID: req.PractitionerID,
		Date:           req.Date,
		Time:           req.Time,
		PatientName:    req.PatientName,
		PatientPhone:   req.PatientPhone,
		PatientEmail:   strings.TrimSpace(req.PatientEmail),
		Reason:         strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeBookingError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		"success":     true,
		"message":     "appointment confirmed",
		"appointment": appointmentToItem(appt),
	})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidID", "appointment id must be an integer")
		return
	}
	appt, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		writeBookingError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"success":     true,
		"message":     "appointment " + appt.Reference + " cancelled",
		"appointment": appointmentToItem(appt),
	})
}

// ListByPhone returns a patient's upcoming appointments, identified by the
// phone number used at booking time.
func (h *BookingHandler) ListByPhone(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		writeError(w, http.StatusBadRequest, "MissingFields", "phone query parameter is required")
		return
	}
	appts, err := h.svc.ListUpcoming(r.Context(), phone)
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
