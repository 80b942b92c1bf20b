package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/booking"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/storage"
)

// PractitionerDirectory is the read surface for the public practitioner
// endpoints.
type PractitionerDirectory interface {
	ListPractitioners(ctx context.Context, specialty string) ([]model.Practitioner, error)
	PractitionerByID(ctx context.Context, id int64) (model.Practitioner, error)
	WeeklyHours(ctx context.Context, practitionerID int64) ([]model.WorkingHours, error)
}

type PractitionerHandler struct {
	directory PractitionerDirectory
	booking   *booking.Service
	logger    *slog.Logger
}

func NewPractitionerHandler(directory PractitionerDirectory, bookingSvc *booking.Service, logger *slog.Logger) *PractitionerHandler {
	return &PractitionerHandler{directory: directory, booking: bookingSvc, logger: logger}
}

type practitionerItem struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Specialty      string `json:"specialty"`
	Description    string `json:"description"`
	ConsultMinutes int    `json:"consult_minutes"`
}

func practitionerToItem(p model.Practitioner) practitionerItem {
	return practitionerItem{
		ID:             p.ID,
		Name:           p.Name,
		Specialty:      p.Specialty,
		Description:    p.Description,
		ConsultMinutes: p.ConsultMinutes,
	}
}

func (h *PractitionerHandler) List(w http.ResponseWriter, r *http.Request) {
	pracs, err := h.directory.ListPractitioners(r.Context(), strings.TrimSpace(r.URL.Query().Get("specialty")))
	if err != nil {
		writeBookingError(w, h.logger, r, err)
		return
	}
	items := make([]practitionerItem, 0, len(pracs))
	for _, p := range pracs {
		items = append(items, practitionerToItem(p))
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "practitioners": items, "count": len(items)})
}

type weeklyHoursItem struct {
	Weekday string `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func minuteClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func (h *PractitionerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidID", "practitioner id must be an integer")
		return
	}
	p, err := h.directory.PractitionerByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeBookingError(w, h.logger, r, booking.ErrPractitionerNotFound)
			return
		}
		writeBookingError(w, h.logger, r, err)
		return
	}
	hours, err := h.directory.WeeklyHours(r.Context(), id)
	if err != nil {
		writeBookingError(w, h.logger, r, err)
		return
	}
	hourItems := make([]weeklyHoursItem, 0, len(hours))
	for _, wh := range hours {
		hourItems = append(hourItems, weeklyHoursItem{
			Weekday: wh.Weekday.String(),
			Start:   minuteClock(wh.StartMinute),
			End:     minuteClock(wh.EndMinute),
		})
	}
	writeJSON(w, http.StatusOK, envelope{
		"success":      true,
		"practitioner": practitionerToItem(p),
		"weekly_hours": hourItems,
	})
}

func (h *PractitionerHandler) Slots(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidID", "practitioner id must be an integer")
		return
	}
	date := r.URL.Query().Get("date")
	res, err := h.booking.Slots(r.Context(), id, date)
	if err != nil {
		writeBookingError(w, h.logger, r, err)
		return
	}
	slots := make([]string, 0, len(res.Times))
	for _, t := range res.Times {
		slots = append(slots, t.Format("15:04"))
	}
	resp := envelope{
		"success":      true,
		"date":         res.Date.Format("2006-01-02"),
		"practitioner": res.Practitioner.Name,
		"slots":        slots,
	}
	if res.Note != "" {
		resp["message"] = res.Note
	}
	writeJSON(w, http.StatusOK, resp)
}

func formatStartsAt(t time.Time) (string, string) {
	return t.Format("2006-01-02"), t.Format("15:04")
}
