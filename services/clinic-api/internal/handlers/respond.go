// Package handlers exposes the clinic HTTP API. Every response carries a
// success flag; failures add a stable error code clients can branch on.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/booking"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{
		"success": false,
		"error":   envelope{"code": code, "message": message},
	})
}

// writeBookingError translates domain errors into HTTP responses. Unknown
// errors become an opaque 500 so internals never leak to clients.
func writeBookingError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	var be *booking.Error
	if errors.As(err, &be) {
		writeError(w, statusForCode(be.Code), be.Code, be.Message)
		return
	}
	logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "Internal", "internal error")
}

func statusForCode(code string) int {
	switch code {
	case booking.ErrPractitionerNotFound.Code,
		booking.ErrAppointmentNotFound.Code,
		booking.ErrNoAccountFound.Code:
		return http.StatusNotFound
	case booking.ErrSlotAlreadyTaken.Code,
		booking.ErrAlreadyCancelled.Code,
		booking.ErrAppointmentCompleted.Code:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
