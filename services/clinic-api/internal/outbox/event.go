// Package outbox implements the transactional outbox: domain events are
// written in the same transaction as the state change and a background
// publisher relays them to Kafka.
package outbox

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
)

// Topic names. The Kafka topic equals the event type, one event per topic.
const (
	TopicAppointmentBooked     = "clinic.appointment.booked.v1"
	TopicAppointmentCancelled  = "clinic.appointment.cancelled.v1"
	TopicNotificationRequested = "clinic.notification.requested.v1"
)

// Event is the envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type appointmentPayload struct {
	AppointmentID    int64  `json:"appointment_id"`
	Reference        string `json:"reference"`
	PractitionerID   int64  `json:"practitioner_id"`
	PractitionerName string `json:"practitioner_name"`
	PatientID        int64  `json:"patient_id"`
	PatientName      string `json:"patient_name"`
	PatientPhone     string `json:"patient_phone"`
	StartsAt         string `json:"starts_at"`
	Reason           string `json:"reason,omitempty"`
}

func appointmentEvent(eventType string, appt model.Appointment) (Event, error) {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID:    appt.ID,
		Reference:        appt.Reference,
		PractitionerID:   appt.PractitionerID,
		PractitionerName: appt.PractitionerName,
		PatientID:        appt.PatientID,
		PatientName:      appt.PatientName,
		PatientPhone:     appt.PatientPhone,
		StartsAt:         appt.StartsAt.Format("2006-01-02 15:04"),
		Reason:           appt.Reason,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   strconv.FormatInt(appt.ID, 10),
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

// AppointmentBooked builds the event emitted when a booking is confirmed.
func AppointmentBooked(appt model.Appointment) (Event, error) {
	return appointmentEvent(TopicAppointmentBooked, appt)
}

// AppointmentCancelled builds the event emitted when a booking is cancelled.
func AppointmentCancelled(appt model.Appointment) (Event, error) {
	return appointmentEvent(TopicAppointmentCancelled, appt)
}

// NotificationRequest is a staff-initiated message to a patient.
type NotificationRequest struct {
	AccountID   int64  `json:"account_id"`
	Channel     string `json:"channel"`
	Recipient   string `json:"recipient"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"body"`
	RequestedAt string `json:"requested_at"`
}

// NotificationRequested builds the event for an ad-hoc notification.
func NotificationRequested(req NotificationRequest) (Event, error) {
	if req.RequestedAt == "" {
		req.RequestedAt = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "notification",
		AggregateID:   strconv.FormatInt(req.AccountID, 10),
		EventType:     TopicNotificationRequested,
		Payload:       payload,
	}, nil
}
