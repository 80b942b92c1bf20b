// Package model holds the domain types shared by the clinic API packages.
package model

import (
	"fmt"
	"time"
)

// Account roles.
const (
	RolePatient      = "patient"
	RolePractitioner = "practitioner"
	RoleSecretary    = "secretary"
	RoleAdmin        = "admin"
)

// Appointment statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Account is a login identity. Patients created through the public booking
// flow have no password hash until they register one.
type Account struct {
	ID           int64
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
}

// Practitioner is a bookable care provider. Name is joined in from the
// linked account on read.
type Practitioner struct {
	ID             int64
	AccountID      int64
	Name           string
	Specialty      string
	Description    string
	ConsultMinutes int
	IsAvailable    bool
}

// WorkingHours is one weekday's window for a practitioner, stored as minutes
// from midnight. Weekday uses time.Weekday numbering (0 = Sunday).
type WorkingHours struct {
	PractitionerID int64
	Weekday        time.Weekday
	StartMinute    int
	EndMinute      int
	IsActive       bool
}

// Start returns the window start as a wall-clock time on the given day.
func (w WorkingHours) Start(day time.Time) time.Time {
	return day.Add(time.Duration(w.StartMinute) * time.Minute)
}

// End returns the window end as a wall-clock time on the given day.
func (w WorkingHours) End(day time.Time) time.Time {
	return day.Add(time.Duration(w.EndMinute) * time.Minute)
}

// Appointment is a booked consultation. StartsAt is clinic-local wall-clock
// time with no timezone attached.
type Appointment struct {
	ID               int64
	Reference        string
	PractitionerID   int64
	PractitionerName string
	Specialty        string
	PatientID        int64
	PatientName      string
	PatientPhone     string
	StartsAt         time.Time
	Status           string
	Reason           string
	Notes            string
	CreatedAt        time.Time
}

// AppointmentDraft carries everything needed to persist a confirmed
// appointment, including the patient details for the upsert by phone.
type AppointmentDraft struct {
	PractitionerID int64
	StartsAt       time.Time
	PatientName    string
	PatientPhone   string
	PatientEmail   string
	Reason         string
}

// Notification is an outgoing message recorded by the notification service.
type Notification struct {
	ID        int64
	AccountID int64
	Channel   string
	Recipient string
	Subject   string
	Body      string
	Status    string
	Error     string
	CreatedAt time.Time
	SentAt    time.Time
}

// ChatMessage is one turn of an assistant conversation.
type ChatMessage struct {
	ID        int64
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// BookingReference derives the human-facing reference from an appointment ID.
func BookingReference(id int64) string {
	return fmt.Sprintf("RDV-%04d", id)
}

var transitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusCancelled: {},
	StatusCompleted: {},
}

// CanTransition reports whether an appointment may move between the two
// statuses. Cancelled and completed are terminal.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known appointment status.
func ValidStatus(s string) bool {
	_, ok := transitions[s]
	return ok
}
