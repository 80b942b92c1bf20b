package booking

// Error is a booking failure with a stable machine-readable code. Handlers
// map codes onto HTTP statuses; clients branch on Code, not Message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrInvalidDateFormat    = &Error{Code: "InvalidDateFormat", Message: "date must be YYYY-MM-DD"}
	ErrInvalidTimeFormat    = &Error{Code: "InvalidTimeFormat", Message: "time must be HH:MM"}
	ErrPastDateRejected     = &Error{Code: "PastDateRejected", Message: "date is in the past"}
	ErrPractitionerNotFound = &Error{Code: "PractitionerNotFound", Message: "practitioner not found"}
	ErrSlotAlreadyTaken     = &Error{Code: "SlotAlreadyTaken", Message: "slot is no longer available"}
	ErrAppointmentNotFound  = &Error{Code: "AppointmentNotFound", Message: "appointment not found"}
	ErrAlreadyCancelled     = &Error{Code: "AlreadyCancelled", Message: "appointment is already cancelled"}
	ErrAppointmentCompleted = &Error{Code: "AppointmentCompleted", Message: "appointment is already completed"}
	ErrNoAccountFound       = &Error{Code: "NoAccountFound", Message: "no account found for this phone number"}
)
