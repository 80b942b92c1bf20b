package model

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCancelled},
		{StatusConfirmed, StatusCompleted},
		{StatusConfirmed, StatusCancelled},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to string }{
		{StatusCancelled, StatusConfirmed},
		{StatusCancelled, StatusPending},
		{StatusCompleted, StatusConfirmed},
		{StatusCompleted, StatusCancelled},
		{StatusConfirmed, StatusPending},
		{StatusPending, StatusCompleted},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestBookingReference(t *testing.T) {
	if got := BookingReference(7); got != "RDV-0007" {
		t.Fatalf("BookingReference(7) = %q, want RDV-0007", got)
	}
	if got := BookingReference(12345); got != "RDV-12345" {
		t.Fatalf("BookingReference(12345) = %q, want RDV-12345", got)
	}
}
