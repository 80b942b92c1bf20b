package assistant

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/booking"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		message string
		want    Intent
	}{
		{"Bonjour !", IntentGreeting},
		{"hello there", IntentGreeting},
		{"Quels médecins avez-vous ?", IntentPractitioners},
		{"la liste des praticiens svp", IntentPractitioners},
		{"je veux prendre un rdv", IntentBooking},
		{"quels créneaux sont libres demain ?", IntentAvailability},
		{"je veux annuler mon rendez-vous", IntentCancel},
		{"merci beaucoup", IntentThanks},
		{"c'est urgent, j'ai une douleur forte", IntentEmergency},
		{"xyzzy", IntentFallback},
	}
	for _, tc := range cases {
		if got := Classify(tc.message); got != tc.want {
			t.Fatalf("Classify(%q) = %q, want %q", tc.message, got, tc.want)
		}
	}
}

func TestClassifyEmergencyWins(t *testing.T) {
	// An urgent message must never be answered as a greeting.
	if got := Classify("bonjour, c'est une urgence"); got != IntentEmergency {
		t.Fatalf("Classify = %q, want emergency", got)
	}
}

type fakeDirectory struct {
	pracs []model.Practitioner
}

func (f *fakeDirectory) ListPractitioners(context.Context, string) ([]model.Practitioner, error) {
	return f.pracs, nil
}

type fakeSlots struct {
	res booking.SlotsResult
}

func (f *fakeSlots) Slots(context.Context, int64, string) (booking.SlotsResult, error) {
	return f.res, nil
}

func TestReplyPractitioners(t *testing.T) {
	dir := &fakeDirectory{pracs: []model.Practitioner{
		{ID: 1, Name: "Dr. Martin Dupont", Specialty: "Cardiologie", ConsultMinutes: 30},
	}}
	r := NewResponder(dir, &fakeSlots{})

	text, intent, err := r.Reply(context.Background(), "montrez-moi la liste des médecins")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if intent != IntentPractitioners {
		t.Fatalf("intent = %q, want practitioners", intent)
	}
	if !strings.Contains(text, "Dr. Martin Dupont") || !strings.Contains(text, "Cardiologie") {
		t.Fatalf("reply missing practitioner details: %q", text)
	}
}

func TestReplyAvailability(t *testing.T) {
	day := time.Date(2026, time.September, 15, 0, 0, 0, 0, time.UTC)
	dir := &fakeDirectory{pracs: []model.Practitioner{{ID: 1, Name: "Dr. Martin Dupont"}}}
	slots := &fakeSlots{res: booking.SlotsResult{Times: []time.Time{
		day.Add(9 * time.Hour),
		day.Add(9*time.Hour + 30*time.Minute),
	}}}
	r := NewResponder(dir, slots)
	r.now = func() time.Time { return day.AddDate(0, 0, -1) }

	text, intent, err := r.Reply(context.Background(), "quels créneaux sont disponibles ?")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if intent != IntentAvailability {
		t.Fatalf("intent = %q, want availability", intent)
	}
	if !strings.Contains(text, "09:00") || !strings.Contains(text, "09:30") {
		t.Fatalf("reply missing slot times: %q", text)
	}
	if !strings.Contains(text, "2026-09-15") {
		t.Fatalf("reply missing date: %q", text)
	}
}

func TestReplyFallback(t *testing.T) {
	r := NewResponder(&fakeDirectory{}, &fakeSlots{})
	text, intent, err := r.Reply(context.Background(), "qsdfgh")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if intent != IntentFallback {
		t.Fatalf("intent = %q, want fallback", intent)
	}
	if text == "" {
		t.Fatal("empty fallback reply")
	}
}
