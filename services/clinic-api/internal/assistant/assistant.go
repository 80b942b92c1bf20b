// Package assistant implements the booking help chat. Messages are matched
// against keyword lists per intent and answered with deterministic replies,
// pulling live practitioner and availability data where relevant.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/booking"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
)

type Intent string

const (
	IntentGreeting      Intent = "greeting"
	IntentPractitioners Intent = "practitioners"
	IntentBooking       Intent = "booking"
	IntentAvailability  Intent = "availability"
	IntentCancel        Intent = "cancel"
	IntentThanks        Intent = "thanks"
	IntentEmergency     Intent = "emergency"
	IntentFallback      Intent = "fallback"
)

// Keyword lists cover French and common English phrasings. Emergency is
// matched before everything else so an urgent message never gets a cheerful
// greeting back.
var intentKeywords = []struct {
	intent Intent
	words  []string
}{
	{IntentEmergency, []string{"urgence", "urgent", "grave", "douleur forte", "emergency"}},
	{IntentGreeting, []string{"bonjour", "salut", "hello", "bonsoir", "coucou", "hi "}},
	{IntentPractitioners, []string{"médecin", "medecin", "docteur", "praticien", "liste", "spécialité", "specialite", "doctor"}},
	{IntentBooking, []string{"rendez-vous", "rdv", "réserver", "reserver", "prendre", "book"}},
	{IntentAvailability, []string{"disponible", "créneau", "creneau", "horaire", "libre", "slot", "availab"}},
	{IntentCancel, []string{"annuler", "annulation", "supprimer", "cancel"}},
	{IntentThanks, []string{"merci", "thanks", "au revoir", "bye"}},
}

// Classify maps a free-text message onto an intent.
func Classify(message string) Intent {
	msg := strings.ToLower(message)
	for _, group := range intentKeywords {
		for _, w := range group.words {
			if strings.Contains(msg, w) {
				return group.intent
			}
		}
	}
	return IntentFallback
}

// Directory lists bookable practitioners.
type Directory interface {
	ListPractitioners(ctx context.Context, specialty string) ([]model.Practitioner, error)
}

// SlotSource answers availability questions.
type SlotSource interface {
	Slots(ctx context.Context, practitionerID int64, date string) (booking.SlotsResult, error)
}

// Responder builds the assistant's reply for one message.
type Responder struct {
	directory Directory
	slots     SlotSource
	now       func() time.Time
}

func NewResponder(directory Directory, slots SlotSource) *Responder {
	return &Responder{directory: directory, slots: slots, now: time.Now}
}

// Reply returns the assistant's answer and the detected intent.
func (r *Responder) Reply(ctx context.Context, message string) (string, Intent, error) {
	intent := Classify(message)
	switch intent {
	case IntentGreeting:
		return replyGreeting, intent, nil
	case IntentPractitioners:
		text, err := r.replyPractitioners(ctx)
		return text, intent, err
	case IntentBooking:
		return replyBooking, intent, nil
	case IntentAvailability:
		text, err := r.replyAvailability(ctx)
		return text, intent, err
	case IntentCancel:
		return replyCancel, intent, nil
	case IntentThanks:
		return replyThanks, intent, nil
	case IntentEmergency:
		return replyEmergency, intent, nil
	default:
		return replyFallback, intent, nil
	}
}

func (r *Responder) replyPractitioners(ctx context.Context) (string, error) {
	pracs, err := r.directory.ListPractitioners(ctx, "")
	if err != nil {
		return "", err
	}
	if len(pracs) == 0 {
		return "Aucun praticien n'est disponible pour le moment.", nil
	}
	var b strings.Builder
	b.WriteString("Voici nos praticiens disponibles :\n")
	for _, p := range pracs {
		fmt.Fprintf(&b, "- %s (%s), consultation de %d minutes\n", p.Name, p.Specialty, p.ConsultMinutes)
	}
	b.WriteString("Souhaitez-vous prendre rendez-vous avec l'un d'entre eux ?")
	return b.String(), nil
}

// replyAvailability shows tomorrow's slots for the first listed practitioner
// as a starting point for the conversation.
func (r *Responder) replyAvailability(ctx context.Context) (string, error) {
	pracs, err := r.directory.ListPractitioners(ctx, "")
	if err != nil {
		return "", err
	}
	if len(pracs) == 0 {
		return "Aucun praticien n'est disponible pour le moment.", nil
	}
	tomorrow := r.now().AddDate(0, 0, 1).Format("2006-01-02")
	res, err := r.slots.Slots(ctx, pracs[0].ID, tomorrow)
	if err != nil {
		return "", err
	}
	if len(res.Times) == 0 {
		return fmt.Sprintf("Pas de créneau disponible le %s pour %s. Essayez une autre date.", tomorrow, pracs[0].Name), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Créneaux disponibles le %s avec %s :\n", tomorrow, pracs[0].Name)
	limit := len(res.Times)
	if limit > 8 {
		limit = 8
	}
	for _, t := range res.Times[:limit] {
		fmt.Fprintf(&b, "- %s\n", t.Format("15:04"))
	}
	b.WriteString("Quel créneau vous conviendrait ?")
	return b.String(), nil
}

const (
	replyGreeting = `Bonjour ! Je suis l'assistant de la clinique.
Je peux vous aider à :
- voir la liste des praticiens
- prendre un rendez-vous
- vérifier les disponibilités
- annuler un rendez-vous
Comment puis-je vous aider ?`

	replyBooking = `Pour prendre un rendez-vous, j'ai besoin de :
1. la spécialité souhaitée
2. la date préférée (AAAA-MM-JJ)
3. l'heure préférée (HH:MM)
4. votre nom complet
5. votre numéro de téléphone
Quelle spécialité souhaitez-vous consulter ?`

	replyCancel = `Pour annuler votre rendez-vous, indiquez :
- le numéro du rendez-vous (ex: RDV-0001)
ou
- votre numéro de téléphone pour retrouver vos rendez-vous`

	replyThanks = `Je vous en prie !
La clinique est ouverte du lundi au vendredi, de 9h à 17h.
Bonne journée.`

	replyEmergency = `ATTENTION : en cas d'urgence médicale, appelez le 15 (SAMU) ou le 112.
Si ce n'est pas une urgence vitale, je peux vous aider à trouver le prochain créneau disponible.`

	replyFallback = `Je suis là pour vous aider avec vos rendez-vous.
Vous pouvez me demander :
- "praticiens" pour voir la liste des praticiens
- "rendez-vous" pour réserver
- "disponibilités" pour voir les créneaux libres
- "annuler" pour annuler un rendez-vous`
)
