// Command notification-service consumes clinic events and delivers patient
// notifications over email and SMS.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/slaurent/cliniquerdv/libs/config"
	"github.com/slaurent/cliniquerdv/libs/db"
	"github.com/slaurent/cliniquerdv/libs/httpx"
	"github.com/slaurent/cliniquerdv/libs/kafkax"
	otelx "github.com/slaurent/cliniquerdv/libs/otel"
	"github.com/slaurent/cliniquerdv/libs/runtime"
	"github.com/slaurent/cliniquerdv/services/notification-service/internal/consumer"
	"github.com/slaurent/cliniquerdv/services/notification-service/internal/email"
	"github.com/slaurent/cliniquerdv/services/notification-service/internal/inbox"
	"github.com/slaurent/cliniquerdv/services/notification-service/internal/sms"
	"github.com/slaurent/cliniquerdv/services/notification-service/internal/storage"
)

const (
	topicBooked    = "clinic.appointment.booked.v1"
	topicCancelled = "clinic.appointment.cancelled.v1"
	topicRequested = "clinic.notification.requested.v1"
)

type appointmentPayload struct {
	AppointmentID    int64  `json:"appointment_id"`
	Reference        string `json:"reference"`
	PractitionerName string `json:"practitioner_name"`
	PatientID        int64  `json:"patient_id"`
	PatientName      string `json:"patient_name"`
	PatientPhone     string `json:"patient_phone"`
	StartsAt         string `json:"starts_at"`
}

type requestedPayload struct {
	AccountID int64  `json:"account_id"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type processor struct {
	repo   *storage.Repository
	email  email.Sender
	sms    sms.Sender
	logger *slog.Logger
}

// handle turns one clinic event into a logged delivery. Every event gets a
// notifications row; the row moves to sent or failed after the send attempt.
func (p *processor) handle(ctx context.Context, msg kafka.Message) error {
	var n storage.Notification
	switch msg.Topic {
	case topicBooked, topicCancelled:
		var payload appointmentPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			p.logger.Error("invalid appointment payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.PatientPhone == "" {
			p.logger.Warn("appointment event without patient phone", "reference", payload.Reference)
			return nil
		}
		n = storage.Notification{
			AccountID: payload.PatientID,
			Channel:   "sms",
			Recipient: payload.PatientPhone,
			Body:      appointmentMessage(msg.Topic, payload),
		}
	case topicRequested:
		var payload requestedPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			p.logger.Error("invalid notification request payload", "err", err)
			return nil
		}
		if payload.Recipient == "" || payload.Body == "" {
			p.logger.Error("notification request missing recipient or body")
			return nil
		}
		n = storage.Notification{
			AccountID: payload.AccountID,
			Channel:   strings.ToLower(payload.Channel),
			Recipient: payload.Recipient,
			Subject:   payload.Subject,
			Body:      payload.Body,
		}
	default:
		p.logger.Warn("unexpected topic", "topic", msg.Topic)
		return nil
	}

	id, err := p.repo.Insert(ctx, n)
	if err != nil {
		return err
	}

	if err := p.send(ctx, n); err != nil {
		p.logger.Error("delivery failed", "notification_id", id, "channel", n.Channel, "err", err)
		return p.repo.MarkFailed(ctx, id, err.Error())
	}
	p.logger.Info("notification delivered", "notification_id", id, "channel", n.Channel)
	return p.repo.MarkSent(ctx, id)
}

func (p *processor) send(ctx context.Context, n storage.Notification) error {
	switch n.Channel {
	case "email":
		subject := n.Subject
		if subject == "" {
			subject = "Message de votre clinique"
		}
		return p.email.Send(n.Recipient, subject, n.Body)
	case "sms":
		return p.sms.Send(ctx, n.Recipient, n.Body)
	default:
		return fmt.Errorf("unsupported channel: %s", n.Channel)
	}
}

func appointmentMessage(topic string, payload appointmentPayload) string {
	if topic == topicCancelled {
		return fmt.Sprintf("Votre rendez-vous %s avec %s le %s a été annulé.",
			payload.Reference, payload.PractitionerName, payload.StartsAt)
	}
	return fmt.Sprintf("Votre rendez-vous %s avec %s est confirmé pour le %s.",
		payload.Reference, payload.PractitionerName, payload.StartsAt)
}

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@cliniquerdv.local"),
	)

	var smsSender sms.Sender
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "webhook":
		smsSender = sms.NewWebhookSender(
			config.String("SMS_WEBHOOK_URL", ""),
			config.String("SMS_WEBHOOK_TOKEN", ""),
		)
	default:
		smsSender = sms.NewNoopSender()
	}

	proc := &processor{
		repo:   storage.NewRepository(pool),
		email:  emailSender,
		sms:    smsSender,
		logger: logger,
	}

	eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics:  []string{topicBooked, topicCancelled, topicRequested},
	}, proc.handle)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
