// Package consumer reads clinic events from Kafka with inbox deduplication
// and trace propagation.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/slaurent/cliniquerdv/libs/kafkax"
	"github.com/slaurent/cliniquerdv/services/notification-service/internal/inbox"
)

type Handler func(ctx context.Context, msg kafka.Message) error

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	inbox   *inbox.Repository
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

// New builds a consumer subscribed to all given topics in one group.
func New(logger *slog.Logger, inboxRepo *inbox.Repository, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inboxRepo,
		handler: handler,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := kafkax.ExtractEventMeta(msg)

		ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
		if err != nil {
			c.logger.Error("inbox record failed", "err", err)
			span.RecordError(err)
			span.End()
			continue
		}
		if !ok {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			span.End()
			continue
		}

		if err := c.handler(ctxSpan, msg); err != nil {
			c.logger.Error("event handling failed", "err", err, "topic", msg.Topic, "event_id", meta.EventID)
			span.RecordError(err)
		}
		span.End()
	}
}
