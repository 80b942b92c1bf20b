package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InjectTraceHeaders appends W3C trace context headers to Kafka headers.
func InjectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

// ExtractTraceContext returns a context extracted from Kafka headers using the global propagator.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	carrier := headerCarrier{headers: msg.Headers}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

type headerCarrier struct {
	headers []kafka.Header
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c headerCarrier) Set(key string, value string) {
	// Overwrite existing key if present to avoid duplicates.
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = headerCarrier{}
