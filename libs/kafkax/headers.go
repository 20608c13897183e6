package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Header names every producer on the platform sets.
const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

// EventHeaders builds the standard headers for one event, with the W3C trace context of ctx
// appended when it carries a span.
func EventHeaders(ctx context.Context, eventID, eventType string) []kafka.Header {
	h := headerCarrier{
		{Key: HeaderEventID, Value: []byte(eventID)},
		{Key: HeaderEventType, Value: []byte(eventType)},
	}
	otel.GetTextMapPropagator().Inject(ctx, &h)
	return h
}

// ExtractTraceContext returns ctx joined to the trace recorded in msg's headers.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	h := headerCarrier(msg.Headers)
	return otel.GetTextMapPropagator().Extract(ctx, &h)
}

type headerCarrier []kafka.Header

func (c *headerCarrier) Get(key string) string {
	return HeaderValue(*c, key)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c))
	for _, h := range *c {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range *c {
		if (*c)[i].Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
