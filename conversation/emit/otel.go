package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating OpenTelemetry spans.
//
// Each event becomes a span with:
//   - Span name: event.Msg (e.g. "turn_start", "escalation")
//   - Attributes: session ID, turn, step, and all event.Meta fields
//   - Status: Set to error if event.Meta["error"] exists
//
// Spans are created and ended immediately since events represent
// points in time rather than durations. Export batching is left to the
// configured span processor.
//
// Usage:
//
//	tracer := otel.Tracer("chatbot")
//	emitter := emit.NewOTelEmitter(tracer)
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter using the given tracer,
// typically obtained from otel.Tracer("chatbot").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates an OpenTelemetry span for the event.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("chatbot.session_id", event.SessionID),
		attribute.Int("chatbot.turn", event.Turn),
		attribute.String("chatbot.step", event.Step),
	)
	for k, v := range event.Meta {
		span.SetAttributes(metaAttribute("chatbot.meta."+k, v))
	}

	if err, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, err)
		span.RecordError(fmt.Errorf("%s", err))
	}
}

// metaAttribute converts an arbitrary meta value to a span attribute,
// preserving native types where OpenTelemetry supports them.
func metaAttribute(key string, v interface{}) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	default:
		return attribute.String(key, fmt.Sprintf("%v", val))
	}
}
