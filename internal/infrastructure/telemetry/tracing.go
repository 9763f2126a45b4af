package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies application-level spans.
const TracerName = "provenant-backend"

// Attribute keys shared by service and worker spans.
const (
	SpanAttrTenantCode = "tenant_code"
	SpanAttrUserID     = "user_id"
	SpanAttrOrderID    = "order_id"
	SpanAttrProductID  = "product_id"
	SpanAttrPaymentID  = "payment_id"
	SpanAttrQuantity   = "quantity"
	SpanAttrAmount     = "amount"
)

// SpanOption configures span start behavior.
type SpanOption func(*spanOptions)

type spanOptions struct {
	attributes []attribute.KeyValue
	kind       trace.SpanKind
}

// WithAttribute attaches one attribute at span start.
func WithAttribute(key string, value any) SpanOption {
	return func(o *spanOptions) {
		o.attributes = append(o.attributes, toAttribute(key, value))
	}
}

// WithSpanKind overrides the default internal span kind.
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(o *spanOptions) {
		o.kind = kind
	}
}

// StartSpan opens a span on the tracer registered with the global
// provider, so it degrades to a no-op when tracing is disabled. The
// caller must End the returned span.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, trace.Span) {
	o := spanOptions{kind: trace.SpanKindInternal}
	for _, opt := range opts {
		opt(&o)
	}

	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(o.kind),
		trace.WithAttributes(o.attributes...),
	)
}

// StartServiceSpan opens a span named "{service}.{method}".
func StartServiceSpan(ctx context.Context, service, method string, opts ...SpanOption) (context.Context, trace.Span) {
	return StartSpan(ctx, service+"."+method, opts...)
}

// SetAttributes attaches alternating key/value pairs to a span.
// Non-string keys and a trailing unpaired value are dropped.
func SetAttributes(span trace.Span, keyValues ...any) {
	if span == nil {
		return
	}
	span.SetAttributes(pairsToAttributes(keyValues)...)
}

// AddEvent records a timestamped event with alternating key/value
// pairs.
func AddEvent(span trace.Span, name string, keyValues ...any) {
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(pairsToAttributes(keyValues)...))
}

// RecordError marks the span failed and records the error event.
func RecordError(span trace.Span, err error, opts ...trace.EventOption) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

// GetTraceID returns the active trace ID, or "" outside a sampled
// trace.
func GetTraceID(ctx context.Context) string {
	if id := trace.SpanFromContext(ctx).SpanContext().TraceID(); id.IsValid() {
		return id.String()
	}
	return ""
}

// GetSpanID returns the active span ID, or "" outside a sampled trace.
func GetSpanID(ctx context.Context) string {
	if id := trace.SpanFromContext(ctx).SpanContext().SpanID(); id.IsValid() {
		return id.String()
	}
	return ""
}

func pairsToAttributes(keyValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		if key, ok := keyValues[i].(string); ok {
			attrs = append(attrs, toAttribute(key, keyValues[i+1]))
		}
	}
	return attrs
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
