package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), config.TelemetryConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NoError(t, tp.Shutdown(context.Background()))
	assert.NoError(t, tp.ForceFlush(context.Background()))
	assert.NotNil(t, tp.Tracer("test"))
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "checkout.create",
		WithAttribute(SpanAttrTenantCode, "acme"),
		WithAttribute(SpanAttrQuantity, 3),
	)
	defer span.End()

	require.NotNil(t, span)
	SetAttributes(span, SpanAttrOrderID, "o-1", SpanAttrAmount, 99.5)
	AddEvent(span, "stock_reserved", SpanAttrProductID, "p-1")
	RecordError(span, errors.New("boom"))

	// No recording tracer installed, so the context carries no valid IDs
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetSpanID(ctx))
}

func TestStartServiceSpanNaming(t *testing.T) {
	_, span := StartServiceSpan(context.Background(), "order", "markPaid")
	defer span.End()
	require.NotNil(t, span)
}

func TestToAttribute(t *testing.T) {
	assert.Equal(t, "s", toAttribute("k", "s").Value.AsString())
	assert.Equal(t, int64(7), toAttribute("k", 7).Value.AsInt64())
	assert.Equal(t, 1.5, toAttribute("k", 1.5).Value.AsFloat64())
	assert.True(t, toAttribute("k", true).Value.AsBool())
	assert.Equal(t, "5s", toAttribute("k", 5*time.Second).Value.AsString())
	assert.Equal(t, "{}", toAttribute("k", struct{}{}).Value.AsString())
}
