package telemetry

import (
	"context"
	"testing"

	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDisabledMeterProviderIsNoop(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), config.TelemetryConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NoError(t, mp.Shutdown(context.Background()))
	assert.NotNil(t, mp.Meter("test"))
}

func TestDisabledMeterStillCounts(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), config.TelemetryConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	counter, err := mp.Meter("orders").Int64Counter("orders.created")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
}
