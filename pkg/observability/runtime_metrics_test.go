package observability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
)

func TestNewRuntimeMetrics_NoopMeter(t *testing.T) {
	t.Parallel()

	rm, err := observability.NewRuntimeMetrics(noopmetric.NewMeterProvider().Meter("test"))

	require.NoError(t, err)
	require.NotNil(t, rm)
}

func TestNewRuntimeMetrics_CollectsWithoutError(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	_, err := observability.NewRuntimeMetrics(mp.Meter("test"))
	require.NoError(t, err)

	assert.NotPanics(t, func() { collectMetrics(t, reader) })
}
