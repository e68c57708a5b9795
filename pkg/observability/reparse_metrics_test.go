package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
)

func TestReparseMetrics_Counters(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	rm, err := observability.NewReparseMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	rm.Scheduled(ctx)
	rm.Scheduled(ctx)
	rm.Coalesced(ctx)
	rm.Stale(ctx)
	rm.Dropped(ctx)

	collected := collectMetrics(t, reader)

	scheduled := findMetric(collected, "sqltree.reparse.scheduled")
	require.NotNil(t, scheduled)

	sum, ok := scheduled.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)

	for _, name := range []string{"sqltree.reparse.coalesced", "sqltree.reparse.stale", "sqltree.reparse.dropped"} {
		assert.NotNil(t, findMetric(collected, name), name)
	}
}

func TestReparseMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var rm *observability.ReparseMetrics

	assert.NotPanics(t, func() {
		rm.Scheduled(context.Background())
		rm.Coalesced(context.Background())
		rm.Stale(context.Background())
		rm.Dropped(context.Background())
	})
}
