package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
)

func setupTestMeter(t *testing.T) (*observability.REDMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return red, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

// sumByOp folds an int64 sum into per-op totals.
func sumByOp(t *testing.T, rm metricdata.ResourceMetrics, name string) map[string]int64 {
	t.Helper()

	found := findMetric(rm, name)
	require.NotNil(t, found, "%s metric not found", name)

	sum, ok := found.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", name)

	out := make(map[string]int64)

	for _, dp := range sum.DataPoints {
		op, _ := dp.Attributes.Value(attribute.Key("op"))
		out[op.AsString()] += dp.Value
	}

	return out
}

func TestREDMetrics_CountsPerOperation(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)
	ctx := context.Background()

	red.RecordRequest(ctx, "reparse", "ok", 2*time.Millisecond)
	red.RecordRequest(ctx, "reparse", "error", time.Millisecond)
	red.RecordRequest(ctx, "mcp.sqltree_parse", "ok", 40*time.Millisecond)

	rm := collectMetrics(t, reader)

	assert.Equal(t, map[string]int64{"reparse": 2, "mcp.sqltree_parse": 1},
		sumByOp(t, rm, "sqltree.requests.total"))
	assert.Equal(t, map[string]int64{"reparse": 1},
		sumByOp(t, rm, "sqltree.errors.total"))
}

func TestREDMetrics_ReparseDurationBucket(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)

	red.RecordRequest(context.Background(), "reparse", "ok", 3*time.Millisecond)

	found := findMetric(collectMetrics(t, reader), "sqltree.request.duration.seconds")
	require.NotNil(t, found)

	hist, ok := found.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)

	dp := hist.DataPoints[0]
	assert.Equal(t, 0.001, dp.Bounds[0])
	assert.Equal(t, 10.0, dp.Bounds[len(dp.Bounds)-1])

	// 3ms falls in (2.5ms, 5ms].
	assert.Equal(t, uint64(1), dp.BucketCounts[2])
	assert.Equal(t, uint64(1), dp.Count)
}

func TestREDMetrics_TrackInflight(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)
	ctx := context.Background()

	done := red.TrackInflight(ctx, "reparse")
	assert.Equal(t, map[string]int64{"reparse": 1},
		sumByOp(t, collectMetrics(t, reader), "sqltree.inflight.requests"))

	done()
	assert.Equal(t, map[string]int64{"reparse": 0},
		sumByOp(t, collectMetrics(t, reader), "sqltree.inflight.requests"))
}

func TestNewREDMetrics_WithNoopProviders(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	red, err := observability.NewREDMetrics(providers.Meter)
	require.NoError(t, err)
	assert.NotNil(t, red)

	red.RecordRequest(context.Background(), "reparse", "ok", time.Millisecond)
}
