package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewControllerMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewControllerMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("creates a counter per event", func(t *testing.T) {
		t.Parallel()

		mp := sdkmetric.NewMeterProvider()
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewControllerMetrics(mp)
		require.NoError(t, err)
		require.NotNil(t, metrics)
		assert.Len(t, metrics.counters, len(Events()))
	})
}

func TestControllerMetrics_RecordCount(t *testing.T) {
	t.Parallel()

	t.Run("no-op when metrics is nil", func(t *testing.T) {
		t.Parallel()

		var metrics *ControllerMetrics
		metrics.RecordCount(context.Background(), EventWorkflowAttempt)
	})

	t.Run("counts with attributes", func(t *testing.T) {
		t.Parallel()

		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewControllerMetrics(mp)
		require.NoError(t, err)

		ctx := context.Background()
		attrs := []attribute.KeyValue{attribute.String("connection_id", "c1")}
		metrics.RecordCount(ctx, EventWorkflowFailure, attrs...)
		metrics.RecordCount(ctx, EventWorkflowFailure, attrs...)
		metrics.RecordCount(ctx, Event("not_an_event"))

		m := findMetric(collect(t, reader), "thv_sync_temporal_workflow_failure")
		require.NotNil(t, m)
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, sum.DataPoints, 1)
		assert.Equal(t, int64(2), sum.DataPoints[0].Value)
		v, found := sum.DataPoints[0].Attributes.Value("connection_id")
		assert.True(t, found)
		assert.Equal(t, "c1", v.AsString())
	})
}

func TestEventValid(t *testing.T) {
	t.Parallel()

	assert.True(t, EventConnectionAutoDisabled.Valid())
	assert.False(t, Event("bogus").Valid())
}

func TestSyncMetrics_RecordSyncDuration(t *testing.T) {
	t.Parallel()

	t.Run("nil provider", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewSyncMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
		metrics.RecordSyncDuration(context.Background(), "c1", time.Second, "succeeded")
	})

	t.Run("records histogram", func(t *testing.T) {
		t.Parallel()

		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewSyncMetrics(mp)
		require.NoError(t, err)
		metrics.RecordSyncDuration(context.Background(), "c1", 42*time.Second, "failed")

		m := findMetric(collect(t, reader), "thv_sync_replication_duration_seconds")
		require.NotNil(t, m)
		hist, ok := m.Data.(metricdata.Histogram[float64])
		require.True(t, ok)
		require.Len(t, hist.DataPoints, 1)
		assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
		assert.InDelta(t, 42.0, hist.DataPoints[0].Sum, 0.001)
	})
}
