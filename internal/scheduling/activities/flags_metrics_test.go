package activities

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.temporal.io/sdk/temporal"

	"github.com/stacklok/toolhive-sync-controller/internal/store"
	"github.com/stacklok/toolhive-sync-controller/internal/telemetry"
)

func TestRecordMetric(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := telemetry.NewControllerMetrics(mp)
	require.NoError(t, err)

	a := New(store.NewMemoryStore(), nil, WithMetrics(metrics))
	ctx := context.Background()
	connID := uuid.New()
	jobID := int64(12)

	require.NoError(t, a.RecordMetric(ctx, RecordMetricInput{
		ConnectionID: connID,
		JobID:        &jobID,
		Event:        telemetry.EventWorkflowFailure,
		FailureCause: "CANCELED",
		Attributes:   map[string]string{"made_progress": "false"},
	}))

	err = a.RecordMetric(ctx, RecordMetricInput{ConnectionID: connID, Event: telemetry.Event("nope")})
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, "InvalidMetric", appErr.Type())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	var sum metricdata.Sum[int64]
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "thv_sync_temporal_workflow_failure" {
				sum = m.Data.(metricdata.Sum[int64])
			}
		}
	}
	require.Len(t, sum.DataPoints, 1)
	dp := sum.DataPoints[0]
	assert.Equal(t, int64(1), dp.Value)
	for key, want := range map[string]string{
		"connection.id": connID.String(),
		"failure.cause": "CANCELED",
		"made_progress": "false",
	} {
		v, ok := dp.Attributes.Value(attribute.Key(key))
		require.True(t, ok, key)
		assert.Equal(t, want, v.AsString())
	}
	v, ok := dp.Attributes.Value("job.id")
	require.True(t, ok)
	assert.Equal(t, jobID, v.AsInt64())
}

func TestRecordMetric_WithoutMetrics(t *testing.T) {
	t.Parallel()
	a := New(store.NewMemoryStore(), nil)
	assert.NoError(t, a.RecordMetric(context.Background(), RecordMetricInput{Event: telemetry.EventWorkflowAttempt}))
}
