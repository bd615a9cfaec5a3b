package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNewMeterProvider(t *testing.T) {
	t.Parallel()

	disabledPush := false

	tests := []struct {
		name       string
		config     *Config
		registerer prometheus.Registerer
		expectNoOp bool
	}{
		{
			name:       "no config gives no-op provider",
			expectNoOp: true,
		},
		{
			name:       "disabled metrics give no-op provider",
			config:     &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: false}},
			expectNoOp: true,
		},
		{
			name: "otlp push",
			config: &Config{
				Enabled:  true,
				Insecure: true,
				Metrics:  &MetricsConfig{Enabled: true, Interval: 5 * time.Second},
			},
		},
		{
			name: "prometheus only",
			config: &Config{
				Enabled: true,
				Metrics: &MetricsConfig{Enabled: true, Prometheus: true, OTLP: &disabledPush},
			},
			registerer: prometheus.NewRegistry(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			mp, err := NewMeterProvider(ctx, tt.config, tt.registerer)
			require.NoError(t, err)
			require.NotNil(t, mp)

			if tt.expectNoOp {
				_, ok := mp.(noop.MeterProvider)
				assert.True(t, ok, "expected no-op meter provider")
				return
			}

			sdkMP, ok := mp.(*sdkmetric.MeterProvider)
			require.True(t, ok, "expected SDK meter provider")
			// no collector is running, so flush errors on shutdown are expected
			_ = sdkMP.Shutdown(ctx)
		})
	}
}

func TestNewMeterProvider_PrometheusRegistersOnRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry := prometheus.NewRegistry()
	noPush := false

	mp, err := NewMeterProvider(ctx, &Config{
		Enabled: true,
		Metrics: &MetricsConfig{Enabled: true, Prometheus: true, OTLP: &noPush},
	}, registry)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.(*sdkmetric.MeterProvider).Shutdown(ctx) })

	metrics, err := NewControllerMetrics(mp)
	require.NoError(t, err)
	metrics.RecordCount(ctx, EventWorkflowAttempt)

	families, err := registry.Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if strings.HasSuffix(f.GetName(), "temporal_workflow_attempt_total") {
			found = true
		}
	}
	assert.True(t, found, "attempt counter not exported")
}
