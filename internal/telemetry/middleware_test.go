package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func opsRouter(mw func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mw)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	r.Get("/checks/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestNewOpsHTTPMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewOpsHTTPMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("nil metrics pass requests through", func(t *testing.T) {
		t.Parallel()

		mw, err := MetricsMiddleware(nil)
		require.NoError(t, err)
		rr := httptest.NewRecorder()
		opsRouter(mw).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestOpsHTTPMetrics_Middleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		route  string
		status string
	}{
		{name: "liveness", path: "/health", route: "/health", status: "200"},
		{name: "failing readiness", path: "/readiness", route: "/readiness", status: "503"},
		{name: "path parameters use the pattern", path: "/checks/temporal", route: "/checks/{name}", status: "200"},
		{name: "unrouted path", path: "/wp-admin", route: unmatchedRoute, status: "404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

			mw, err := MetricsMiddleware(mp)
			require.NoError(t, err)
			opsRouter(mw).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			rm := collect(t, reader)
			m := findMetric(rm, "thv_sync_ops_http_requests_total")
			require.NotNil(t, m)
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			dp := sum.DataPoints[0]
			assert.Equal(t, int64(1), dp.Value)
			route, _ := dp.Attributes.Value(attribute.Key("route"))
			assert.Equal(t, tt.route, route.AsString())
			status, _ := dp.Attributes.Value(attribute.Key("status_code"))
			assert.Equal(t, tt.status, status.AsString())

			hist := findMetric(rm, "thv_sync_ops_http_request_duration_seconds")
			require.NotNil(t, hist)
			assert.Len(t, hist.Data.(metricdata.Histogram[float64]).DataPoints, 1)

			inFlight := findMetric(rm, "thv_sync_ops_http_in_flight_requests")
			require.NotNil(t, inFlight)
			gauge := inFlight.Data.(metricdata.Sum[int64])
			require.Len(t, gauge.DataPoints, 1)
			assert.Zero(t, gauge.DataPoints[0].Value)
		})
	}
}

func TestOpsHTTPMetrics_Scope(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	mw, err := MetricsMiddleware(mp)
	require.NoError(t, err)
	router := opsRouter(mw)
	for range 3 {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	}

	rm := collect(t, reader)
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, OpsHTTPMeterName, rm.ScopeMetrics[0].Scope.Name)
	m := findMetric(rm, "thv_sync_ops_http_requests_total")
	require.NotNil(t, m)
	assert.Equal(t, int64(3), m.Data.(metricdata.Sum[int64]).DataPoints[0].Value)
}
