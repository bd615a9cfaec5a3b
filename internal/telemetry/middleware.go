package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// OpsHTTPMeterName is the meter used for requests to the ops server
	OpsHTTPMeterName = "github.com/stacklok/toolhive-sync-controller/ops"

	// unmatchedRoute replaces the path of requests chi did not route, so
	// scanners hitting random paths do not create new series.
	unmatchedRoute = "unmatched"
)

// OpsHTTPMetrics counts and times requests served by the ops server.
type OpsHTTPMetrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// NewOpsHTTPMetrics creates the instruments on the given provider.
// If provider is nil, it returns nil (no-op metrics).
func NewOpsHTTPMetrics(provider metric.MeterProvider) (*OpsHTTPMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(OpsHTTPMeterName)

	duration, err := meter.Float64Histogram(
		metricPrefix+"ops_http_request_duration_seconds",
		metric.WithDescription("Latency of ops server requests in seconds"),
		metric.WithUnit("s"),
		// readiness checks give up after three seconds
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3, 5),
	)
	if err != nil {
		return nil, err
	}
	requests, err := meter.Int64Counter(
		metricPrefix+"ops_http_requests_total",
		metric.WithDescription("Number of ops server requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter(
		metricPrefix+"ops_http_in_flight_requests",
		metric.WithDescription("Number of ops server requests being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &OpsHTTPMetrics{duration: duration, requests: requests, inFlight: inFlight}, nil
}

// Middleware records one sample per request, labelled by chi route pattern.
// A nil receiver passes requests through.
func (m *OpsHTTPMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// r.Context() may be cancelled once ServeHTTP returns
		ctx := r.Context()
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		m.inFlight.Add(ctx, 1)
		next.ServeHTTP(ww, r)
		m.inFlight.Add(ctx, -1)

		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", routePattern(r)),
			attribute.String("status_code", strconv.Itoa(ww.Status())),
		)
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		m.requests.Add(ctx, 1, attrs)
	})
}

// MetricsMiddleware builds the ops request metrics middleware from a provider.
func MetricsMiddleware(provider metric.MeterProvider) (func(http.Handler) http.Handler, error) {
	m, err := NewOpsHTTPMetrics(provider)
	if err != nil {
		return nil, err
	}
	return m.Middleware, nil
}

// routePattern is only populated once chi has routed the request, so callers
// read it after next.ServeHTTP.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}
