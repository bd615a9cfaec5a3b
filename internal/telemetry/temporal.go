package telemetry

import (
	"fmt"

	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
)

// InstrumentTemporal makes a Temporal client trace workflow and activity
// calls and report SDK metrics through this telemetry's providers. The
// interceptor propagates span context into workflows and activities, so
// activity spans join the trace of the controller that scheduled them.
func (t *Telemetry) InstrumentTemporal(opts *client.Options, instrumentationName string) error {
	tracing, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{
		Tracer: t.Tracer(instrumentationName),
	})
	if err != nil {
		return fmt.Errorf("failed to create tracing interceptor: %w", err)
	}
	opts.Interceptors = append(opts.Interceptors, interceptor.ClientInterceptor(tracing))
	opts.MetricsHandler = temporalotel.NewMetricsHandler(temporalotel.MetricsHandlerOptions{
		Meter: t.Meter(instrumentationName),
	})
	return nil
}
