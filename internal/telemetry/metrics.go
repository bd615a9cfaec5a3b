package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// ControllerMetricsMeterName is the meter used for connection manager events
	ControllerMetricsMeterName = "github.com/stacklok/toolhive-sync-controller/scheduling"

	// SyncMetricsMeterName is the meter used for replication timings
	SyncMetricsMeterName = "github.com/stacklok/toolhive-sync-controller/replication"

	metricPrefix = "thv_sync_"
)

// Event names a counter emitted by the connection manager.
type Event string

// Counters recorded by the connection manager workflow.
const (
	EventWorkflowAttempt           Event = "temporal_workflow_attempt"
	EventWorkflowSuccess           Event = "temporal_workflow_success"
	EventWorkflowFailure           Event = "temporal_workflow_failure"
	EventActivityFailure           Event = "activity_failure"
	EventReplicationMadeProgress   Event = "replication_made_progress"
	EventConnectionAutoDisabled    Event = "connection_auto_disabled"
	EventConnectionAutoDisableWarn Event = "connection_auto_disable_warning"
)

var eventDescriptions = map[Event]string{
	EventWorkflowAttempt:           "Number of connection manager runs started",
	EventWorkflowSuccess:           "Number of jobs that completed successfully",
	EventWorkflowFailure:           "Number of jobs that failed terminally",
	EventActivityFailure:           "Number of mandatory activity failures",
	EventReplicationMadeProgress:   "Number of failed attempts that still moved data",
	EventConnectionAutoDisabled:    "Number of connections disabled after repeated failures",
	EventConnectionAutoDisableWarn: "Number of warnings sent ahead of auto-disable",
}

// Events returns every known event name.
func Events() []Event {
	out := make([]Event, 0, len(eventDescriptions))
	for e := range eventDescriptions {
		out = append(out, e)
	}
	return out
}

// Valid reports whether e is a known event.
func (e Event) Valid() bool {
	_, ok := eventDescriptions[e]
	return ok
}

// ControllerMetrics holds one counter per Event.
type ControllerMetrics struct {
	counters map[Event]metric.Int64Counter
}

// NewControllerMetrics creates the counters on the given provider.
// If provider is nil, it returns nil (no-op metrics).
func NewControllerMetrics(provider metric.MeterProvider) (*ControllerMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(ControllerMetricsMeterName)
	counters := make(map[Event]metric.Int64Counter, len(eventDescriptions))
	for event, desc := range eventDescriptions {
		c, err := meter.Int64Counter(
			metricPrefix+string(event),
			metric.WithDescription(desc),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", event, err)
		}
		counters[event] = c
	}

	return &ControllerMetrics{counters: counters}, nil
}

// RecordCount adds one to the counter for event. Unknown events are dropped.
func (m *ControllerMetrics) RecordCount(ctx context.Context, event Event, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	c, ok := m.counters[event]
	if !ok {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// SyncMetrics holds the instruments for replication runs
type SyncMetrics struct {
	syncDuration metric.Float64Histogram
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		metricPrefix+"replication_duration_seconds",
		metric.WithDescription("Duration of replication attempts in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{syncDuration: syncDuration}, nil
}

// RecordSyncDuration records how long a replication attempt ran
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, connectionID string, duration time.Duration, status string) {
	if m == nil || m.syncDuration == nil {
		return
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("connection_id", connectionID),
		attribute.String("status", status),
	))
}
