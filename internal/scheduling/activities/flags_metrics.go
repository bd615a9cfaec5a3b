package activities

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.temporal.io/sdk/temporal"

	"github.com/stacklok/toolhive-sync-controller/internal/flags"
	"github.com/stacklok/toolhive-sync-controller/internal/otel"
	"github.com/stacklok/toolhive-sync-controller/internal/telemetry"
)

var zeroTime time.Time

// AttrFailureCause tags workflow failure counters.
const AttrFailureCause = attribute.Key("failure.cause")

// RecordMetricInput describes one counter increment.
type RecordMetricInput struct {
	ConnectionID uuid.UUID         `json:"connectionId"`
	JobID        *int64            `json:"jobId,omitempty"`
	Event        telemetry.Event   `json:"event"`
	FailureCause string            `json:"failureCause,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// GetFeatureFlags evaluates the boolean flags the controller branches on.
func (a *Activities) GetFeatureFlags(ctx context.Context, in ConnectionInput) (map[string]bool, error) {
	fc := flags.Context{ConnectionID: in.ConnectionID.String()}
	if ws, err := a.store.GetWorkspaceForConnection(ctx, in.ConnectionID); err == nil {
		fc.WorkspaceID = ws.ID.String()
		fc.OrganizationID = ws.OrganizationID.String()
	}
	return map[string]bool{
		flags.UseSyncV2: a.flags.Bool(ctx, flags.UseSyncV2, fc),
	}, nil
}

// RecordMetric increments the counter of the event.
func (a *Activities) RecordMetric(ctx context.Context, in RecordMetricInput) error {
	if !in.Event.Valid() {
		msg := fmt.Sprintf("unknown metric event %q", in.Event)
		return temporal.NewNonRetryableApplicationError(msg, "InvalidMetric", nil)
	}

	attrs := []attribute.KeyValue{otel.AttrConnectionID.String(in.ConnectionID.String())}
	if in.JobID != nil {
		attrs = append(attrs, otel.AttrJobID.Int64(*in.JobID))
	}
	if in.FailureCause != "" {
		attrs = append(attrs, AttrFailureCause.String(in.FailureCause))
	}
	keys := make([]string, 0, len(in.Attributes))
	for k := range in.Attributes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, in.Attributes[k]))
	}

	a.metrics.RecordCount(ctx, in.Event, attrs...)
	return nil
}
