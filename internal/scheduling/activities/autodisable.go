package activities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stacklok/toolhive-sync-controller/internal/otel"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
	"github.com/stacklok/toolhive-sync-controller/internal/telemetry"
)

// Reasons recorded on auto-disabled connections.
const (
	ReasonTooManyFailedJobsInARow = "TOO_MANY_CONSECUTIVE_FAILED_JOBS_IN_A_ROW"
	ReasonOnlyFailedJobsRecently  = "ONLY_FAILED_JOBS_RECENTLY"
)

// AutoDisableOutput reports what AutoDisableConnection did.
type AutoDisableOutput struct {
	Disabled bool `json:"disabled"`
	Warned   bool `json:"warned"`
}

// AutoDisableConnection disables an active connection whose recent jobs keep
// failing. A connection is disabled when MaxFailedJobsInARow jobs failed in
// a row, or when every job of the last MaxDaysOfOnlyFailedJobs days failed.
// Reaching half of either threshold records a warning once.
func (a *Activities) AutoDisableConnection(ctx context.Context, in ConnectionInput) (*AutoDisableOutput, error) {
	ctx, span := otel.StartSpan(ctx, a.tracer, "activities.AutoDisableConnection")
	defer span.End()
	span.SetAttributes(otel.AttrConnectionID.String(in.ConnectionID.String()))

	conn, err := a.store.GetConnection(ctx, in.ConnectionID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, wrapStoreErr(err, "failed to load connection %s", in.ConnectionID)
	}
	if conn.Status != store.ConnectionStatusActive {
		return &AutoDisableOutput{}, nil
	}

	now := a.now()
	maxDays := time.Duration(a.settings.MaxDaysOfOnlyFailedJobs) * 24 * time.Hour
	cutoff := now.Add(-maxDays)
	halfCutoff := now.Add(-maxDays / 2)

	jobs, err := a.store.ListJobsSince(ctx, in.ConnectionID, cutoff)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list recent jobs: %w", err)
	}

	failed := 0
	var lastSuccess *time.Time
	for _, job := range jobs {
		if job.Status == store.JobStatusCancelled {
			continue
		}
		if job.Status == store.JobStatusSucceeded {
			at := job.UpdatedAt
			lastSuccess = &at
			break
		}
		if job.Status == store.JobStatusFailed {
			failed++
		}
	}
	if failed == 0 {
		return &AutoDisableOutput{}, nil
	}

	maxInARow := a.settings.MaxFailedJobsInARow
	if failed >= maxInARow {
		return a.disable(ctx, conn, ReasonTooManyFailedJobsInARow, failed)
	}
	if failed == maxInARow/2 {
		return a.warn(ctx, conn, lastSuccess, cutoff, "half of the consecutive failed jobs allowed")
	}

	first, err := a.store.FirstJob(ctx, in.ConnectionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &AutoDisableOutput{}, nil
		}
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to load first job: %w", err)
	}

	if lastSuccess == nil && first.CreatedAt.Before(cutoff) {
		return a.disable(ctx, conn, ReasonOnlyFailedJobsRecently, failed)
	}
	if (lastSuccess == nil || lastSuccess.Before(halfCutoff)) && first.CreatedAt.Before(halfCutoff) {
		return a.warn(ctx, conn, lastSuccess, cutoff, "only failed jobs for half of the allowed days")
	}
	return &AutoDisableOutput{}, nil
}

func (a *Activities) disable(ctx context.Context, conn *store.Connection, reason string, failed int) (*AutoDisableOutput, error) {
	if err := a.store.SetConnectionStatus(ctx, conn.ID, store.ConnectionStatusInactive, reason); err != nil {
		return nil, wrapStoreErr(err, "failed to disable connection %s", conn.ID)
	}
	slog.WarnContext(ctx, "Connection auto-disabled",
		"connection_id", conn.ID, "reason", reason, "failed_jobs", failed)
	a.metrics.RecordCount(ctx, telemetry.EventConnectionAutoDisabled, otel.AttrConnectionID.String(conn.ID.String()))
	return &AutoDisableOutput{Disabled: true}, nil
}

func (a *Activities) warn(
	ctx context.Context, conn *store.Connection, lastSuccess *time.Time, cutoff time.Time, why string,
) (*AutoDisableOutput, error) {
	if w := conn.AutoDisableWarnedAt; w != nil && w.After(cutoff) && (lastSuccess == nil || w.After(*lastSuccess)) {
		return &AutoDisableOutput{}, nil
	}
	if err := a.store.MarkAutoDisableWarning(ctx, conn.ID, a.now()); err != nil {
		return nil, wrapStoreErr(err, "failed to record auto-disable warning for %s", conn.ID)
	}
	slog.WarnContext(ctx, "Connection is close to being auto-disabled", "connection_id", conn.ID, "why", why)
	a.metrics.RecordCount(ctx, telemetry.EventConnectionAutoDisableWarn, otel.AttrConnectionID.String(conn.ID.String()))
	return &AutoDisableOutput{Warned: true}, nil
}
