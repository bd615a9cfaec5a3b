package activities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.temporal.io/sdk/temporal"

	"github.com/stacklok/toolhive-sync-controller/internal/flags"
	"github.com/stacklok/toolhive-sync-controller/internal/otel"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
)

// NeverRun is the wait returned for connections that are not scheduled.
const NeverRun = 100 * 365 * 24 * time.Hour

// minCronInterval keeps cron connections from starting twice in a row when a
// job ran just before its fire time.
const minCronInterval = 60 * time.Second

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// IsWorkspaceTombstoned reports whether the workspace of the connection was deleted.
func (a *Activities) IsWorkspaceTombstoned(ctx context.Context, in ConnectionInput) (bool, error) {
	ws, err := a.store.GetWorkspaceForConnection(ctx, in.ConnectionID)
	if err != nil {
		return false, wrapStoreErr(err, "failed to load workspace of connection %s", in.ConnectionID)
	}
	return ws.Tombstone, nil
}

// GetConnectionContext hydrates the ids a controller run carries around.
func (a *Activities) GetConnectionContext(ctx context.Context, in ConnectionInput) (*ConnectionContext, error) {
	ctx, span := otel.StartSpan(ctx, a.tracer, "activities.GetConnectionContext")
	defer span.End()
	span.SetAttributes(otel.AttrConnectionID.String(in.ConnectionID.String()))

	conn, err := a.store.GetConnection(ctx, in.ConnectionID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, wrapStoreErr(err, "failed to load connection %s", in.ConnectionID)
	}
	ws, err := a.store.GetWorkspaceForConnection(ctx, in.ConnectionID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, wrapStoreErr(err, "failed to load workspace of connection %s", in.ConnectionID)
	}
	return &ConnectionContext{
		ConnectionID:            conn.ID,
		WorkspaceID:             ws.ID,
		OrganizationID:          ws.OrganizationID,
		SourceID:                conn.SourceID,
		DestinationID:           conn.DestinationID,
		SourceDefinitionID:      conn.SourceDefinitionID,
		DestinationDefinitionID: conn.DestinationDefinitionID,
	}, nil
}

// GetLoadShedBackoff returns how long the controller should hold off before
// doing any work. Zero means no load shedding.
func (a *Activities) GetLoadShedBackoff(ctx context.Context, in ConnectionContext) (time.Duration, error) {
	seconds := a.flags.Int(ctx, flags.LoadShedBackoffSeconds, in.FlagContext())
	if seconds <= 0 {
		return 0, nil
	}
	d := time.Duration(seconds) * time.Second
	if d > a.settings.LoadShedUpperBound {
		d = a.settings.LoadShedUpperBound
	}
	slog.InfoContext(ctx, "Connection is load shed", "connection_id", in.ConnectionID, "backoff", d)
	return d, nil
}

// GetTimeToWait returns how long until the next scheduled run of the connection.
func (a *Activities) GetTimeToWait(ctx context.Context, in ConnectionInput) (time.Duration, error) {
	conn, err := a.store.GetConnection(ctx, in.ConnectionID)
	if err != nil {
		return 0, wrapStoreErr(err, "failed to load connection %s", in.ConnectionID)
	}
	if conn.Status != store.ConnectionStatusActive || conn.Schedule.Type == store.ScheduleTypeManual {
		return NeverRun, nil
	}

	var lastStart *time.Time
	last, err := a.store.LastJob(ctx, in.ConnectionID)
	switch {
	case err == nil:
		started := last.CreatedAt
		if last.StartedAt != nil {
			started = *last.StartedAt
		}
		lastStart = &started
	case errors.Is(err, store.ErrNotFound):
	default:
		return 0, fmt.Errorf("failed to load last job of connection %s: %w", in.ConnectionID, err)
	}

	now := a.now()
	switch conn.Schedule.Type {
	case store.ScheduleTypeBasic:
		return basicWait(conn.Schedule.Interval, lastStart, now), nil
	case store.ScheduleTypeCron:
		wait, err := cronWait(conn.Schedule, lastStart, now)
		if err != nil {
			return 0, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidSchedule", err)
		}
		return wait, nil
	default:
		return NeverRun, nil
	}
}

func basicWait(interval time.Duration, lastStart *time.Time, now time.Time) time.Duration {
	if lastStart == nil || interval <= 0 {
		return 0
	}
	wait := lastStart.Add(interval).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

func cronWait(s store.Schedule, lastStart *time.Time, now time.Time) (time.Duration, error) {
	loc := time.UTC
	if s.CronTimeZone != "" {
		l, err := time.LoadLocation(s.CronTimeZone)
		if err != nil {
			return 0, fmt.Errorf("invalid cron time zone %q: %w", s.CronTimeZone, err)
		}
		loc = l
	}
	sched, err := cronParser.Parse(s.CronExpression)
	if err != nil {
		return 0, fmt.Errorf("invalid cron expression %q: %w", s.CronExpression, err)
	}

	from := now
	if lastStart != nil {
		from = *lastStart
	}
	next := sched.Next(from.In(loc))
	if lastStart != nil && next.Before(lastStart.Add(minCronInterval)) {
		next = sched.Next(lastStart.Add(minCronInterval).In(loc))
	}

	wait := next.Sub(now)
	if wait < 0 {
		return 0, nil
	}
	return wait, nil
}

// GetMaxAttempt returns the attempt budget used when no retry state exists.
func (a *Activities) GetMaxAttempt(_ context.Context) (int, error) {
	return a.settings.MaxAttempts, nil
}

// GetWorkflowRestartDelay returns the delay slept before restarting a
// controller whose activity failed.
func (a *Activities) GetWorkflowRestartDelay(_ context.Context) (time.Duration, error) {
	return a.settings.WorkflowRestartDelay, nil
}
