package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/stacklok/toolhive-sync-controller/internal/connectors"
	"github.com/stacklok/toolhive-sync-controller/internal/failures"
	"github.com/stacklok/toolhive-sync-controller/internal/otel"
	"github.com/stacklok/toolhive-sync-controller/internal/scheduling/activities"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
	"github.com/stacklok/toolhive-sync-controller/internal/telemetry"
)

const (
	defaultPollInterval = 5 * time.Second
	cancelTimeout       = 30 * time.Second
)

// Activities runs connector commands for the replication workflows.
type Activities struct {
	connectors   connectors.Client
	store        store.Store
	metrics      *telemetry.SyncMetrics
	tracer       trace.Tracer
	pollInterval time.Duration
	now          func() time.Time
}

// Option configures Activities.
type Option func(*Activities)

// WithPollInterval sets how often command status is polled.
func WithPollInterval(d time.Duration) Option {
	return func(a *Activities) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

// WithSyncMetrics records replication durations.
func WithSyncMetrics(m *telemetry.SyncMetrics) Option {
	return func(a *Activities) {
		a.metrics = m
	}
}

// WithTracer sets the tracer used for replication spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Activities) {
		a.tracer = t
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Activities) {
		a.now = now
	}
}

// NewActivities creates the replication activities.
func NewActivities(c connectors.Client, s store.Store, opts ...Option) *Activities {
	a := &Activities{
		connectors:   c,
		store:        s,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunCheck runs a check command and waits for its verdict. A command that
// fails or is cancelled counts as a failed check.
func (a *Activities) RunCheck(ctx context.Context, in CheckConnectionInput) (*CheckConnectionOutput, error) {
	ctx, span := otel.StartSpan(ctx, a.tracer, "replication.RunCheck")
	defer span.End()
	span.SetAttributes(otel.JobAttributes(in.ConnectionID.String(), in.JobID, in.AttemptNumber)...)

	id, err := a.connectors.StartCheck(ctx, connectors.CheckRequest{
		CommandID:    fmt.Sprintf("check_%d_%d_%s", in.JobID, in.AttemptNumber, in.ActorType),
		ActorType:    in.ActorType,
		ActorID:      in.ActorID.String(),
		DefinitionID: in.DefinitionID.String(),
		WorkspaceID:  in.WorkspaceID.String(),
		JobID:        in.JobID,
		Attempt:      in.AttemptNumber,
	})
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to start %s check: %w", in.ActorType, err)
	}

	_, err = a.wait(ctx, id)
	switch {
	case ctx.Err() != nil:
		a.cancel(ctx, id)
		return nil, ctx.Err()
	case errors.Is(err, connectors.ErrCommandFailed), errors.Is(err, connectors.ErrCommandCancelled):
		return &CheckConnectionOutput{Message: err.Error()}, nil
	case err != nil:
		otel.RecordError(span, err)
		return nil, err
	}

	out, err := a.connectors.CheckOutput(ctx, id)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to read check output: %w", err)
	}
	return &CheckConnectionOutput{Succeeded: out.Succeeded, Message: out.Message}, nil
}

// HydrateSyncInput loads the connection context and the reset streams of a job.
func (a *Activities) HydrateSyncInput(ctx context.Context, in SyncInputV2) (*SyncInput, error) {
	conn, err := a.store.GetConnection(ctx, in.ConnectionID)
	if err != nil {
		return nil, notFoundIsFinal(err, "failed to load connection %s", in.ConnectionID)
	}
	ws, err := a.store.GetWorkspaceForConnection(ctx, in.ConnectionID)
	if err != nil {
		return nil, notFoundIsFinal(err, "failed to load workspace of connection %s", in.ConnectionID)
	}
	job, err := a.store.GetJob(ctx, in.JobID)
	if err != nil {
		return nil, notFoundIsFinal(err, "failed to load job %d", in.JobID)
	}
	return &SyncInput{
		JobID:         in.JobID,
		AttemptNumber: in.AttemptNumber,
		ConnectionContext: activities.ConnectionContext{
			ConnectionID:            conn.ID,
			WorkspaceID:             ws.ID,
			OrganizationID:          ws.OrganizationID,
			SourceID:                conn.SourceID,
			DestinationID:           conn.DestinationID,
			SourceDefinitionID:      conn.SourceDefinitionID,
			DestinationDefinitionID: conn.DestinationDefinitionID,
		},
		IsReset:      job.ConfigType == store.JobConfigTypeReset,
		ResetStreams: job.ResetStreams,
	}, nil
}

// Replicate runs the replication command of one attempt and records what it
// committed.
func (a *Activities) Replicate(ctx context.Context, in SyncInput) (*SyncOutput, error) {
	cc := in.ConnectionContext
	ctx, span := otel.StartSpan(ctx, a.tracer, "replication.Replicate")
	defer span.End()
	span.SetAttributes(otel.JobAttributes(cc.ConnectionID.String(), in.JobID, in.AttemptNumber)...)

	if in.IsReset && len(in.ResetStreams) == 0 {
		job, err := a.store.GetJob(ctx, in.JobID)
		if err != nil {
			return nil, notFoundIsFinal(err, "failed to load job %d", in.JobID)
		}
		in.ResetStreams = job.ResetStreams
	}

	start := a.now()
	id, err := a.connectors.StartReplication(ctx, connectors.ReplicationRequest{
		CommandID:     fmt.Sprintf("sync_%d_%d", in.JobID, in.AttemptNumber),
		ConnectionID:  cc.ConnectionID.String(),
		WorkspaceID:   cc.WorkspaceID.String(),
		SourceID:      cc.SourceID.String(),
		DestinationID: cc.DestinationID.String(),
		JobID:         in.JobID,
		Attempt:       in.AttemptNumber,
		IsReset:       in.IsReset,
		ResetStreams:  streamRefs(in.ResetStreams),
	})
	if err != nil {
		otel.RecordError(span, err)
		launchErr := &failures.LaunchError{Err: err}
		return nil, temporal.NewApplicationErrorWithCause(launchErr.Error(), failures.LaunchErrorType, err)
	}

	status, err := a.wait(ctx, id)
	switch {
	case ctx.Err() != nil:
		a.cancel(ctx, id)
		return nil, ctx.Err()
	case errors.Is(err, connectors.ErrCommandCancelled):
		a.metrics.RecordSyncDuration(ctx, cc.ConnectionID.String(), a.now().Sub(start), string(SyncStatusCancelled))
		return &SyncOutput{Status: SyncStatusCancelled}, nil
	case err != nil && !errors.Is(err, connectors.ErrCommandFailed):
		otel.RecordError(span, err)
		return nil, err
	}

	res, err := a.connectors.ReplicationOutput(ctx, id)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to read replication output: %w", err)
	}
	if err := a.store.SetAttemptStats(ctx, in.JobID, in.AttemptNumber, res.RecordsCommitted, res.BytesCommitted); err != nil {
		return nil, fmt.Errorf("failed to record attempt stats: %w", err)
	}

	out := &SyncOutput{
		Status:           SyncStatusSucceeded,
		RecordsCommitted: res.RecordsCommitted,
		BytesCommitted:   res.BytesCommitted,
		PartialSuccess:   res.PartialSuccess,
	}
	if status == connectors.CommandStatusFailed {
		out.Status = SyncStatusFailed
		reason := replicationFailure(res, in.JobID, in.AttemptNumber, a.now())
		out.Failures = []failures.Reason{reason}
		span.SetAttributes(
			otel.AttrFailureOrigin.String(string(reason.Origin)),
			otel.AttrFailureType.String(string(reason.Type)),
		)
	}
	a.metrics.RecordSyncDuration(ctx, cc.ConnectionID.String(), a.now().Sub(start), string(out.Status))
	span.SetAttributes(otel.AttrResultCount.Int64(out.RecordsCommitted))
	return out, nil
}

// RefreshMetadata asks the command service to refresh connector metadata
// after a job finished.
func (a *Activities) RefreshMetadata(ctx context.Context, in PostSyncInput) error {
	if err := a.connectors.RefreshMetadata(ctx, in.ConnectionID.String()); err != nil {
		var httpErr *connectors.HTTPError
		if errors.As(err, &httpErr) && !httpErr.Retryable() {
			return temporal.NewNonRetryableApplicationError(err.Error(), "RefreshRejected", err)
		}
		return fmt.Errorf("failed to refresh metadata of connection %s: %w", in.ConnectionID, err)
	}
	slog.DebugContext(ctx, "Refreshed connector metadata",
		"connection_id", in.ConnectionID, "job_id", in.JobID, "job_status", in.JobStatus)
	return nil
}

// wait polls the command and heartbeats on every poll.
func (a *Activities) wait(ctx context.Context, id string) (connectors.CommandStatus, error) {
	return connectors.Wait(ctx, a.connectors, id,
		connectors.WithPollInterval(a.pollInterval),
		connectors.WithOnPoll(func(s connectors.CommandStatus) {
			activity.RecordHeartbeat(ctx, s)
		}),
	)
}

// cancel stops a command whose activity was cancelled.
func (a *Activities) cancel(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := a.connectors.Cancel(ctx, id); err != nil {
		slog.WarnContext(ctx, "Failed to cancel connector command", "command_id", id, "error", err)
	}
}

func replicationFailure(res *connectors.ReplicationOutput, jobID int64, attempt int, now time.Time) failures.Reason {
	msg := res.FailureMessage
	if msg == "" {
		msg = "replication command failed"
	}
	r := failures.ReplicationFailure(errors.New(msg), jobID, attempt, now)
	r.Type = failures.TypeSystemError
	switch t := failures.Type(res.FailureType); t {
	case failures.TypeConfigError:
		r.Type = t
		r.Retryable = false
	case failures.TypeTransientError, failures.TypeHeartbeatTimeout:
		r.Type = t
	}
	switch failures.Origin(res.FailureOrigin) {
	case failures.OriginSource:
		r.Origin = failures.OriginSource
	case failures.OriginDestination:
		r.Origin = failures.OriginDestination
	}
	return r
}

func notFoundIsFinal(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, store.ErrNotFound) {
		return temporal.NewNonRetryableApplicationError(msg, "NotFound", err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
