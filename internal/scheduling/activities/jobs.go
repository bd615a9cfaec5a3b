package activities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stacklok/toolhive-sync-controller/internal/failures"
	"github.com/stacklok/toolhive-sync-controller/internal/otel"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
)

// cleanJobStateReason is recorded on jobs failed by EnsureCleanJobState.
const cleanJobStateReason = "Failing job in order to start from clean job state"

// JobCreationInput asks for a job for a connection.
type JobCreationInput struct {
	ConnectionID uuid.UUID `json:"connectionId"`
	Scheduled    bool      `json:"scheduled"`
}

// JobCreationOutput identifies the created (or reused) job.
type JobCreationOutput struct {
	JobID   int64 `json:"jobId"`
	IsReset bool  `json:"isReset"`
}

// AttemptCreationInput asks for a new attempt of a job.
type AttemptCreationInput struct {
	JobID int64 `json:"jobId"`
}

// AttemptFailureInput records a failed attempt.
type AttemptFailureInput struct {
	JobInput
	Summary *failures.Summary `json:"summary"`
}

// JobFailureInput records a job that gave up.
type JobFailureInput struct {
	JobInput
	Reason string `json:"reason"`
}

// JobCancelledInput records a cancelled job.
type JobCancelledInput struct {
	JobInput
	Summary *failures.Summary `json:"summary"`
}

// CreateNewJob creates a job for the connection, or returns the job already
// in flight. Pending stream resets turn the job into a reset job.
func (a *Activities) CreateNewJob(ctx context.Context, in JobCreationInput) (*JobCreationOutput, error) {
	ctx, span := otel.StartSpan(ctx, a.tracer, "activities.CreateNewJob")
	defer span.End()
	span.SetAttributes(otel.AttrConnectionID.String(in.ConnectionID.String()))

	resets, err := a.store.ListStreamResets(ctx, in.ConnectionID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list stream resets: %w", err)
	}

	req := store.CreateJobRequest{
		ConnectionID: in.ConnectionID,
		ConfigType:   store.JobConfigTypeSync,
		Scheduled:    in.Scheduled,
	}
	if len(resets) > 0 {
		req.ConfigType = store.JobConfigTypeReset
		req.ResetStreams = resets
	}

	jobID, err := a.store.CreateJob(ctx, req)
	if err != nil {
		otel.RecordError(span, err)
		return nil, wrapStoreErr(err, "failed to create job for connection %s", in.ConnectionID)
	}
	job, err := a.store.GetJob(ctx, jobID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, wrapStoreErr(err, "failed to load job %d", jobID)
	}
	span.SetAttributes(otel.AttrJobID.Int64(jobID))

	slog.InfoContext(ctx, "Job ready",
		"connection_id", in.ConnectionID, "job_id", jobID, "config_type", job.ConfigType, "scheduled", in.Scheduled)
	return &JobCreationOutput{JobID: jobID, IsReset: job.ConfigType == store.JobConfigTypeReset}, nil
}

// CreateNewAttemptNumber starts a new attempt and returns its 0-based number.
func (a *Activities) CreateNewAttemptNumber(ctx context.Context, in AttemptCreationInput) (int, error) {
	n, err := a.store.CreateAttempt(ctx, in.JobID)
	if err != nil {
		return 0, wrapStoreErr(err, "failed to create attempt for job %d", in.JobID)
	}
	return n, nil
}

// EnsureCleanJobState fails every job of the connection that a previous
// controller run left unfinished.
func (a *Activities) EnsureCleanJobState(ctx context.Context, in ConnectionInput) error {
	jobs, err := a.store.ListNonTerminalJobs(ctx, in.ConnectionID)
	if err != nil {
		return fmt.Errorf("failed to list non-terminal jobs: %w", err)
	}

	for _, job := range jobs {
		for _, attempt := range job.Attempts {
			if attempt.Status != store.AttemptStatusRunning {
				continue
			}
			summary := failures.NewSummary(
				[]failures.Reason{failures.CleanedJobStateFailure(job.ID, attempt.Number, a.now())}, nil)
			if err := a.store.FailAttempt(ctx, job.ID, attempt.Number, summary); err != nil {
				return fmt.Errorf("failed to fail attempt %d of job %d: %w", attempt.Number, job.ID, err)
			}
		}
		if err := a.store.FailJob(ctx, job.ID, cleanJobStateReason); err != nil {
			return fmt.Errorf("failed to fail job %d: %w", job.ID, err)
		}
		slog.WarnContext(ctx, "Failed orphaned job", "connection_id", in.ConnectionID, "job_id", job.ID)
	}
	return nil
}

// ReportJobStart records the first time the job started running.
func (a *Activities) ReportJobStart(ctx context.Context, in JobInput) error {
	if err := a.store.SetJobStarted(ctx, in.JobID, a.now()); err != nil {
		return wrapStoreErr(err, "failed to mark job %d started", in.JobID)
	}
	return nil
}

// JobSuccess marks the attempt and its job succeeded.
func (a *Activities) JobSuccess(ctx context.Context, in JobInput) error {
	if err := a.store.SucceedJob(ctx, in.JobID, in.AttemptNumber); err != nil {
		return wrapStoreErr(err, "failed to mark job %d succeeded", in.JobID)
	}
	slog.InfoContext(ctx, "Job succeeded",
		"connection_id", in.ConnectionID, "job_id", in.JobID, "attempt", in.AttemptNumber)
	return nil
}

// AttemptFailure persists a failed attempt with its failure summary.
func (a *Activities) AttemptFailure(ctx context.Context, in AttemptFailureInput) error {
	if err := a.store.FailAttempt(ctx, in.JobID, in.AttemptNumber, in.Summary); err != nil {
		return wrapStoreErr(err, "failed to fail attempt %d of job %d", in.AttemptNumber, in.JobID)
	}
	return nil
}

// JobFailure marks the job failed for good.
func (a *Activities) JobFailure(ctx context.Context, in JobFailureInput) error {
	if err := a.store.FailJob(ctx, in.JobID, in.Reason); err != nil {
		return wrapStoreErr(err, "failed to fail job %d", in.JobID)
	}
	slog.WarnContext(ctx, "Job failed",
		"connection_id", in.ConnectionID, "job_id", in.JobID, "reason", in.Reason)
	return nil
}

// JobCancelled fails the current attempt with the summary and cancels the job.
func (a *Activities) JobCancelled(ctx context.Context, in JobCancelledInput) error {
	if err := a.store.CancelJob(ctx, in.JobID, in.AttemptNumber, in.Summary); err != nil {
		return wrapStoreErr(err, "failed to cancel job %d", in.JobID)
	}
	slog.InfoContext(ctx, "Job cancelled", "connection_id", in.ConnectionID, "job_id", in.JobID)
	return nil
}

// IsLastJobOrAttemptFailure reports whether the run about to start follows a
// failure: either a previous attempt of the same job, or the previous job of
// the connection did not succeed.
func (a *Activities) IsLastJobOrAttemptFailure(ctx context.Context, in JobInput) (bool, error) {
	if in.AttemptNumber > 0 {
		return true, nil
	}

	jobs, err := a.store.ListJobsSince(ctx, in.ConnectionID, zeroTime)
	if err != nil {
		return false, fmt.Errorf("failed to list jobs of connection %s: %w", in.ConnectionID, err)
	}
	for _, job := range jobs {
		if job.ID == in.JobID || !job.Status.IsTerminal() {
			continue
		}
		return job.Status != store.JobStatusSucceeded, nil
	}
	return false, nil
}

// CheckRunProgress reports whether the attempt committed any record.
func (a *Activities) CheckRunProgress(ctx context.Context, in JobInput) (bool, error) {
	job, err := a.store.GetJob(ctx, in.JobID)
	if err != nil {
		return false, wrapStoreErr(err, "failed to load job %d", in.JobID)
	}
	for _, attempt := range job.Attempts {
		if attempt.Number == in.AttemptNumber {
			return attempt.RecordsCommitted > 0, nil
		}
	}
	return false, nil
}

// DeleteStreamResetRecordsForJob clears the pending resets a finished reset
// job took care of.
func (a *Activities) DeleteStreamResetRecordsForJob(ctx context.Context, in JobInput) error {
	job, err := a.store.GetJob(ctx, in.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load job %d: %w", in.JobID, err)
	}
	if job.ConfigType != store.JobConfigTypeReset || len(job.ResetStreams) == 0 {
		return nil
	}
	if err := a.store.DeleteStreamResets(ctx, job.ConnectionID, job.ResetStreams); err != nil {
		return fmt.Errorf("failed to delete stream resets of job %d: %w", in.JobID, err)
	}
	return nil
}
