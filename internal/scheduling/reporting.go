package scheduling

import (
	"fmt"
	"strconv"

	"go.temporal.io/sdk/workflow"

	"github.com/stacklok/toolhive-sync-controller/internal/failures"
	"github.com/stacklok/toolhive-sync-controller/internal/replication"
	"github.com/stacklok/toolhive-sync-controller/internal/scheduling/activities"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
	"github.com/stacklok/toolhive-sync-controller/internal/telemetry"
)

const unknownFailureReason = "Unknown failure reason"

func (c *controller) reportSuccess(ctx workflow.Context, job activities.JobInput) error {
	c.state.Success = true
	if err := runMandatoryVoid(ctx, c, acts.JobSuccess, job); err != nil {
		return err
	}
	if err := c.runEndOfSyncHooks(ctx, store.JobStatusSucceeded); err != nil {
		return err
	}
	if err := runMandatoryVoid(ctx, c, acts.DeleteStreamResetRecordsForJob, job); err != nil {
		return err
	}
	if err := c.recordMetric(ctx, telemetry.EventWorkflowSuccess, "", nil); err != nil {
		return err
	}
	workflow.GetLogger(ctx).Info("Job succeeded", "connection_id", job.ConnectionID, "job_id", job.JobID)
	resetInput(&c.input)
	return nil
}

// reportFailure records the failed attempt, then either schedules a retry of
// the same job through in or fails the job for good. override replaces the
// failures accumulated by the cycle.
func (c *controller) reportFailure(
	ctx workflow.Context,
	in *ControllerInput,
	out *replication.SyncOutput,
	cause FailureCause,
	override []failures.Reason,
) error {
	logger := workflow.GetLogger(ctx)
	jobID, attempt := c.currentJob()
	job := activities.JobInput{JobID: jobID, AttemptNumber: attempt, ConnectionID: in.ConnectionID}

	reasons := override
	if len(reasons) == 0 {
		reasons = c.cycle.failures.Items()
	}
	if err := runMandatoryVoid(ctx, c, acts.AttemptFailure, activities.AttemptFailureInput{
		JobInput: job,
		Summary:  failures.NewSummary(reasons, c.cycle.partialSuccess),
	}); err != nil {
		return err
	}

	madeProgress := runWithFallback(ctx, c, acts.CheckRunProgress, "CheckRunProgress", false, job)
	c.accumulateFailureAndPersist(ctx, job, madeProgress)

	var failureType failures.Type
	if out != nil {
		failureType = failures.FirstType(out.Failures)
	}

	canRetry, err := c.withinRetryLimit(ctx, in.AttemptNumber)
	if err != nil {
		return err
	}
	if canRetry && failureType != failures.TypeConfigError {
		in.AttemptNumber++
		in.FromFailure = true
		logger.Info("Attempt failed, retrying",
			"connection_id", in.ConnectionID, "job_id", jobID, "next_attempt", in.AttemptNumber, "cause", cause)
		if madeProgress {
			c.recordProgressMetric(ctx, cause, true, attempt)
		}
		return nil
	}

	reason := fmt.Sprintf("Job failed after too many retries for connection %s", in.ConnectionID)
	if failureType == failures.TypeConfigError {
		reason = unknownFailureReason
		if len(reasons) > 0 && reasons[0].InternalMessage != "" {
			reason = reasons[0].InternalMessage
		}
	}
	if err := c.failJob(ctx, in, job, reason); err != nil {
		return err
	}
	if err := c.recordMetric(ctx, telemetry.EventWorkflowFailure, cause, map[string]string{
		"made_progress": strconv.FormatBool(madeProgress),
	}); err != nil {
		return err
	}
	if madeProgress {
		c.recordProgressMetric(ctx, cause, false, attempt)
	}
	resetInput(in)
	return nil
}

func (c *controller) failJob(ctx workflow.Context, in *ControllerInput, job activities.JobInput, reason string) error {
	logger := workflow.GetLogger(ctx)
	if in.JobID != nil {
		job.JobID = *in.JobID
	}
	if err := runMandatoryVoid(ctx, c, acts.JobFailure, activities.JobFailureInput{JobInput: job, Reason: reason}); err != nil {
		return err
	}
	logger.Info("Job failed", "connection_id", in.ConnectionID, "job_id", job.JobID, "reason", reason)

	if err := c.runEndOfSyncHooks(ctx, store.JobStatusFailed); err != nil {
		return err
	}

	disabled, err := runMandatory[activities.AutoDisableOutput](ctx, c, acts.AutoDisableConnection,
		activities.ConnectionInput{ConnectionID: in.ConnectionID})
	if err != nil {
		return err
	}
	if disabled.Disabled {
		logger.Warn("Connection auto-disabled after repeated failures", "connection_id", in.ConnectionID)
	}
	return nil
}

// withinRetryLimit prefers the retry manager and falls back to the attempt
// limit when no retry state could be hydrated.
func (c *controller) withinRetryLimit(ctx workflow.Context, attemptNumber int) (bool, error) {
	if c.retryManager != nil {
		return c.retryManager.ShouldRetry(), nil
	}
	var maxAttempt int
	if err := workflow.ExecuteActivity(ctx, acts.GetMaxAttempt).Get(ctx, &maxAttempt); err != nil {
		return false, err
	}
	return maxAttempt > attemptNumber, nil
}

func (c *controller) accumulateFailureAndPersist(ctx workflow.Context, job activities.JobInput, madeProgress bool) {
	if c.retryManager == nil {
		return
	}
	c.retryManager.IncrementFailure(madeProgress)
	runWithFallback(ctx, c, acts.PersistRetryState, "PersistRetryState", false, activities.PersistInput{
		JobID:        job.JobID,
		ConnectionID: job.ConnectionID,
		Manager:      c.retryManager,
	})
}

func (c *controller) recordProgressMetric(ctx workflow.Context, cause FailureCause, willRetry bool, attempt int) {
	c.tryRecordMetric(ctx, activities.RecordMetricInput{
		ConnectionID: c.input.ConnectionID,
		JobID:        c.input.JobID,
		Event:        telemetry.EventReplicationMadeProgress,
		FailureCause: string(cause),
		Attributes: map[string]string{
			"will_retry":     strconv.FormatBool(willRetry),
			"attempt_number": strconv.Itoa(attempt),
		},
	})
}

func (c *controller) reportCancelled(ctx workflow.Context) error {
	jobID, attempt := c.currentJob()
	summary := failures.ForCancellation(jobID, attempt, c.cycle.failures.Items(), c.cycle.partialSuccess, workflow.Now(ctx))
	if err := runMandatoryVoid(ctx, c, acts.JobCancelled, activities.JobCancelledInput{
		JobInput: activities.JobInput{JobID: jobID, AttemptNumber: attempt, ConnectionID: c.input.ConnectionID},
		Summary:  summary,
	}); err != nil {
		return err
	}
	workflow.GetLogger(ctx).Info("Job cancelled", "connection_id", c.input.ConnectionID, "job_id", jobID)
	return c.runEndOfSyncHooks(ctx, store.JobStatusCancelled)
}

func (c *controller) reportCancelledAndContinue(ctx workflow.Context, skipSchedulingNextRun bool) error {
	if c.cycle.jobID != nil && c.cycle.attemptNumber != nil {
		if err := c.reportCancelled(ctx); err != nil {
			return err
		}
	}
	resetInput(&c.input)
	c.input.SkipScheduling = skipSchedulingNextRun
	return c.prepareForNextRunAndContinueAsNew(ctx)
}

// resetInput brings in back to a controller with no job in flight.
func resetInput(in *ControllerInput) {
	in.JobID = nil
	in.AttemptNumber = 1
	in.FromFailure = false
	in.SkipScheduling = false
	in.ResetConnection = false
}
