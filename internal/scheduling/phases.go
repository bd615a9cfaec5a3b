package scheduling

import (
	"fmt"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/stacklok/toolhive-sync-controller/internal/connectors"
	"github.com/stacklok/toolhive-sync-controller/internal/failures"
	"github.com/stacklok/toolhive-sync-controller/internal/replication"
	"github.com/stacklok/toolhive-sync-controller/internal/scheduling/activities"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
)

type checkResult struct {
	failed  bool
	origin  failures.Origin
	message string
}

// checkConnections runs the connection checks, but only after a failed job
// or attempt. Reset jobs never read from the source, so its check is skipped.
func (c *controller) checkConnections(ctx workflow.Context, job activities.JobInput) (checkResult, error) {
	logger := workflow.GetLogger(ctx)

	lastFailed, err := runMandatory[bool](ctx, c, acts.IsLastJobOrAttemptFailure, job)
	if err != nil {
		return checkResult{}, err
	}
	if !lastFailed {
		logger.Info("Previous run succeeded, skipping connection checks",
			"connection_id", job.ConnectionID, "job_id", job.JobID)
		return checkResult{}, nil
	}

	if !c.input.ResetConnection {
		res, err := c.runCheck(ctx, job, connectors.ActorTypeSource, c.connCtx.SourceID, c.connCtx.SourceDefinitionID)
		if err != nil || res.failed {
			return res, err
		}
	}
	return c.runCheck(ctx, job, connectors.ActorTypeDestination, c.connCtx.DestinationID, c.connCtx.DestinationDefinitionID)
}

func (c *controller) runCheck(
	ctx workflow.Context,
	job activities.JobInput,
	actorType connectors.ActorType,
	actorID, definitionID uuid.UUID,
) (checkResult, error) {
	ctx = workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID:        fmt.Sprintf("check_%d_%s", job.JobID, actorType),
		ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_REQUEST_CANCEL,
	})
	in := replication.CheckConnectionInput{
		JobID:         job.JobID,
		AttemptNumber: job.AttemptNumber,
		ConnectionID:  job.ConnectionID,
		WorkspaceID:   c.connCtx.WorkspaceID,
		ActorType:     actorType,
		ActorID:       actorID,
		DefinitionID:  definitionID,
	}

	var out replication.CheckConnectionOutput
	if err := workflow.ExecuteChildWorkflow(ctx, replication.CheckConnectionWorkflow, in).Get(ctx, &out); err != nil {
		return checkResult{}, &childFailure{workflowType: replication.CheckConnectionWorkflowName, err: err}
	}
	if out.Succeeded {
		return checkResult{}, nil
	}

	origin := failures.OriginSource
	if actorType == connectors.ActorTypeDestination {
		origin = failures.OriginDestination
	}
	workflow.GetLogger(ctx).Info("Connection check failed",
		"connection_id", job.ConnectionID, "job_id", job.JobID, "origin", origin, "message", out.Message)
	return checkResult{failed: true, origin: origin, message: out.Message}, nil
}

func (c *controller) runSync(ctx workflow.Context, job activities.JobInput, useV2 bool) (*replication.SyncOutput, error) {
	ctx = workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID:        fmt.Sprintf("sync_%d", job.JobID),
		ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_REQUEST_CANCEL,
	})

	var fut workflow.ChildWorkflowFuture
	if useV2 {
		c.syncWorkflowType = replication.SyncWorkflowV2Name
		fut = workflow.ExecuteChildWorkflow(ctx, replication.SyncWorkflowV2, replication.SyncInputV2{
			JobID:         job.JobID,
			AttemptNumber: job.AttemptNumber,
			ConnectionID:  job.ConnectionID,
		})
	} else {
		c.syncWorkflowType = replication.SyncWorkflowName
		fut = workflow.ExecuteChildWorkflow(ctx, replication.SyncWorkflow, replication.SyncInput{
			JobID:             job.JobID,
			AttemptNumber:     job.AttemptNumber,
			ConnectionContext: c.connCtx,
			IsReset:           c.input.ResetConnection,
		})
	}

	var out replication.SyncOutput
	if err := fut.Get(ctx, &out); err != nil {
		return nil, &childFailure{workflowType: c.syncWorkflowType, err: err}
	}
	return &out, nil
}

// runEndOfSyncHooks starts the post-sync child and only waits for it to be
// started. The child outlives the controller.
func (c *controller) runEndOfSyncHooks(ctx workflow.Context, status store.JobStatus) error {
	if c.cycle.jobID == nil {
		return nil
	}
	jobID := *c.cycle.jobID
	ctx = workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID:        fmt.Sprintf("post_sync_%d", jobID),
		ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_ABANDON,
	})
	fut := workflow.ExecuteChildWorkflow(ctx, replication.PostSyncWorkflow, replication.PostSyncInput{
		JobID:        jobID,
		ConnectionID: c.input.ConnectionID,
		JobStatus:    status,
	})

	var exec workflow.Execution
	if err := fut.GetChildWorkflowExecution().Get(ctx, &exec); err != nil {
		if temporal.IsCanceledError(err) {
			return err
		}
		workflow.GetLogger(ctx).Warn("Could not start the post-sync workflow",
			"connection_id", c.input.ConnectionID, "job_id", jobID, "error", err)
	}
	return nil
}
