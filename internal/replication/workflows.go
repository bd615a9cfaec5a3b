package replication

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// activity references used to schedule replication activities by name
var acts *Activities

func checkActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: time.Hour,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    5 * time.Minute,
			MaximumAttempts:    3,
		},
	}
}

func syncActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 72 * time.Hour,
		HeartbeatTimeout:    5 * time.Minute,
		WaitForCancellation: true,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    10 * time.Minute,
			MaximumAttempts:    3,
		},
	}
}

func shortActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	}
}

// CheckConnectionWorkflow runs a connection check against one actor.
func CheckConnectionWorkflow(ctx workflow.Context, in CheckConnectionInput) (*CheckConnectionOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, checkActivityOptions())

	var out CheckConnectionOutput
	if err := workflow.ExecuteActivity(ctx, acts.RunCheck, in).Get(ctx, &out); err != nil {
		return nil, err
	}
	if !out.Succeeded {
		workflow.GetLogger(ctx).Info("Connection check failed",
			"connection_id", in.ConnectionID, "actor_type", in.ActorType, "message", out.Message)
	}
	return &out, nil
}

// SyncWorkflow replicates one attempt from the context handed over by the
// controller.
func SyncWorkflow(ctx workflow.Context, in SyncInput) (*SyncOutput, error) {
	return replicate(ctx, in)
}

// SyncWorkflowV2 hydrates the connection context itself before replicating.
func SyncWorkflowV2(ctx workflow.Context, in SyncInputV2) (*SyncOutput, error) {
	hydrateCtx := workflow.WithActivityOptions(ctx, shortActivityOptions())

	var full SyncInput
	if err := workflow.ExecuteActivity(hydrateCtx, acts.HydrateSyncInput, in).Get(hydrateCtx, &full); err != nil {
		return nil, err
	}
	return replicate(ctx, full)
}

func replicate(ctx workflow.Context, in SyncInput) (*SyncOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, syncActivityOptions())

	var out SyncOutput
	if err := workflow.ExecuteActivity(ctx, acts.Replicate, in).Get(ctx, &out); err != nil {
		return nil, err
	}
	workflow.GetLogger(ctx).Info("Replication finished",
		"connection_id", in.ConnectionContext.ConnectionID, "job_id", in.JobID,
		"attempt", in.AttemptNumber, "status", out.Status, "records", out.RecordsCommitted)
	return &out, nil
}

// PostSyncWorkflow runs once a job is terminal. It is started abandoned, so
// its outcome never reaches the controller.
func PostSyncWorkflow(ctx workflow.Context, in PostSyncInput) error {
	ctx = workflow.WithActivityOptions(ctx, shortActivityOptions())
	return workflow.ExecuteActivity(ctx, acts.RefreshMetadata, in).Get(ctx, nil)
}
