package scheduling

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/stacklok/toolhive-sync-controller/internal/failures"
	"github.com/stacklok/toolhive-sync-controller/internal/flags"
	"github.com/stacklok/toolhive-sync-controller/internal/replication"
	"github.com/stacklok/toolhive-sync-controller/internal/retries"
	"github.com/stacklok/toolhive-sync-controller/internal/scheduling/activities"
	"github.com/stacklok/toolhive-sync-controller/internal/telemetry"
)

// WorkflowName is the registered type of the controller workflow.
const WorkflowName = "ConnectionManagerWorkflow"

// Version gates for behaviour added after controllers were already running.
const (
	versionCheckWorkspaceTombstone = "check_workspace_tombstone"
	versionLoadShedBackOff         = "load_shed_back_off"
	versionGetFeatureFlags         = "get_feature_flags"
)

// cycleState is rebuilt on every run.
type cycleState struct {
	jobID *int64
	// attemptNumber is 0-based.
	attemptNumber  *int
	failures       failures.Set
	partialSuccess *bool
}

type controller struct {
	input ControllerInput
	state SignalState
	cycle cycleState

	connCtx          activities.ConnectionContext
	workflowDelay    time.Duration
	retryManager     *retries.Manager
	syncWorkflowType string
	restarting       bool

	cancelCycle workflow.CancelFunc
}

func newController(in ControllerInput) *controller {
	if in.AttemptNumber < 1 {
		in.AttemptNumber = 1
	}
	return &controller{
		input:            in,
		cancelCycle:      func() {},
		syncWorkflowType: replication.SyncWorkflowName,
	}
}

// ConnectionManagerWorkflow runs one cycle of the controller of a connection.
// It only returns nil when the connection was deleted or its workspace is
// gone; every other path ends in a continue-as-new.
func ConnectionManagerWorkflow(ctx workflow.Context, in ControllerInput) error {
	ctx = workflow.WithActivityOptions(ctx, activityOptions())
	c := newController(in)

	if err := c.registerQueries(ctx); err != nil {
		return err
	}
	c.listenForSignals(ctx)

	err := c.run(ctx)
	switch {
	case err == nil, workflow.IsContinueAsNewError(err):
		return err
	case errors.Is(err, errConnectionDeleted):
		return nil
	case temporal.IsCanceledError(err) && ctx.Err() != nil:
		return err
	}

	logger := workflow.GetLogger(ctx)
	logger.Error("Controller cycle failed", "connection_id", c.input.ConnectionID, "error", err)
	if c.cycle.jobID != nil {
		if rerr := c.reportFailure(ctx, &c.input, nil, CauseUnknown, nil); rerr != nil {
			if workflow.IsContinueAsNewError(rerr) {
				return rerr
			}
			logger.Error("Could not report the failed cycle", "connection_id", c.input.ConnectionID, "error", rerr)
		}
	}
	return c.continueAsNew(ctx)
}

func (c *controller) run(ctx workflow.Context) error {
	logger := workflow.GetLogger(ctx)
	connIn := activities.ConnectionInput{ConnectionID: c.input.ConnectionID}

	tombstoned, err := c.isWorkspaceTombstoned(ctx, connIn)
	if err != nil {
		return err
	}
	if tombstoned {
		logger.Info("Workspace is tombstoned, stopping the controller", "connection_id", c.input.ConnectionID)
		return nil
	}

	cc, err := runMandatory[activities.ConnectionContext](ctx, c, acts.GetConnectionContext, connIn)
	if err != nil {
		return err
	}
	c.connCtx = cc

	if err := c.backOffIfLoadShed(ctx); err != nil {
		return err
	}

	c.initializeFromInput()

	delay, err := runMandatory[time.Duration](ctx, c, acts.GetWorkflowRestartDelay)
	if err != nil {
		return err
	}
	c.workflowDelay = delay

	if err := c.recordMetric(ctx, telemetry.EventWorkflowAttempt, "", nil); err != nil {
		return err
	}

	cycleCtx, cancel := workflow.WithCancel(ctx)
	c.cancelCycle = cancel
	err = c.runCycle(cycleCtx)
	cancel()

	// the cycle context may be cancelled, report on one that is not
	postCtx, _ := workflow.NewDisconnectedContext(ctx)
	switch {
	case err == nil:
	case temporal.IsCanceledError(err) && cycleCtx.Err() != nil:
		logger.Info("Cycle cancelled", "connection_id", c.input.ConnectionID)
		if merr := c.recordMetric(postCtx, telemetry.EventWorkflowFailure, CauseCanceled, nil); merr != nil {
			return merr
		}
	default:
		return err
	}

	switch {
	case c.state.Deleted:
		if c.state.Running && c.cycle.jobID != nil && c.cycle.attemptNumber != nil {
			if err := c.reportCancelled(postCtx); err != nil {
				return err
			}
		}
		logger.Info("Connection deleted, stopping the controller", "connection_id", c.input.ConnectionID)
		return errConnectionDeleted
	case c.state.CancelledForReset:
		return c.reportCancelledAndContinue(postCtx, true)
	case c.state.Cancelled:
		return c.reportCancelledAndContinue(postCtx, false)
	}
	return c.prepareForNextRunAndContinueAsNew(postCtx)
}

func (c *controller) isWorkspaceTombstoned(ctx workflow.Context, in activities.ConnectionInput) (bool, error) {
	if workflow.GetVersion(ctx, versionCheckWorkspaceTombstone, workflow.DefaultVersion, 1) == workflow.DefaultVersion {
		return false, nil
	}
	var tombstoned bool
	err := workflow.ExecuteActivity(ctx, acts.IsWorkspaceTombstoned, in).Get(ctx, &tombstoned)
	return tombstoned, err
}

func (c *controller) backOffIfLoadShed(ctx workflow.Context) error {
	if workflow.GetVersion(ctx, versionLoadShedBackOff, workflow.DefaultVersion, 1) == workflow.DefaultVersion {
		return nil
	}
	for {
		var wait time.Duration
		if err := workflow.ExecuteActivity(ctx, acts.GetLoadShedBackoff, c.connCtx).Get(ctx, &wait); err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}
		workflow.GetLogger(ctx).Info("Connection is load shed, backing off",
			"connection_id", c.input.ConnectionID, "wait", wait)
		if err := workflow.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (c *controller) initializeFromInput() {
	if c.input.FromFailure {
		c.state.Running = true
	}
	if s := c.input.State; s != nil {
		c.state.SkipScheduling = c.state.SkipScheduling || s.SkipScheduling
		c.state.SkipSchedulingNextCycle = s.SkipSchedulingNextCycle
	}
	if c.input.JobID != nil {
		jobID := *c.input.JobID
		attempt := c.input.AttemptNumber - 1
		c.cycle.jobID = &jobID
		c.cycle.attemptNumber = &attempt
	}
}

func (c *controller) featureFlags(ctx workflow.Context) map[string]bool {
	if workflow.GetVersion(ctx, versionGetFeatureFlags, workflow.DefaultVersion, 1) == workflow.DefaultVersion {
		return map[string]bool{}
	}
	return runWithFallback(ctx, c, acts.GetFeatureFlags, "GetFeatureFlags", map[string]bool{},
		activities.ConnectionInput{ConnectionID: c.input.ConnectionID})
}

// runCycle waits for the next run and drives one attempt to an outcome.
func (c *controller) runCycle(ctx workflow.Context) error {
	err := c.waitAndSync(ctx)
	if err == nil || workflow.IsContinueAsNewError(err) || errors.Is(err, errConnectionDeleted) {
		return err
	}
	if temporal.IsCanceledError(err) {
		return err
	}

	var child *childFailure
	if !errors.As(err, &child) {
		return err
	}
	var childErr *temporal.ChildWorkflowExecutionError
	if !errors.As(child.err, &childErr) {
		return err
	}

	jobID, attempt := c.currentJob()
	now := workflow.Now(ctx)
	cause := CauseWorkflow
	var actErr *temporal.ActivityError
	if errors.As(childErr, &actErr) {
		cause = CauseActivity
		c.cycle.failures.Add(failures.FromWorkflowAndActivity(
			child.workflowType, c.syncWorkflowType, actErr.Unwrap(), jobID, attempt, now))
	} else {
		c.cycle.failures.Add(failures.UnknownOrigin(childErr.Unwrap(), jobID, attempt, now))
	}
	workflow.GetLogger(ctx).Error("Child workflow failed",
		"connection_id", c.input.ConnectionID, "workflow_type", child.workflowType, "error", err)

	if err := c.reportFailure(ctx, &c.input, nil, cause, nil); err != nil {
		return err
	}
	return c.prepareForNextRunAndContinueAsNew(ctx)
}

func (c *controller) waitAndSync(ctx workflow.Context) error {
	logger := workflow.GetLogger(ctx)
	connIn := activities.ConnectionInput{ConnectionID: c.input.ConnectionID}

	if c.input.SkipScheduling {
		c.state.SkipScheduling = true
	}
	// jobs left non-terminal by a controller that died mid-run are failed
	if c.input.JobID == nil {
		if err := runMandatoryVoid(ctx, c, acts.EnsureCleanJobState, connIn); err != nil {
			return err
		}
	}
	c.hydrateRetryManager(ctx)

	scheduled, err := runMandatory[time.Duration](ctx, c, acts.GetTimeToWait, connIn)
	if err != nil {
		return err
	}
	timeToWait := scheduled
	if c.input.FromFailure {
		timeToWait = c.resolveBackoff()
	}
	if timeToWait > 0 {
		logger.Info("Waiting for the next run", "connection_id", c.input.ConnectionID, "wait", timeToWait)
		if _, err := workflow.AwaitWithTimeout(ctx, timeToWait, c.state.interrupted); err != nil {
			return err
		}
	}
	c.state.DoneWaiting = true

	switch {
	case c.state.Deleted:
		logger.Info("Connection deleted while waiting", "connection_id", c.input.ConnectionID)
		return nil
	case c.state.Updated:
		logger.Info("Connection updated, reloading its configuration", "connection_id", c.input.ConnectionID)
		return c.prepareForNextRunAndContinueAsNew(ctx)
	case c.state.Cancelled:
		return c.reportCancelledAndContinue(ctx, false)
	}

	// flags may have changed during the wait
	c.hydrateRetryManager(ctx)
	useSyncV2 := c.featureFlags(ctx)[flags.UseSyncV2]

	jobID, err := c.getOrCreateJobID(ctx)
	if err != nil {
		return err
	}
	attempt, err := runMandatory[int](ctx, c, acts.CreateNewAttemptNumber, activities.AttemptCreationInput{JobID: jobID})
	if err != nil {
		return err
	}
	c.cycle.jobID = &jobID
	c.cycle.attemptNumber = &attempt

	jobIn := activities.JobInput{JobID: jobID, AttemptNumber: attempt, ConnectionID: c.input.ConnectionID}
	if err := runMandatoryVoid(ctx, c, acts.ReportJobStart, jobIn); err != nil {
		return err
	}
	c.state.Running = true
	logger.Info("Job started", "connection_id", c.input.ConnectionID, "job_id", jobID, "attempt", attempt)

	check, err := c.checkConnections(ctx, jobIn)
	if err != nil {
		return err
	}
	if check.failed {
		c.state.Failed = true
		c.cycle.failures.Add(failures.CheckFailure(
			errors.New(check.message), jobID, attempt, check.origin, workflow.Now(ctx)))
		out := &replication.SyncOutput{
			Status:   replication.SyncStatusFailed,
			Failures: c.cycle.failures.Items(),
		}
		if err := c.reportFailure(ctx, &c.input, out, CauseConnection, nil); err != nil {
			return err
		}
		return c.prepareForNextRunAndContinueAsNew(ctx)
	}

	out, err := c.runSync(ctx, jobIn, useSyncV2)
	if err != nil {
		return err
	}

	switch out.Status {
	case replication.SyncStatusFailed:
		c.state.Failed = true
		c.cycle.failures.Add(out.Failures...)
		partial := out.PartialSuccess || out.RecordsCommitted > 0
		c.cycle.partialSuccess = &partial
		if err := c.reportFailure(ctx, &c.input, out, CauseUnknown, nil); err != nil {
			return err
		}
	case replication.SyncStatusCancelled:
		return c.reportCancelledAndContinue(ctx, false)
	default:
		if err := c.reportSuccess(ctx, jobIn); err != nil {
			return err
		}
	}
	return c.prepareForNextRunAndContinueAsNew(ctx)
}

func (c *controller) hydrateRetryManager(ctx workflow.Context) {
	hydrated := runWithFallback(ctx, c, acts.HydrateRetryState, "HydrateRetryState", activities.HydrateOutput{},
		activities.HydrateInput{JobID: c.input.JobID, ConnectionID: c.input.ConnectionID})
	c.retryManager = hydrated.Manager
}

func (c *controller) resolveBackoff() time.Duration {
	if c.retryManager == nil {
		return 0
	}
	return c.retryManager.Backoff()
}

func (c *controller) getOrCreateJobID(ctx workflow.Context) (int64, error) {
	if c.input.JobID != nil {
		return *c.input.JobID, nil
	}
	out, err := runMandatory[activities.JobCreationOutput](ctx, c, acts.CreateNewJob, activities.JobCreationInput{
		ConnectionID: c.input.ConnectionID,
		Scheduled:    !c.state.SkipScheduling,
	})
	if err != nil {
		return 0, err
	}
	jobID := out.JobID
	c.input.JobID = &jobID
	c.input.ResetConnection = out.IsReset
	return jobID, nil
}

// currentJob returns the job and 0-based attempt of the cycle, zero when
// none was created yet.
func (c *controller) currentJob() (int64, int) {
	var jobID int64
	var attempt int
	if c.cycle.jobID != nil {
		jobID = *c.cycle.jobID
	}
	if c.cycle.attemptNumber != nil {
		attempt = *c.cycle.attemptNumber
	}
	return jobID, attempt
}

func (c *controller) prepareForNextRunAndContinueAsNew(ctx workflow.Context) error {
	c.cycle.failures.Clear()
	c.cycle.partialSuccess = nil
	deleted := c.state.Deleted
	if c.state.SkipSchedulingNextCycle {
		c.input.SkipScheduling = true
	}
	c.state.reset()
	if deleted {
		return errConnectionDeleted
	}
	return c.continueAsNew(ctx)
}

func (c *controller) continueAsNew(ctx workflow.Context) error {
	next := c.input
	next.State = nil
	return workflow.NewContinueAsNewError(ctx, ConnectionManagerWorkflow, next)
}
