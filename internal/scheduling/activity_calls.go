package scheduling

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/stacklok/toolhive-sync-controller/internal/failures"
	"github.com/stacklok/toolhive-sync-controller/internal/scheduling/activities"
	"github.com/stacklok/toolhive-sync-controller/internal/telemetry"
)

// activity references used to schedule controller activities by name
var acts *activities.Activities

const defaultWorkflowDelay = 600 * time.Second

func activityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	}
}

// runMandatory executes an activity whose failure aborts the cycle. Cancel
// errors propagate as they are. Any other failure is reported against the
// current job and the controller restarts with a fresh input after the
// configured delay; the returned error is then a continue-as-new error.
func runMandatory[T any](ctx workflow.Context, c *controller, activity any, args ...any) (T, error) {
	var out T
	err := workflow.ExecuteActivity(ctx, activity, args...).Get(ctx, &out)
	if err == nil {
		return out, nil
	}
	return out, c.handleMandatoryFailure(ctx, err)
}

func runMandatoryVoid(ctx workflow.Context, c *controller, activity any, args ...any) error {
	err := workflow.ExecuteActivity(ctx, activity, args...).Get(ctx, nil)
	if err == nil {
		return nil
	}
	return c.handleMandatoryFailure(ctx, err)
}

func (c *controller) handleMandatoryFailure(ctx workflow.Context, err error) error {
	if temporal.IsCanceledError(err) {
		return err
	}
	logger := workflow.GetLogger(ctx)
	if c.restarting {
		logger.Error("Activity failed while restarting", "connection_id", c.input.ConnectionID, "error", err)
		return workflow.NewContinueAsNewError(ctx, ConnectionManagerWorkflow, NewControllerInput(c.input.ConnectionID))
	}
	c.restarting = true

	delay := c.workflowDelay
	if delay <= 0 {
		delay = defaultWorkflowDelay
	}
	logger.Error("Mandatory activity failed, restarting the controller",
		"connection_id", c.input.ConnectionID, "delay", delay, "error", err)
	if serr := workflow.Sleep(ctx, delay); serr != nil {
		return serr
	}

	if c.cycle.jobID != nil && c.cycle.attemptNumber != nil {
		jobID, attempt := *c.cycle.jobID, *c.cycle.attemptNumber
		in := ControllerInput{
			ConnectionID:  c.input.ConnectionID,
			JobID:         &jobID,
			AttemptNumber: attempt,
		}
		override := []failures.Reason{failures.PlatformFailure(err, jobID, attempt, workflow.Now(ctx))}
		if rerr := c.reportFailure(ctx, &in, nil, CauseActivity, override); rerr != nil {
			if workflow.IsContinueAsNewError(rerr) {
				return rerr
			}
			logger.Error("Could not report the failed attempt", "connection_id", c.input.ConnectionID, "error", rerr)
		}
	}
	return workflow.NewContinueAsNewError(ctx, ConnectionManagerWorkflow, NewControllerInput(c.input.ConnectionID))
}

// runWithFallback executes an activity whose failure must not abort the
// cycle: errors are logged, counted and replaced by fallback.
func runWithFallback[T any](ctx workflow.Context, c *controller, activity any, method string, fallback T, args ...any) T {
	var out T
	err := workflow.ExecuteActivity(ctx, activity, args...).Get(ctx, &out)
	if err == nil {
		return out
	}
	workflow.GetLogger(ctx).Warn("Activity failed, using fallback value",
		"connection_id", c.input.ConnectionID, "activity", method, "error", err)
	if !temporal.IsCanceledError(err) {
		c.tryRecordMetric(ctx, activities.RecordMetricInput{
			ConnectionID: c.input.ConnectionID,
			JobID:        c.input.JobID,
			Event:        telemetry.EventActivityFailure,
			Attributes: map[string]string{
				"activity_name":   "activities.Activities",
				"activity_method": method,
			},
		})
	}
	return fallback
}

// tryRecordMetric never fails the cycle.
func (c *controller) tryRecordMetric(ctx workflow.Context, in activities.RecordMetricInput) {
	if err := workflow.ExecuteActivity(ctx, acts.RecordMetric, in).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("Could not record metric",
			"connection_id", c.input.ConnectionID, "event", in.Event, "error", err)
	}
}

// recordMetric is the mandatory flavour used for the attempt, success and
// failure counters.
func (c *controller) recordMetric(ctx workflow.Context, event telemetry.Event, cause FailureCause, attrs map[string]string) error {
	return runMandatoryVoid(ctx, c, acts.RecordMetric, activities.RecordMetricInput{
		ConnectionID: c.input.ConnectionID,
		JobID:        c.input.JobID,
		Event:        event,
		FailureCause: string(cause),
		Attributes:   attrs,
	})
}

// childFailure remembers which child workflow type produced an error.
type childFailure struct {
	workflowType string
	err          error
}

func (e *childFailure) Error() string {
	return e.workflowType + ": " + e.err.Error()
}

func (e *childFailure) Unwrap() error {
	return e.err
}

var errConnectionDeleted = errors.New("connection deleted")
