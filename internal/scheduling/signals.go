package scheduling

import (
	"go.temporal.io/sdk/workflow"
)

// Signal names.
const (
	SignalSubmitManualSync                     = "submitManualSync"
	SignalCancelJob                            = "cancelJob"
	SignalDeleteConnection                     = "deleteConnection"
	SignalConnectionUpdated                    = "connectionUpdated"
	SignalResetConnection                      = "resetConnection"
	SignalResetConnectionAndSkipNextScheduling = "resetConnectionAndSkipNextScheduling"
)

// Query names.
const (
	QueryGetState          = "getState"
	QueryGetJobInformation = "getJobInformation"
)

type signalHandler struct {
	name   string
	handle func()
}

// listenForSignals starts the coroutine that owns every signal-driven state
// change. Handlers run in registration order when several signals are ready.
func (c *controller) listenForSignals(ctx workflow.Context) {
	handlers := []signalHandler{
		{SignalSubmitManualSync, c.submitManualSync},
		{SignalCancelJob, c.cancelJob},
		{SignalDeleteConnection, c.deleteConnection},
		{SignalConnectionUpdated, c.connectionUpdated},
		{SignalResetConnection, c.resetConnection},
		{SignalResetConnectionAndSkipNextScheduling, c.resetConnectionAndSkipNextScheduling},
	}

	workflow.Go(ctx, func(ctx workflow.Context) {
		logger := workflow.GetLogger(ctx)
		done := false

		selector := workflow.NewSelector(ctx)
		for _, h := range handlers {
			selector.AddReceive(workflow.GetSignalChannel(ctx, h.name), func(ch workflow.ReceiveChannel, _ bool) {
				ch.Receive(ctx, nil)
				logger.Info("Signal received", "signal", h.name, "connection_id", c.input.ConnectionID)
				h.handle()
			})
		}
		selector.AddReceive(ctx.Done(), func(workflow.ReceiveChannel, bool) {
			done = true
		})

		for !done {
			selector.Select(ctx)
		}
	})
}

func (c *controller) registerQueries(ctx workflow.Context) error {
	if err := workflow.SetQueryHandler(ctx, QueryGetState, func() (SignalState, error) {
		return c.state, nil
	}); err != nil {
		return err
	}
	return workflow.SetQueryHandler(ctx, QueryGetJobInformation, func() (JobInformation, error) {
		return c.jobInformation(), nil
	})
}

func (c *controller) jobInformation() JobInformation {
	info := JobInformation{JobID: NonRunningJobID, AttemptID: NonRunningAttemptID}
	if c.cycle.jobID != nil {
		info.JobID = *c.cycle.jobID
	}
	if c.cycle.attemptNumber != nil {
		info.AttemptID = *c.cycle.attemptNumber
	}
	return info
}

func (c *controller) submitManualSync() {
	if c.state.Running {
		return
	}
	c.state.SkipScheduling = true
}

func (c *controller) cancelJob() {
	if !c.state.Running {
		return
	}
	c.state.Cancelled = true
	c.cancelCycle()
}

func (c *controller) deleteConnection() {
	c.state.Deleted = true
	c.cancelJob()
}

func (c *controller) connectionUpdated() {
	c.state.Updated = true
}

func (c *controller) resetConnection() {
	if c.state.DoneWaiting {
		c.state.CancelledForReset = true
		c.cancelCycle()
		return
	}
	c.state.SkipScheduling = true
}

func (c *controller) resetConnectionAndSkipNextScheduling() {
	c.resetConnection()
	c.state.SkipSchedulingNextCycle = true
}
