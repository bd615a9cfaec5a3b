package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// ErrControllerNotFound is returned when no controller runs for a connection.
var ErrControllerNotFound = errors.New("connection controller not found")

// WorkflowID returns the id of the controller of a connection.
func WorkflowID(connectionID uuid.UUID) string {
	return "connection_manager_" + connectionID.String()
}

// Client steers controllers from outside of Temporal.
type Client struct {
	temporal  client.Client
	taskQueue string
}

// NewClient creates a Client starting controllers on taskQueue.
func NewClient(c client.Client, taskQueue string) *Client {
	return &Client{temporal: c, taskQueue: taskQueue}
}

func (c *Client) startOptions(connectionID uuid.UUID) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:                       WorkflowID(connectionID),
		TaskQueue:                c.taskQueue,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}
}

// Start starts the controller of a connection. A controller that already
// runs is left untouched.
func (c *Client) Start(ctx context.Context, connectionID uuid.UUID) (string, error) {
	run, err := c.temporal.ExecuteWorkflow(ctx, c.startOptions(connectionID),
		ConnectionManagerWorkflow, NewControllerInput(connectionID))
	if err != nil {
		return "", fmt.Errorf("failed to start controller for connection %s: %w", connectionID, err)
	}
	slog.InfoContext(ctx, "Controller started", "connection_id", connectionID, "run_id", run.GetRunID())
	return run.GetRunID(), nil
}

// SubmitManualSync asks for an immediate run, starting the controller if
// needed.
func (c *Client) SubmitManualSync(ctx context.Context, connectionID uuid.UUID) error {
	return c.signalWithStart(ctx, connectionID, SignalSubmitManualSync)
}

// Reset asks for a reset run. With skipNextScheduling the run after it is
// also started without waiting for the schedule.
func (c *Client) Reset(ctx context.Context, connectionID uuid.UUID, skipNextScheduling bool) error {
	signal := SignalResetConnection
	if skipNextScheduling {
		signal = SignalResetConnectionAndSkipNextScheduling
	}
	return c.signalWithStart(ctx, connectionID, signal)
}

// CancelJob cancels the running job, if any.
func (c *Client) CancelJob(ctx context.Context, connectionID uuid.UUID) error {
	return c.signal(ctx, connectionID, SignalCancelJob)
}

// Update makes the controller reload the connection configuration.
func (c *Client) Update(ctx context.Context, connectionID uuid.UUID) error {
	return c.signal(ctx, connectionID, SignalConnectionUpdated)
}

// Delete stops the controller for good. Deleting a connection without a
// controller succeeds.
func (c *Client) Delete(ctx context.Context, connectionID uuid.UUID) error {
	err := c.signal(ctx, connectionID, SignalDeleteConnection)
	if errors.Is(err, ErrControllerNotFound) {
		slog.InfoContext(ctx, "No controller to delete", "connection_id", connectionID)
		return nil
	}
	return err
}

// GetState returns the signal flags of the running controller.
func (c *Client) GetState(ctx context.Context, connectionID uuid.UUID) (*SignalState, error) {
	var state SignalState
	if err := c.query(ctx, connectionID, QueryGetState, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// GetJobInformation returns the job and attempt the controller is working
// on, NonRunningJobID and NonRunningAttemptID when idle.
func (c *Client) GetJobInformation(ctx context.Context, connectionID uuid.UUID) (*JobInformation, error) {
	var info JobInformation
	if err := c.query(ctx, connectionID, QueryGetJobInformation, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) signalWithStart(ctx context.Context, connectionID uuid.UUID, signal string) error {
	_, err := c.temporal.SignalWithStartWorkflow(ctx, WorkflowID(connectionID), signal, nil,
		c.startOptions(connectionID), ConnectionManagerWorkflow, NewControllerInput(connectionID))
	if err != nil {
		return fmt.Errorf("failed to signal %s to connection %s: %w", signal, connectionID, err)
	}
	return nil
}

func (c *Client) signal(ctx context.Context, connectionID uuid.UUID, signal string) error {
	if err := c.temporal.SignalWorkflow(ctx, WorkflowID(connectionID), "", signal, nil); err != nil {
		return wrapNotFound(err, "failed to signal %s to connection %s", signal, connectionID)
	}
	return nil
}

func (c *Client) query(ctx context.Context, connectionID uuid.UUID, query string, out any) error {
	val, err := c.temporal.QueryWorkflow(ctx, WorkflowID(connectionID), "", query)
	if err != nil {
		return wrapNotFound(err, "failed to query %s of connection %s", query, connectionID)
	}
	if err := val.Get(out); err != nil {
		return fmt.Errorf("failed to decode %s of connection %s: %w", query, connectionID, err)
	}
	return nil
}

func wrapNotFound(err error, format string, args ...any) error {
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf(format+": %w", append(args, ErrControllerNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
