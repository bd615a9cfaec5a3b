// Package scheduling implements the per-connection controller: a long-lived
// Temporal workflow that waits for the next run of a connection, creates the
// job and its attempts, checks both connectors, drives the sync child
// workflow, classifies the outcome and restarts itself through
// continue-as-new. External systems steer it through signals and observe it
// through queries.
package scheduling

import (
	"github.com/google/uuid"
)

// ControllerInput is the argument of every controller run. It is the only
// state that survives a continue-as-new.
type ControllerInput struct {
	ConnectionID uuid.UUID `json:"connectionId"`
	// JobID is set when a restart must resume an existing job.
	JobID *int64 `json:"jobId,omitempty"`
	// AttemptNumber is 1-based.
	AttemptNumber   int          `json:"attemptNumber"`
	FromFailure     bool         `json:"fromFailure"`
	SkipScheduling  bool         `json:"skipScheduling"`
	State           *SignalState `json:"state,omitempty"`
	ResetConnection bool         `json:"resetConnection"`
}

// NewControllerInput returns the input of a controller that has no job in
// flight.
func NewControllerInput(connectionID uuid.UUID) ControllerInput {
	return ControllerInput{ConnectionID: connectionID, AttemptNumber: 1}
}

// SignalState holds the flags set by signals during one run.
type SignalState struct {
	Running                 bool `json:"running"`
	Deleted                 bool `json:"deleted"`
	SkipScheduling          bool `json:"skipScheduling"`
	Updated                 bool `json:"updated"`
	Cancelled               bool `json:"cancelled"`
	Failed                  bool `json:"failed"`
	Success                 bool `json:"success"`
	CancelledForReset       bool `json:"cancelledForReset"`
	DoneWaiting             bool `json:"doneWaiting"`
	SkipSchedulingNextCycle bool `json:"skipSchedulingNextCycle"`
}

func (s *SignalState) reset() {
	*s = SignalState{}
}

// interrupted reports whether the wait for the next run should end early.
func (s *SignalState) interrupted() bool {
	return s.SkipScheduling || s.Deleted || s.Updated || s.Cancelled
}

// Sentinels returned by the job information query when nothing runs.
const (
	NonRunningJobID     int64 = -1
	NonRunningAttemptID       = -1
)

// JobInformation is the answer of the getJobInformation query.
type JobInformation struct {
	JobID     int64 `json:"jobId"`
	AttemptID int   `json:"attemptId"`
}

// FailureCause tags the workflow failure metric.
type FailureCause string

// Failure causes.
const (
	CauseCanceled   FailureCause = "CANCELED"
	CauseConnection FailureCause = "CONNECTION"
	CauseUnknown    FailureCause = "UNKNOWN"
	CauseActivity   FailureCause = "ACTIVITY"
	CauseWorkflow   FailureCause = "WORKFLOW"
)
