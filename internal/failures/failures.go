// Package failures defines the failure taxonomy attached to sync attempts:
// where a failure came from, what kind it was, and how failures are grouped
// into the summary persisted with an attempt.
package failures

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Origin identifies the component a failure is attributed to.
type Origin string

const (
	// OriginSource attributes a failure to the source connector
	OriginSource Origin = "source"
	// OriginDestination attributes a failure to the destination connector
	OriginDestination Origin = "destination"
	// OriginReplication attributes a failure to the data transfer itself
	OriginReplication Origin = "replication"
	// OriginPlatform attributes a failure to the orchestration platform
	OriginPlatform Origin = "platform"
	// OriginUnknown is used when nothing better is known
	OriginUnknown Origin = "unknown"
)

// Type classifies a failure. Only TypeConfigError changes retry behavior.
type Type string

const (
	// TypeConfigError is a user configuration problem; it is never auto-retried
	TypeConfigError Type = "config_error"
	// TypeSystemError is an unexpected error inside a connector or the platform
	TypeSystemError Type = "system_error"
	// TypeTransientError is expected to succeed on retry
	TypeTransientError Type = "transient_error"
	// TypeManualCancellation marks an attempt cancelled by a user
	TypeManualCancellation Type = "manual_cancellation"
	// TypeHeartbeatTimeout marks a connector that stopped reporting progress
	TypeHeartbeatTimeout Type = "heartbeat_timeout"
)

const (
	// MaxFailuresToKeep bounds the number of reasons stored per attempt summary
	MaxFailuresToKeep = 10

	maxMessageLength    = 50000
	maxStackTraceLength = 100000
	attributionMessage  = "Remainder truncated by the platform."
)

// Metadata ties a failure to the job attempt that produced it.
type Metadata struct {
	JobID         int64 `json:"jobId,omitempty"`
	AttemptNumber int   `json:"attemptNumber,omitempty"`
	// ConnectorCommand is set for failures raised by a connector command (check, sync)
	ConnectorCommand string `json:"connectorCommand,omitempty"`
}

// Reason is a single structured failure. It is comparable so that a set of
// reasons can be de-duplicated with ==.
type Reason struct {
	Origin          Origin   `json:"failureOrigin,omitempty"`
	Type            Type     `json:"failureType,omitempty"`
	InternalMessage string   `json:"internalMessage,omitempty"`
	ExternalMessage string   `json:"externalMessage,omitempty"`
	StackTrace      string   `json:"stacktrace,omitempty"`
	Retryable       bool     `json:"retryable"`
	Timestamp       int64    `json:"timestamp"`
	Metadata        Metadata `json:"metadata"`
}

// Summary is persisted alongside a failed or cancelled attempt.
type Summary struct {
	Failures []Reason `json:"failures"`
	// PartialSuccess is nil when unknown, true when records were committed
	// before the attempt failed.
	PartialSuccess *bool `json:"partialSuccess,omitempty"`
}

// Set is an insertion ordered set of reasons.
type Set struct {
	items []Reason
}

// Add appends reasons that are not already present.
func (s *Set) Add(reasons ...Reason) {
	for _, r := range reasons {
		if !s.contains(r) {
			s.items = append(s.items, r)
		}
	}
}

func (s *Set) contains(r Reason) bool {
	for _, existing := range s.items {
		if existing == r {
			return true
		}
	}
	return false
}

// Len returns the number of reasons in the set.
func (s *Set) Len() int {
	return len(s.items)
}

// Items returns a copy of the reasons in insertion order.
func (s *Set) Items() []Reason {
	out := make([]Reason, len(s.items))
	copy(out, s.items)
	return out
}

// Clear empties the set.
func (s *Set) Clear() {
	s.items = nil
}

// NewSummary orders reasons by timestamp and keeps the most recent
// MaxFailuresToKeep of them.
func NewSummary(reasons []Reason, partialSuccess *bool) *Summary {
	ordered := make([]Reason, len(reasons))
	copy(ordered, reasons)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})
	if len(ordered) > MaxFailuresToKeep {
		ordered = ordered[len(ordered)-MaxFailuresToKeep:]
	}
	return &Summary{
		Failures:       ordered,
		PartialSuccess: partialSuccess,
	}
}

// ForCancellation adds a manual cancellation reason before building the summary.
func ForCancellation(jobID int64, attemptNumber int, reasons []Reason, partialSuccess *bool, now time.Time) *Summary {
	all := append(append([]Reason{}, reasons...), Reason{
		Type:            TypeManualCancellation,
		InternalMessage: "Setting attempt to FAILED because the job was cancelled",
		ExternalMessage: "This attempt was cancelled",
		Timestamp:       now.UnixMilli(),
		Metadata:        Metadata{JobID: jobID, AttemptNumber: attemptNumber},
	})
	return NewSummary(all, partialSuccess)
}

// FirstType returns the type of the first reason, or "" for an empty list.
func FirstType(reasons []Reason) Type {
	if len(reasons) == 0 {
		return ""
	}
	return reasons[0].Type
}

func generic(err error, jobID int64, attemptNumber int, now time.Time) Reason {
	r := Reason{
		Timestamp: now.UnixMilli(),
		Metadata:  Metadata{JobID: jobID, AttemptNumber: attemptNumber},
	}
	if err != nil {
		r.InternalMessage = truncate(err.Error(), maxMessageLength)
		r.StackTrace = truncate(fmt.Sprintf("%+v", err), maxStackTraceLength)
	}
	return r
}

// CheckFailure is raised when a connection check reports the connector as
// unreachable or misconfigured.
func CheckFailure(err error, jobID int64, attemptNumber int, origin Origin, now time.Time) Reason {
	r := generic(err, jobID, attemptNumber, now)
	r.Origin = origin
	r.Type = TypeConfigError
	r.Retryable = false
	r.Metadata.ConnectorCommand = "check"
	r.ExternalMessage = fmt.Sprintf(
		"Checking %s connection failed - please review this connection's configuration to prevent future syncs from failing",
		origin,
	)
	return r
}

// ReplicationFailure is raised when the data transfer itself fails.
func ReplicationFailure(err error, jobID int64, attemptNumber int, now time.Time) Reason {
	r := generic(err, jobID, attemptNumber, now)
	r.Origin = OriginReplication
	r.Retryable = true
	if IsLaunchError(err) {
		r.Type = TypeTransientError
		r.ExternalMessage = "The sync process could not be started."
		return r
	}
	r.ExternalMessage = "Something went wrong during replication"
	return r
}

// UnknownOrigin is raised for errors that cannot be attributed.
func UnknownOrigin(err error, jobID int64, attemptNumber int, now time.Time) Reason {
	r := generic(err, jobID, attemptNumber, now)
	r.Origin = OriginUnknown
	r.Retryable = true
	r.ExternalMessage = "An unknown failure occurred"
	return r
}

// PlatformFailure is raised when the orchestration platform itself fails.
func PlatformFailure(err error, jobID int64, attemptNumber int, now time.Time) Reason {
	r := generic(err, jobID, attemptNumber, now)
	r.Origin = OriginPlatform
	r.Retryable = true
	r.ExternalMessage = "Something went wrong within the platform"
	return r
}

// CleanedJobStateFailure marks attempts that were left running when the
// controller restarted.
func CleanedJobStateFailure(jobID int64, attemptNumber int, now time.Time) Reason {
	return Reason{
		Origin: OriginPlatform,
		Type:   TypeTransientError,
		InternalMessage: "Setting attempt to FAILED because the workflow for this connection was restarted, " +
			"and existing job state was cleaned.",
		ExternalMessage: "An internal transient error has occurred. The sync should work fine on the next retry.",
		Retryable:       true,
		Timestamp:       now.UnixMilli(),
		Metadata:        Metadata{JobID: jobID, AttemptNumber: attemptNumber},
	}
}

// FromWorkflowAndActivity classifies an activity error that escaped a child
// workflow: sync children produce replication failures, anything else is
// unknown.
func FromWorkflowAndActivity(workflowType, syncWorkflowType string, err error, jobID int64, attemptNumber int, now time.Time) Reason {
	if workflowType == syncWorkflowType {
		return ReplicationFailure(err, jobID, attemptNumber, now)
	}
	return UnknownOrigin(err, jobID, attemptNumber, now)
}

// LaunchErrorType is the application error type used when a LaunchError
// crosses an activity boundary.
const LaunchErrorType = "LaunchError"

// IsLaunchError reports whether err is, or was serialized from, a LaunchError.
func IsLaunchError(err error) bool {
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		return true
	}
	var typed interface{ Type() string }
	return errors.As(err, &typed) && typed.Type() == LaunchErrorType
}

// LaunchError signals that a connector process could not be started.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch connector: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

func truncate(s string, maxWidth int) string {
	if len(s) <= maxWidth {
		return s
	}
	adjusted := maxWidth - len(attributionMessage) - 1
	if adjusted < 4 {
		return s
	}
	return s[:adjusted-3] + "... " + attributionMessage
}
