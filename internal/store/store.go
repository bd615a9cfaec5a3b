// Package store persists the connections, jobs and attempts driven by the
// connection manager, together with the retry state of each job.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/toolhive-sync-controller/internal/failures"
	"github.com/stacklok/toolhive-sync-controller/internal/retries"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ConnectionStatus is the lifecycle status of a connection.
type ConnectionStatus string

const (
	// ConnectionStatusActive connections are scheduled
	ConnectionStatusActive ConnectionStatus = "active"
	// ConnectionStatusInactive connections only run when triggered manually
	ConnectionStatusInactive ConnectionStatus = "inactive"
	// ConnectionStatusDeprecated connections are deleted and never run
	ConnectionStatusDeprecated ConnectionStatus = "deprecated"
)

// ScheduleType selects how the next run of a connection is computed.
type ScheduleType string

const (
	// ScheduleTypeManual connections never run on their own
	ScheduleTypeManual ScheduleType = "manual"
	// ScheduleTypeBasic connections run every Schedule.Interval
	ScheduleTypeBasic ScheduleType = "basic"
	// ScheduleTypeCron connections run on Schedule.CronExpression
	ScheduleTypeCron ScheduleType = "cron"
)

// Schedule describes when a connection syncs.
type Schedule struct {
	Type           ScheduleType  `json:"type" yaml:"type"`
	Interval       time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	CronExpression string        `json:"cronExpression,omitempty" yaml:"cronExpression,omitempty"`
	CronTimeZone   string        `json:"cronTimeZone,omitempty" yaml:"cronTimeZone,omitempty"`
}

// Workspace groups connections. A tombstoned workspace has been deleted.
type Workspace struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	Tombstone      bool
}

// Connection is a configured replication between a source and a destination.
type Connection struct {
	ID                      uuid.UUID
	WorkspaceID             uuid.UUID
	Name                    string
	Status                  ConnectionStatus
	StatusReason            string
	Schedule                Schedule
	SourceID                uuid.UUID
	DestinationID           uuid.UUID
	SourceDefinitionID      uuid.UUID
	DestinationDefinitionID uuid.UUID
	AutoDisableWarnedAt     *time.Time
	UpdatedAt               time.Time
}

// JobConfigType distinguishes data syncs from connection resets.
type JobConfigType string

const (
	// JobConfigTypeSync copies data from source to destination
	JobConfigTypeSync JobConfigType = "sync"
	// JobConfigTypeReset clears the destination streams of a connection
	JobConfigTypeReset JobConfigType = "reset_connection"
)

// JobStatus is the status of a job.
type JobStatus string

const (
	// JobStatusPending jobs have no attempt yet
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning jobs have a running attempt
	JobStatusRunning JobStatus = "running"
	// JobStatusIncomplete jobs have a failed attempt and may be retried
	JobStatusIncomplete JobStatus = "incomplete"
	// JobStatusFailed jobs gave up
	JobStatusFailed JobStatus = "failed"
	// JobStatusSucceeded jobs completed
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusCancelled jobs were cancelled by a user or a reset
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further attempt can be made for the job.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusFailed, JobStatusSucceeded, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// AttemptStatus is the status of one attempt.
type AttemptStatus string

const (
	// AttemptStatusRunning attempts are in flight
	AttemptStatusRunning AttemptStatus = "running"
	// AttemptStatusFailed attempts failed or were cancelled
	AttemptStatusFailed AttemptStatus = "failed"
	// AttemptStatusSucceeded attempts completed
	AttemptStatusSucceeded AttemptStatus = "succeeded"
)

// StreamDescriptor names one stream of a connection.
type StreamDescriptor struct {
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

// Attempt is one execution of a job. Numbers start at 0.
type Attempt struct {
	JobID            int64
	Number           int
	Status           AttemptStatus
	FailureSummary   *failures.Summary
	RecordsCommitted int64
	BytesCommitted   int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	EndedAt          *time.Time
}

// Job is a unit of work for a connection, retried through its attempts.
type Job struct {
	ID            int64
	ConnectionID  uuid.UUID
	ConfigType    JobConfigType
	Status        JobStatus
	IsScheduled   bool
	FailureReason string
	ResetStreams  []StreamDescriptor
	Attempts      []Attempt
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
}

// LastAttempt returns the attempt with the highest number, if any.
func (j *Job) LastAttempt() (Attempt, bool) {
	if len(j.Attempts) == 0 {
		return Attempt{}, false
	}
	return j.Attempts[len(j.Attempts)-1], true
}

// CreateJobRequest describes a job to enqueue.
type CreateJobRequest struct {
	ConnectionID uuid.UUID
	ConfigType   JobConfigType
	Scheduled    bool
	ResetStreams []StreamDescriptor
}

// Store is the persistence used by the connection manager activities.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/stacklok/toolhive-sync-controller/internal/store Store
type Store interface {
	// UpsertWorkspace creates or replaces a workspace.
	UpsertWorkspace(ctx context.Context, w Workspace) error
	// GetWorkspaceForConnection returns the workspace owning a connection.
	GetWorkspaceForConnection(ctx context.Context, connectionID uuid.UUID) (*Workspace, error)
	// UpsertConnection creates or replaces a connection.
	UpsertConnection(ctx context.Context, c Connection) error
	// GetConnection returns a connection by id.
	GetConnection(ctx context.Context, connectionID uuid.UUID) (*Connection, error)
	// SetConnectionStatus changes the status of a connection and records why.
	SetConnectionStatus(ctx context.Context, connectionID uuid.UUID, status ConnectionStatus, reason string) error
	// MarkAutoDisableWarning records that a connection was warned about auto-disable.
	MarkAutoDisableWarning(ctx context.Context, connectionID uuid.UUID, at time.Time) error

	// CreateJob enqueues a job. When the connection already has a non-terminal
	// job its id is returned instead and the request is ignored.
	CreateJob(ctx context.Context, req CreateJobRequest) (int64, error)
	// GetJob returns a job with its attempts.
	GetJob(ctx context.Context, jobID int64) (*Job, error)
	// LastJob returns the most recently created job of a connection.
	LastJob(ctx context.Context, connectionID uuid.UUID) (*Job, error)
	// FirstJob returns the oldest job of a connection.
	FirstJob(ctx context.Context, connectionID uuid.UUID) (*Job, error)
	// ListJobsSince returns the jobs created at or after since, newest first.
	ListJobsSince(ctx context.Context, connectionID uuid.UUID, since time.Time) ([]Job, error)
	// ListNonTerminalJobs returns the jobs of a connection that have not finished.
	ListNonTerminalJobs(ctx context.Context, connectionID uuid.UUID) ([]Job, error)
	// SetJobStarted records the first time a job began running.
	SetJobStarted(ctx context.Context, jobID int64, at time.Time) error
	// SucceedJob marks the attempt and the job succeeded.
	SucceedJob(ctx context.Context, jobID int64, attemptNumber int) error
	// FailJob marks the job failed for good.
	FailJob(ctx context.Context, jobID int64, reason string) error
	// CancelJob fails the attempt with the summary and marks the job cancelled.
	CancelJob(ctx context.Context, jobID int64, attemptNumber int, summary *failures.Summary) error

	// CreateAttempt starts a new attempt and returns its number.
	CreateAttempt(ctx context.Context, jobID int64) (int, error)
	// FailAttempt marks an attempt failed and the job incomplete.
	FailAttempt(ctx context.Context, jobID int64, attemptNumber int, summary *failures.Summary) error
	// SetAttemptStats records how much data an attempt committed.
	SetAttemptStats(ctx context.Context, jobID int64, attemptNumber int, records, bytes int64) error

	// GetRetryState returns the persisted retry counters of a job.
	GetRetryState(ctx context.Context, jobID int64) (*retries.State, error)
	// PutRetryState stores the retry counters of a job.
	PutRetryState(ctx context.Context, jobID int64, connectionID uuid.UUID, state retries.State) error

	// AddStreamResets marks streams of a connection to be reset by the next job.
	AddStreamResets(ctx context.Context, connectionID uuid.UUID, streams []StreamDescriptor) error
	// ListStreamResets returns the streams waiting for a reset.
	ListStreamResets(ctx context.Context, connectionID uuid.UUID) ([]StreamDescriptor, error)
	// DeleteStreamResets removes pending resets once a reset job finished.
	DeleteStreamResets(ctx context.Context, connectionID uuid.UUID, streams []StreamDescriptor) error
}
