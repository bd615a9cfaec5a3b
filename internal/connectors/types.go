package connectors

import (
	"errors"
	"fmt"
)

// ErrCommandFailed is returned when a command reaches the failed state.
var ErrCommandFailed = errors.New("command failed")

// ErrCommandCancelled is returned when a command reaches the cancelled state.
var ErrCommandCancelled = errors.New("command cancelled")

// HTTPError represents an HTTP error response from the command service
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// Retryable reports whether repeating the request may succeed.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, url, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// CommandStatus is the lifecycle state of a connector command.
type CommandStatus string

// Command states reported by the service.
const (
	CommandStatusPending   CommandStatus = "pending"
	CommandStatusRunning   CommandStatus = "running"
	CommandStatusCompleted CommandStatus = "completed"
	CommandStatusFailed    CommandStatus = "failed"
	CommandStatusCancelled CommandStatus = "cancelled"
)

// IsTerminal reports whether the command will not change state again.
func (s CommandStatus) IsTerminal() bool {
	switch s {
	case CommandStatusCompleted, CommandStatusFailed, CommandStatusCancelled:
		return true
	default:
		return false
	}
}

// ActorType names the side of the connection a check runs against.
type ActorType string

// Actor types.
const (
	ActorTypeSource      ActorType = "source"
	ActorTypeDestination ActorType = "destination"
)

// CheckRequest starts a connection check for one actor.
type CheckRequest struct {
	CommandID    string    `json:"id"`
	ActorType    ActorType `json:"actorType"`
	ActorID      string    `json:"actorId"`
	DefinitionID string    `json:"definitionId,omitempty"`
	WorkspaceID  string    `json:"workspaceId"`
	JobID        int64     `json:"jobId"`
	Attempt      int       `json:"attemptNumber"`
}

// CheckOutput is the result of a completed check command.
type CheckOutput struct {
	Succeeded bool   `json:"succeeded"`
	Message   string `json:"message,omitempty"`
}

// StreamRef names a stream in a replication request.
type StreamRef struct {
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

// ReplicationRequest starts a replication for one attempt.
type ReplicationRequest struct {
	CommandID     string      `json:"id"`
	ConnectionID  string      `json:"connectionId"`
	WorkspaceID   string      `json:"workspaceId"`
	SourceID      string      `json:"sourceId"`
	DestinationID string      `json:"destinationId"`
	JobID         int64       `json:"jobId"`
	Attempt       int         `json:"attemptNumber"`
	IsReset       bool        `json:"isReset,omitempty"`
	ResetStreams  []StreamRef `json:"resetStreams,omitempty"`
}

// ReplicationOutput is the result of a finished replication command.
type ReplicationOutput struct {
	RecordsCommitted int64    `json:"recordsCommitted"`
	BytesCommitted   int64    `json:"bytesCommitted"`
	PartialSuccess   bool     `json:"partialSuccess,omitempty"`
	FailureOrigin    string   `json:"failureOrigin,omitempty"`
	FailureType      string   `json:"failureType,omitempty"`
	FailureMessage   string   `json:"failureMessage,omitempty"`
	FailureStreams   []string `json:"failureStreams,omitempty"`
}

type startResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	Status CommandStatus `json:"status"`
}
