// Package replication implements the child workflows the connection manager
// starts for each job: connection checks, the data sync itself and the
// post-sync hook. Each child drives one connector command through the
// connector command service and reports a structured outcome.
package replication

import (
	"github.com/google/uuid"

	"github.com/stacklok/toolhive-sync-controller/internal/connectors"
	"github.com/stacklok/toolhive-sync-controller/internal/failures"
	"github.com/stacklok/toolhive-sync-controller/internal/scheduling/activities"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
)

// Workflow type names, as registered with the worker.
const (
	CheckConnectionWorkflowName = "CheckConnectionWorkflow"
	SyncWorkflowName            = "SyncWorkflow"
	SyncWorkflowV2Name          = "SyncWorkflowV2"
	PostSyncWorkflowName        = "PostSyncWorkflow"
)

// SyncStatus is the outcome of a sync child.
type SyncStatus string

// Sync outcomes.
const (
	SyncStatusSucceeded SyncStatus = "succeeded"
	SyncStatusFailed    SyncStatus = "failed"
	SyncStatusCancelled SyncStatus = "cancelled"
)

// SyncOutput is returned by both sync workflow shapes.
type SyncOutput struct {
	Status           SyncStatus        `json:"status"`
	Failures         []failures.Reason `json:"failures,omitempty"`
	RecordsCommitted int64             `json:"recordsCommitted"`
	BytesCommitted   int64             `json:"bytesCommitted"`
	PartialSuccess   bool              `json:"partialSuccess,omitempty"`
}

// CheckConnectionInput checks one side of a connection.
type CheckConnectionInput struct {
	JobID         int64                `json:"jobId"`
	AttemptNumber int                  `json:"attemptNumber"`
	ConnectionID  uuid.UUID            `json:"connectionId"`
	WorkspaceID   uuid.UUID            `json:"workspaceId"`
	ActorType     connectors.ActorType `json:"actorType"`
	ActorID       uuid.UUID            `json:"actorId"`
	DefinitionID  uuid.UUID            `json:"definitionId"`
}

// CheckConnectionOutput reports whether the connector could reach its system.
type CheckConnectionOutput struct {
	Succeeded bool   `json:"succeeded"`
	Message   string `json:"message,omitempty"`
}

// SyncInput is the legacy sync input: the controller hands over the
// connection context it already hydrated.
type SyncInput struct {
	JobID             int64                        `json:"jobId"`
	AttemptNumber     int                          `json:"attemptNumber"`
	ConnectionContext activities.ConnectionContext `json:"connectionContext"`
	IsReset           bool                         `json:"isReset,omitempty"`
	ResetStreams      []store.StreamDescriptor     `json:"resetStreams,omitempty"`
}

// SyncInputV2 only carries ids; the child hydrates everything else itself.
type SyncInputV2 struct {
	JobID         int64     `json:"jobId"`
	AttemptNumber int       `json:"attemptNumber"`
	ConnectionID  uuid.UUID `json:"connectionId"`
}

// PostSyncInput describes a job that reached a terminal status.
type PostSyncInput struct {
	JobID        int64           `json:"jobId"`
	ConnectionID uuid.UUID       `json:"connectionId"`
	JobStatus    store.JobStatus `json:"jobStatus"`
}

func streamRefs(streams []store.StreamDescriptor) []connectors.StreamRef {
	if len(streams) == 0 {
		return nil
	}
	out := make([]connectors.StreamRef, len(streams))
	for i, s := range streams {
		out[i] = connectors.StreamRef{Namespace: s.Namespace, Name: s.Name}
	}
	return out
}
