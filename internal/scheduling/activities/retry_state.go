package activities

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stacklok/toolhive-sync-controller/internal/retries"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
)

// HydrateInput addresses the retry state of a job. JobID is nil before the
// first job of a cycle exists.
type HydrateInput struct {
	JobID        *int64    `json:"jobId,omitempty"`
	ConnectionID uuid.UUID `json:"connectionId"`
}

// HydrateOutput carries a retry manager seeded with the persisted counters.
type HydrateOutput struct {
	Manager *retries.Manager `json:"manager"`
}

// PersistInput stores the counters of a manager.
type PersistInput struct {
	JobID        int64            `json:"jobId"`
	ConnectionID uuid.UUID        `json:"connectionId"`
	Manager      *retries.Manager `json:"manager"`
}

// HydrateRetryState builds a retry manager from the configured policy and the
// counters persisted for the job, if any.
func (a *Activities) HydrateRetryState(ctx context.Context, in HydrateInput) (*HydrateOutput, error) {
	var opts []retries.Option
	if a.settings.PartialFailureBackoff != nil {
		opts = append(opts, retries.WithPartialFailurePolicy(*a.settings.PartialFailureBackoff))
	}

	if in.JobID != nil {
		state, err := a.store.GetRetryState(ctx, *in.JobID)
		switch {
		case err == nil:
			opts = append(opts, retries.WithState(*state))
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, fmt.Errorf("failed to load retry state of job %d: %w", *in.JobID, err)
		}
	}

	return &HydrateOutput{
		Manager: retries.NewManager(a.settings.CompleteFailureBackoff, a.settings.RetryLimits, opts...),
	}, nil
}

// PersistRetryState stores the counters of the manager for the job.
func (a *Activities) PersistRetryState(ctx context.Context, in PersistInput) (bool, error) {
	if in.Manager == nil {
		return false, errors.New("no retry manager to persist")
	}
	if err := a.store.PutRetryState(ctx, in.JobID, in.ConnectionID, in.Manager.State); err != nil {
		return false, wrapStoreErr(err, "failed to persist retry state of job %d", in.JobID)
	}
	return true, nil
}
