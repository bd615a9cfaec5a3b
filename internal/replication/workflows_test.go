package replication

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/stacklok/toolhive-sync-controller/internal/connectors"
	"github.com/stacklok/toolhive-sync-controller/internal/scheduling/activities"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
)

func newWorkflowEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&Activities{})
	t.Cleanup(func() { env.AssertExpectations(t) })
	return env
}

func TestCheckConnectionWorkflow(t *testing.T) {
	t.Parallel()

	in := CheckConnectionInput{JobID: 3, ConnectionID: uuid.New(), ActorType: connectors.ActorTypeSource}

	t.Run("returns the check verdict", func(t *testing.T) {
		t.Parallel()
		env := newWorkflowEnv(t)
		env.OnActivity(acts.RunCheck, mock.Anything, in).
			Return(&CheckConnectionOutput{Succeeded: false, Message: "unreachable"}, nil)

		env.ExecuteWorkflow(CheckConnectionWorkflow, in)
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		var out CheckConnectionOutput
		require.NoError(t, env.GetWorkflowResult(&out))
		assert.Equal(t, CheckConnectionOutput{Message: "unreachable"}, out)
	})

	t.Run("activity error fails the workflow", func(t *testing.T) {
		t.Parallel()
		env := newWorkflowEnv(t)
		env.OnActivity(acts.RunCheck, mock.Anything, in).Return(nil, errors.New("service down"))

		env.ExecuteWorkflow(CheckConnectionWorkflow, in)
		require.True(t, env.IsWorkflowCompleted())
		require.Error(t, env.GetWorkflowError())
		assert.Contains(t, env.GetWorkflowError().Error(), "service down")
	})
}

func TestSyncWorkflow(t *testing.T) {
	t.Parallel()
	env := newWorkflowEnv(t)
	in := SyncInput{JobID: 4, ConnectionContext: activities.ConnectionContext{ConnectionID: uuid.New()}}
	env.OnActivity(acts.Replicate, mock.Anything, in).
		Return(&SyncOutput{Status: SyncStatusSucceeded, RecordsCommitted: 5}, nil)

	env.ExecuteWorkflow(SyncWorkflow, in)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var out SyncOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, SyncOutput{Status: SyncStatusSucceeded, RecordsCommitted: 5}, out)
}

func TestSyncWorkflowV2(t *testing.T) {
	t.Parallel()

	connID := uuid.New()
	in := SyncInputV2{JobID: 4, AttemptNumber: 1, ConnectionID: connID}
	full := SyncInput{
		JobID:             4,
		AttemptNumber:     1,
		ConnectionContext: activities.ConnectionContext{ConnectionID: connID, SourceID: uuid.New()},
		IsReset:           true,
		ResetStreams:      []store.StreamDescriptor{{Name: "users"}},
	}

	t.Run("hydrates then replicates", func(t *testing.T) {
		t.Parallel()
		env := newWorkflowEnv(t)
		env.OnActivity(acts.HydrateSyncInput, mock.Anything, in).Return(&full, nil).Once()
		env.OnActivity(acts.Replicate, mock.Anything, full).Return(&SyncOutput{Status: SyncStatusCancelled}, nil).Once()

		env.ExecuteWorkflow(SyncWorkflowV2, in)
		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		var out SyncOutput
		require.NoError(t, env.GetWorkflowResult(&out))
		assert.Equal(t, SyncStatusCancelled, out.Status)
	})

	t.Run("hydration failure stops before replicating", func(t *testing.T) {
		t.Parallel()
		env := newWorkflowEnv(t)
		env.OnActivity(acts.HydrateSyncInput, mock.Anything, in).Return(nil, errors.New("db gone"))

		env.ExecuteWorkflow(SyncWorkflowV2, in)
		require.True(t, env.IsWorkflowCompleted())
		require.Error(t, env.GetWorkflowError())
	})
}

func TestPostSyncWorkflow(t *testing.T) {
	t.Parallel()
	env := newWorkflowEnv(t)
	in := PostSyncInput{JobID: 9, ConnectionID: uuid.New(), JobStatus: store.JobStatusFailed}
	env.OnActivity(acts.RefreshMetadata, mock.Anything, in).Return(nil).Once()

	env.ExecuteWorkflow(PostSyncWorkflow, in)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
}
