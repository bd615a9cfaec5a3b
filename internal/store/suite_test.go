package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-sync-controller/internal/failures"
	"github.com/stacklok/toolhive-sync-controller/internal/retries"
)

// seedConnection creates a workspace and an active connection on a one hour schedule.
func seedConnection(t *testing.T, s Store) Connection {
	t.Helper()
	ctx := context.Background()

	ws := Workspace{ID: uuid.New(), OrganizationID: uuid.New(), Name: "acme"}
	require.NoError(t, s.UpsertWorkspace(ctx, ws))

	c := Connection{
		ID:                      uuid.New(),
		WorkspaceID:             ws.ID,
		Name:                    "pg-to-s3",
		Status:                  ConnectionStatusActive,
		Schedule:                Schedule{Type: ScheduleTypeBasic, Interval: time.Hour},
		SourceID:                uuid.New(),
		DestinationID:           uuid.New(),
		SourceDefinitionID:      uuid.New(),
		DestinationDefinitionID: uuid.New(),
	}
	require.NoError(t, s.UpsertConnection(ctx, c))
	return c
}

// runStoreSuite exercises the behavior every Store implementation shares.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("connections and workspaces", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		c := seedConnection(t, s)

		got, err := s.GetConnection(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.Name, got.Name)
		assert.Equal(t, ConnectionStatusActive, got.Status)
		assert.Equal(t, Schedule{Type: ScheduleTypeBasic, Interval: time.Hour}, got.Schedule)
		assert.Nil(t, got.AutoDisableWarnedAt)

		ws, err := s.GetWorkspaceForConnection(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.WorkspaceID, ws.ID)
		assert.False(t, ws.Tombstone)

		require.NoError(t, s.SetConnectionStatus(ctx, c.ID, ConnectionStatusInactive, "too many failures"))
		got, err = s.GetConnection(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, ConnectionStatusInactive, got.Status)
		assert.Equal(t, "too many failures", got.StatusReason)

		warnedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.MarkAutoDisableWarning(ctx, c.ID, warnedAt))
		got, err = s.GetConnection(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, got.AutoDisableWarnedAt)
		assert.True(t, warnedAt.Equal(*got.AutoDisableWarnedAt))
	})

	t.Run("missing rows", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetConnection(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetWorkspaceForConnection(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetJob(ctx, 987654321)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.LastJob(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetRetryState(ctx, 987654321)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.SetConnectionStatus(ctx, uuid.New(), ConnectionStatusInactive, ""), ErrNotFound)
		assert.ErrorIs(t, s.FailJob(ctx, 987654321, "x"), ErrNotFound)
	})

	t.Run("one active job per connection", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		c := seedConnection(t, s)

		first, err := s.CreateJob(ctx, CreateJobRequest{ConnectionID: c.ID, ConfigType: JobConfigTypeSync, Scheduled: true})
		require.NoError(t, err)
		again, err := s.CreateJob(ctx, CreateJobRequest{ConnectionID: c.ID, ConfigType: JobConfigTypeSync})
		require.NoError(t, err)
		assert.Equal(t, first, again)

		require.NoError(t, s.FailJob(ctx, first, "gave up"))
		second, err := s.CreateJob(ctx, CreateJobRequest{ConnectionID: c.ID, ConfigType: JobConfigTypeSync})
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		last, err := s.LastJob(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, second, last.ID)
		assert.False(t, last.IsScheduled)

		firstJob, err := s.FirstJob(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, first, firstJob.ID)
		assert.Equal(t, JobStatusFailed, firstJob.Status)
		assert.Equal(t, "gave up", firstJob.FailureReason)

		active, err := s.ListNonTerminalJobs(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, second, active[0].ID)

		all, err := s.ListJobsSince(ctx, c.ID, time.Time{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, second, all[0].ID, "newest first")
	})

	t.Run("attempt lifecycle", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		c := seedConnection(t, s)

		jobID, err := s.CreateJob(ctx, CreateJobRequest{ConnectionID: c.ID, ConfigType: JobConfigTypeSync, Scheduled: true})
		require.NoError(t, err)

		n, err := s.CreateAttempt(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		job, err := s.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusRunning, job.Status)

		summary := failures.NewSummary([]failures.Reason{{
			Origin: failures.OriginSource, Type: failures.TypeSystemError, InternalMessage: "boom", Timestamp: 10,
		}}, nil)
		require.NoError(t, s.FailAttempt(ctx, jobID, n, summary))

		job, err = s.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusIncomplete, job.Status)
		last, ok := job.LastAttempt()
		require.True(t, ok)
		assert.Equal(t, AttemptStatusFailed, last.Status)
		require.NotNil(t, last.FailureSummary)
		assert.Equal(t, "boom", last.FailureSummary.Failures[0].InternalMessage)
		assert.NotNil(t, last.EndedAt)

		n, err = s.CreateAttempt(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.NoError(t, s.SetAttemptStats(ctx, jobID, n, 120, 4096))

		started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		require.NoError(t, s.SetJobStarted(ctx, jobID, started))
		require.NoError(t, s.SetJobStarted(ctx, jobID, started.Add(time.Hour)))
		require.NoError(t, s.SucceedJob(ctx, jobID, n))

		job, err = s.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusSucceeded, job.Status)
		require.Len(t, job.Attempts, 2)
		assert.Equal(t, int64(120), job.Attempts[1].RecordsCommitted)
		assert.Equal(t, int64(4096), job.Attempts[1].BytesCommitted)
		require.NotNil(t, job.StartedAt)
		assert.True(t, started.Equal(*job.StartedAt), "first start wins")

		_, err = s.CreateAttempt(ctx, jobID)
		assert.Error(t, err, "terminal jobs take no attempts")
	})

	t.Run("cancel job", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		c := seedConnection(t, s)

		jobID, err := s.CreateJob(ctx, CreateJobRequest{ConnectionID: c.ID, ConfigType: JobConfigTypeSync})
		require.NoError(t, err)
		n, err := s.CreateAttempt(ctx, jobID)
		require.NoError(t, err)

		summary := failures.ForCancellation(jobID, n, nil, nil, time.UnixMilli(99))
		require.NoError(t, s.CancelJob(ctx, jobID, n, summary))

		job, err := s.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusCancelled, job.Status)
		assert.Equal(t, AttemptStatusFailed, job.Attempts[0].Status)
		require.NotNil(t, job.Attempts[0].FailureSummary)
		assert.Equal(t, failures.TypeManualCancellation, job.Attempts[0].FailureSummary.Failures[0].Type)
	})

	t.Run("retry state", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		c := seedConnection(t, s)

		jobID, err := s.CreateJob(ctx, CreateJobRequest{ConnectionID: c.ID, ConfigType: JobConfigTypeSync})
		require.NoError(t, err)

		_, err = s.GetRetryState(ctx, jobID)
		require.True(t, errors.Is(err, ErrNotFound))

		want := retries.State{SuccessiveCompleteFailures: 2, TotalCompleteFailures: 3, TotalPartialFailures: 1}
		require.NoError(t, s.PutRetryState(ctx, jobID, c.ID, want))
		want.TotalCompleteFailures = 4
		require.NoError(t, s.PutRetryState(ctx, jobID, c.ID, want))

		got, err := s.GetRetryState(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, want, *got)
	})

	t.Run("stream resets", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		c := seedConnection(t, s)

		users := StreamDescriptor{Namespace: "public", Name: "users"}
		orders := StreamDescriptor{Namespace: "public", Name: "orders"}
		require.NoError(t, s.AddStreamResets(ctx, c.ID, []StreamDescriptor{users}))
		require.NoError(t, s.AddStreamResets(ctx, c.ID, []StreamDescriptor{users, orders}))

		pending, err := s.ListStreamResets(ctx, c.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []StreamDescriptor{users, orders}, pending)

		jobID, err := s.CreateJob(ctx, CreateJobRequest{
			ConnectionID: c.ID, ConfigType: JobConfigTypeReset, ResetStreams: pending,
		})
		require.NoError(t, err)
		job, err := s.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, JobConfigTypeReset, job.ConfigType)
		assert.ElementsMatch(t, pending, job.ResetStreams)

		require.NoError(t, s.DeleteStreamResets(ctx, c.ID, []StreamDescriptor{users}))
		pending, err = s.ListStreamResets(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, []StreamDescriptor{orders}, pending)
	})
}
