package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/stacklok/toolhive-sync-controller/internal/connectors"
	"github.com/stacklok/toolhive-sync-controller/internal/failures"
	"github.com/stacklok/toolhive-sync-controller/internal/flags"
	"github.com/stacklok/toolhive-sync-controller/internal/replication"
	"github.com/stacklok/toolhive-sync-controller/internal/retries"
	"github.com/stacklok/toolhive-sync-controller/internal/scheduling/activities"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
	"github.com/stacklok/toolhive-sync-controller/internal/telemetry"
)

const failingLaunchActivity = "failingLaunch"

// harness mocks every controller activity and child workflow. Behaviour
// fields are read when the mocks run, so tests set them before execute.
type harness struct {
	t      *testing.T
	env    *testsuite.TestWorkflowEnvironment
	connID uuid.UUID
	start  time.Time

	tombstoned     bool
	loadShed       []time.Duration
	restartDelay   time.Duration
	timeToWait     time.Duration
	hydrated       *retries.Manager
	hydrateErr     error
	featureFlags   map[string]bool
	jobID          int64
	isReset        bool
	createJobErr   error
	attempt        int
	reportStartErr error
	lastFailed     bool
	madeProgress   bool
	maxAttempt     int
	checks         map[connectors.ActorType]replication.CheckConnectionOutput
	checkErr       error
	sync           func(ctx workflow.Context) (*replication.SyncOutput, error)

	mu              sync.Mutex
	calls           map[string]int
	created         []activities.JobCreationInput
	createdAt       []time.Time
	attempts        []activities.AttemptCreationInput
	attemptFailures []activities.AttemptFailureInput
	jobFailures     []activities.JobFailureInput
	cancellations   []activities.JobCancelledInput
	persisted       []retries.State
	metrics         []activities.RecordMetricInput
	checkInputs     []replication.CheckConnectionInput
	syncInputs      []replication.SyncInput
	syncV2Inputs    []replication.SyncInputV2
	postSync        []replication.PostSyncInput
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	h := &harness{
		t:            t,
		env:          suite.NewTestWorkflowEnvironment(),
		connID:       uuid.New(),
		restartDelay: 10 * time.Minute,
		featureFlags: map[string]bool{},
		jobID:        42,
		maxAttempt:   3,
		checks:       map[connectors.ActorType]replication.CheckConnectionOutput{},
		calls:        map[string]int{},
		sync: func(workflow.Context) (*replication.SyncOutput, error) {
			return &replication.SyncOutput{Status: replication.SyncStatusSucceeded, RecordsCommitted: 10}, nil
		},
	}
	h.start = h.env.Now()
	h.register()
	return h
}

func (h *harness) record(name string, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[name]++
	if fn != nil {
		fn()
	}
}

func (h *harness) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[name]
}

func (h *harness) register() {
	env := h.env
	env.RegisterWorkflow(ConnectionManagerWorkflow)
	env.RegisterWorkflow(replication.CheckConnectionWorkflow)
	env.RegisterWorkflow(replication.SyncWorkflow)
	env.RegisterWorkflow(replication.SyncWorkflowV2)
	env.RegisterWorkflow(replication.PostSyncWorkflow)
	env.RegisterActivity(&activities.Activities{})
	env.RegisterActivityWithOptions(func(context.Context) error {
		return temporal.NewNonRetryableApplicationError("connector could not start", failures.LaunchErrorType, nil)
	}, activity.RegisterOptions{Name: failingLaunchActivity})

	env.OnActivity(acts.IsWorkspaceTombstoned, mock.Anything, mock.Anything).Return(
		func(context.Context, activities.ConnectionInput) (bool, error) {
			h.record("IsWorkspaceTombstoned", nil)
			return h.tombstoned, nil
		}).Maybe()
	env.OnActivity(acts.GetConnectionContext, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.ConnectionInput) (*activities.ConnectionContext, error) {
			h.record("GetConnectionContext", nil)
			return &activities.ConnectionContext{
				ConnectionID:  in.ConnectionID,
				WorkspaceID:   uuid.MustParse("00000000-0000-0000-0000-0000000000a1"),
				SourceID:      uuid.MustParse("00000000-0000-0000-0000-0000000000b1"),
				DestinationID: uuid.MustParse("00000000-0000-0000-0000-0000000000c1"),
			}, nil
		}).Maybe()
	env.OnActivity(acts.GetLoadShedBackoff, mock.Anything, mock.Anything).Return(
		func(context.Context, activities.ConnectionContext) (time.Duration, error) {
			var wait time.Duration
			h.record("GetLoadShedBackoff", func() {
				if len(h.loadShed) > 0 {
					wait, h.loadShed = h.loadShed[0], h.loadShed[1:]
				}
			})
			return wait, nil
		}).Maybe()
	env.OnActivity(acts.GetWorkflowRestartDelay, mock.Anything).Return(
		func(context.Context) (time.Duration, error) {
			return h.restartDelay, nil
		}).Maybe()
	env.OnActivity(acts.RecordMetric, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.RecordMetricInput) error {
			h.record("RecordMetric", func() { h.metrics = append(h.metrics, in) })
			return nil
		}).Maybe()
	env.OnActivity(acts.EnsureCleanJobState, mock.Anything, mock.Anything).Return(
		func(context.Context, activities.ConnectionInput) error {
			h.record("EnsureCleanJobState", nil)
			return nil
		}).Maybe()
	env.OnActivity(acts.HydrateRetryState, mock.Anything, mock.Anything).Return(
		func(context.Context, activities.HydrateInput) (*activities.HydrateOutput, error) {
			h.record("HydrateRetryState", nil)
			if h.hydrateErr != nil {
				return nil, h.hydrateErr
			}
			return &activities.HydrateOutput{Manager: h.hydrated}, nil
		}).Maybe()
	env.OnActivity(acts.GetTimeToWait, mock.Anything, mock.Anything).Return(
		func(context.Context, activities.ConnectionInput) (time.Duration, error) {
			return h.timeToWait, nil
		}).Maybe()
	env.OnActivity(acts.GetFeatureFlags, mock.Anything, mock.Anything).Return(
		func(context.Context, activities.ConnectionInput) (map[string]bool, error) {
			h.record("GetFeatureFlags", nil)
			return h.featureFlags, nil
		}).Maybe()
	env.OnActivity(acts.CreateNewJob, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.JobCreationInput) (*activities.JobCreationOutput, error) {
			h.record("CreateNewJob", func() {
				h.created = append(h.created, in)
				h.createdAt = append(h.createdAt, h.env.Now())
			})
			if h.createJobErr != nil {
				return nil, h.createJobErr
			}
			return &activities.JobCreationOutput{JobID: h.jobID, IsReset: h.isReset}, nil
		}).Maybe()
	env.OnActivity(acts.CreateNewAttemptNumber, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.AttemptCreationInput) (int, error) {
			h.record("CreateNewAttemptNumber", func() { h.attempts = append(h.attempts, in) })
			return h.attempt, nil
		}).Maybe()
	env.OnActivity(acts.ReportJobStart, mock.Anything, mock.Anything).Return(
		func(context.Context, activities.JobInput) error {
			h.record("ReportJobStart", nil)
			return h.reportStartErr
		}).Maybe()
	env.OnActivity(acts.IsLastJobOrAttemptFailure, mock.Anything, mock.Anything).Return(
		func(context.Context, activities.JobInput) (bool, error) {
			return h.lastFailed, nil
		}).Maybe()
	env.OnActivity(acts.JobSuccess, mock.Anything, mock.Anything).Return(
		func(context.Context, activities.JobInput) error {
			h.record("JobSuccess", nil)
			return nil
		}).Maybe()
	env.OnActivity(acts.AttemptFailure, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.AttemptFailureInput) error {
			h.record("AttemptFailure", func() { h.attemptFailures = append(h.attemptFailures, in) })
			return nil
		}).Maybe()
	env.OnActivity(acts.JobFailure, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.JobFailureInput) error {
			h.record("JobFailure", func() { h.jobFailures = append(h.jobFailures, in) })
			return nil
		}).Maybe()
	env.OnActivity(acts.JobCancelled, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.JobCancelledInput) error {
			h.record("JobCancelled", func() { h.cancellations = append(h.cancellations, in) })
			return nil
		}).Maybe()
	env.OnActivity(acts.CheckRunProgress, mock.Anything, mock.Anything).Return(
		func(context.Context, activities.JobInput) (bool, error) {
			return h.madeProgress, nil
		}).Maybe()
	env.OnActivity(acts.PersistRetryState, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.PersistInput) (bool, error) {
			h.record("PersistRetryState", func() { h.persisted = append(h.persisted, in.Manager.State) })
			return true, nil
		}).Maybe()
	env.OnActivity(acts.GetMaxAttempt, mock.Anything).Return(
		func(context.Context) (int, error) {
			return h.maxAttempt, nil
		}).Maybe()
	env.OnActivity(acts.AutoDisableConnection, mock.Anything, mock.Anything).Return(
		func(context.Context, activities.ConnectionInput) (*activities.AutoDisableOutput, error) {
			h.record("AutoDisableConnection", nil)
			return &activities.AutoDisableOutput{}, nil
		}).Maybe()
	env.OnActivity(acts.DeleteStreamResetRecordsForJob, mock.Anything, mock.Anything).Return(
		func(context.Context, activities.JobInput) error {
			h.record("DeleteStreamResetRecordsForJob", nil)
			return nil
		}).Maybe()

	env.OnWorkflow(replication.CheckConnectionWorkflow, mock.Anything, mock.Anything).Return(
		func(_ workflow.Context, in replication.CheckConnectionInput) (*replication.CheckConnectionOutput, error) {
			h.record("CheckConnectionWorkflow", func() { h.checkInputs = append(h.checkInputs, in) })
			if h.checkErr != nil {
				return nil, h.checkErr
			}
			out, ok := h.checks[in.ActorType]
			if !ok {
				out = replication.CheckConnectionOutput{Succeeded: true}
			}
			return &out, nil
		}).Maybe()
	env.OnWorkflow(replication.SyncWorkflow, mock.Anything, mock.Anything).Return(
		func(ctx workflow.Context, in replication.SyncInput) (*replication.SyncOutput, error) {
			h.record("SyncWorkflow", func() { h.syncInputs = append(h.syncInputs, in) })
			return h.sync(ctx)
		}).Maybe()
	env.OnWorkflow(replication.SyncWorkflowV2, mock.Anything, mock.Anything).Return(
		func(ctx workflow.Context, in replication.SyncInputV2) (*replication.SyncOutput, error) {
			h.record("SyncWorkflowV2", func() { h.syncV2Inputs = append(h.syncV2Inputs, in) })
			return h.sync(ctx)
		}).Maybe()
	env.OnWorkflow(replication.PostSyncWorkflow, mock.Anything, mock.Anything).Return(
		func(_ workflow.Context, in replication.PostSyncInput) error {
			h.record("PostSyncWorkflow", func() { h.postSync = append(h.postSync, in) })
			return nil
		}).Maybe()
}

func (h *harness) execute(in ControllerInput) {
	h.t.Helper()
	h.env.ExecuteWorkflow(ConnectionManagerWorkflow, in)
	require.True(h.t, h.env.IsWorkflowCompleted())
}

// nextInput decodes the input of the run the controller continued as.
func (h *harness) nextInput() ControllerInput {
	h.t.Helper()
	var canErr *workflow.ContinueAsNewError
	require.ErrorAs(h.t, h.env.GetWorkflowError(), &canErr)
	assert.Equal(h.t, WorkflowName, canErr.WorkflowType.Name)
	var next ControllerInput
	require.NoError(h.t, converter.GetDefaultDataConverter().FromPayloads(canErr.Input, &next))
	return next
}

func (h *harness) signalAfter(d time.Duration, signal string) {
	h.env.RegisterDelayedCallback(func() {
		h.env.SignalWorkflow(signal, nil)
	}, d)
}

func (h *harness) metricsFor(event telemetry.Event) []activities.RecordMetricInput {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []activities.RecordMetricInput
	for _, m := range h.metrics {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

func (h *harness) queryState() SignalState {
	h.t.Helper()
	val, err := h.env.QueryWorkflow(QueryGetState)
	require.NoError(h.t, err)
	var state SignalState
	require.NoError(h.t, val.Get(&state))
	return state
}

func (h *harness) queryJob() JobInformation {
	h.t.Helper()
	val, err := h.env.QueryWorkflow(QueryGetJobInformation)
	require.NoError(h.t, err)
	var info JobInformation
	require.NoError(h.t, val.Get(&info))
	return info
}

// blockingSync keeps the sync child running for d unless it is cancelled.
func blockingSync(d time.Duration) func(workflow.Context) (*replication.SyncOutput, error) {
	return func(ctx workflow.Context) (*replication.SyncOutput, error) {
		if err := workflow.Sleep(ctx, d); err != nil {
			return nil, err
		}
		return &replication.SyncOutput{Status: replication.SyncStatusSucceeded}, nil
	}
}

func failedSync(records int64, reasons ...failures.Reason) func(workflow.Context) (*replication.SyncOutput, error) {
	return func(workflow.Context) (*replication.SyncOutput, error) {
		return &replication.SyncOutput{
			Status:           replication.SyncStatusFailed,
			Failures:         reasons,
			RecordsCommitted: records,
		}, nil
	}
}

func TestConnectionManagerWorkflow_SuccessfulRun(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.execute(NewControllerInput(h.connID))

	assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
	require.Len(t, h.created, 1)
	assert.True(t, h.created[0].Scheduled)
	assert.Equal(t, []activities.AttemptCreationInput{{JobID: 42}}, h.attempts)
	assert.Equal(t, 1, h.count("EnsureCleanJobState"))
	assert.Equal(t, 1, h.count("ReportJobStart"))
	assert.Equal(t, 1, h.count("JobSuccess"))
	assert.Equal(t, 1, h.count("DeleteStreamResetRecordsForJob"))
	assert.Zero(t, h.count("AttemptFailure"))
	assert.Zero(t, h.count("CheckConnectionWorkflow"), "checks only run after a failure")

	require.Len(t, h.syncInputs, 1)
	assert.Equal(t, int64(42), h.syncInputs[0].JobID)
	assert.Equal(t, h.connID, h.syncInputs[0].ConnectionContext.ConnectionID)
	assert.Equal(t, []replication.PostSyncInput{
		{JobID: 42, ConnectionID: h.connID, JobStatus: store.JobStatusSucceeded},
	}, h.postSync)

	assert.Len(t, h.metricsFor(telemetry.EventWorkflowAttempt), 1)
	assert.Len(t, h.metricsFor(telemetry.EventWorkflowSuccess), 1)
	assert.Empty(t, h.metricsFor(telemetry.EventWorkflowFailure))
}

func TestConnectionManagerWorkflow_WaitsForSchedule(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.timeToWait = time.Hour

	h.env.RegisterDelayedCallback(func() {
		assert.Zero(t, h.count("CreateNewJob"))
		assert.Equal(t, JobInformation{JobID: NonRunningJobID, AttemptID: NonRunningAttemptID}, h.queryJob())
		assert.Equal(t, SignalState{}, h.queryState())
	}, 30*time.Minute)

	h.execute(NewControllerInput(h.connID))

	h.nextInput()
	require.Len(t, h.createdAt, 1)
	assert.GreaterOrEqual(t, h.createdAt[0].Sub(h.start), time.Hour)
	assert.True(t, h.created[0].Scheduled)
}

func TestConnectionManagerWorkflow_ManualSync(t *testing.T) {
	t.Parallel()

	t.Run("interrupts the wait", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.timeToWait = activities.NeverRun
		h.signalAfter(time.Minute, SignalSubmitManualSync)

		h.execute(NewControllerInput(h.connID))

		assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
		require.Len(t, h.created, 1)
		assert.False(t, h.created[0].Scheduled)
		assert.Less(t, h.createdAt[0].Sub(h.start), time.Hour)
		assert.Equal(t, 1, h.count("JobSuccess"))
	})

	t.Run("is ignored while a job runs", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.sync = blockingSync(time.Hour)
		h.signalAfter(10*time.Minute, SignalSubmitManualSync)
		h.env.RegisterDelayedCallback(func() {
			state := h.queryState()
			assert.True(t, state.Running)
			assert.False(t, state.SkipScheduling)
			assert.Equal(t, JobInformation{JobID: 42, AttemptID: 0}, h.queryJob())
		}, 11*time.Minute)

		h.execute(NewControllerInput(h.connID))

		assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
		assert.Equal(t, 1, h.count("CreateNewJob"))
		assert.Equal(t, 1, h.count("JobSuccess"))
	})

	t.Run("carried skip scheduling starts at once", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.timeToWait = activities.NeverRun
		in := NewControllerInput(h.connID)
		in.SkipScheduling = true

		h.execute(in)

		assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
		require.Len(t, h.created, 1)
		assert.False(t, h.created[0].Scheduled)
	})
}

func TestConnectionManagerWorkflow_Cancel(t *testing.T) {
	t.Parallel()

	t.Run("during sync cancels the job", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.sync = blockingSync(time.Hour)
		h.signalAfter(10*time.Minute, SignalCancelJob)

		h.execute(NewControllerInput(h.connID))

		assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
		assert.Zero(t, h.count("JobSuccess"))
		require.Len(t, h.cancellations, 1)
		c := h.cancellations[0]
		assert.Equal(t, int64(42), c.JobID)
		require.NotEmpty(t, c.Summary.Failures)
		assert.Equal(t, failures.TypeManualCancellation, c.Summary.Failures[len(c.Summary.Failures)-1].Type)
		assert.Equal(t, []replication.PostSyncInput{
			{JobID: 42, ConnectionID: h.connID, JobStatus: store.JobStatusCancelled},
		}, h.postSync)

		failed := h.metricsFor(telemetry.EventWorkflowFailure)
		require.Len(t, failed, 1)
		assert.Equal(t, string(CauseCanceled), failed[0].FailureCause)
	})

	t.Run("while idle is a no-op", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.timeToWait = time.Hour
		h.signalAfter(time.Minute, SignalCancelJob)

		h.execute(NewControllerInput(h.connID))

		h.nextInput()
		assert.Zero(t, h.count("JobCancelled"))
		assert.Equal(t, 1, h.count("JobSuccess"))
		assert.GreaterOrEqual(t, h.createdAt[0].Sub(h.start), time.Hour)
	})
}

func TestConnectionManagerWorkflow_Delete(t *testing.T) {
	t.Parallel()

	t.Run("while waiting stops without a job", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.timeToWait = activities.NeverRun
		h.signalAfter(time.Minute, SignalDeleteConnection)

		h.execute(NewControllerInput(h.connID))

		require.NoError(t, h.env.GetWorkflowError())
		assert.Zero(t, h.count("CreateNewJob"))
		assert.Zero(t, h.count("JobCancelled"))
	})

	t.Run("during sync cancels the job and stops", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.sync = blockingSync(time.Hour)
		h.signalAfter(10*time.Minute, SignalDeleteConnection)

		h.execute(NewControllerInput(h.connID))

		require.NoError(t, h.env.GetWorkflowError())
		assert.Equal(t, 1, h.count("JobCancelled"))
		assert.Zero(t, h.count("JobSuccess"))
	})
}

func TestConnectionManagerWorkflow_ConnectionUpdated(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.timeToWait = activities.NeverRun
	h.signalAfter(time.Minute, SignalConnectionUpdated)

	h.execute(NewControllerInput(h.connID))

	assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
	assert.Zero(t, h.count("CreateNewJob"))
}

func TestConnectionManagerWorkflow_Reset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		signal       string
		at           time.Duration
		sync         func(workflow.Context) (*replication.SyncOutput, error)
		wantCancel   int
		wantSuccess  int
		wantSkipNext bool
	}{
		{
			name:        "while waiting starts at once",
			signal:      SignalResetConnection,
			at:          time.Minute,
			wantSuccess: 1,
		},
		{
			name:         "and skip next while waiting skips the next schedule too",
			signal:       SignalResetConnectionAndSkipNextScheduling,
			at:           time.Minute,
			wantSuccess:  1,
			wantSkipNext: true,
		},
		{
			name:         "during sync cancels and restarts unscheduled",
			signal:       SignalResetConnection,
			at:           10 * time.Minute,
			sync:         blockingSync(time.Hour),
			wantCancel:   1,
			wantSkipNext: true,
		},
		{
			name:         "and skip next during sync cancels and restarts unscheduled",
			signal:       SignalResetConnectionAndSkipNextScheduling,
			at:           10 * time.Minute,
			sync:         blockingSync(time.Hour),
			wantCancel:   1,
			wantSkipNext: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.timeToWait = activities.NeverRun
			if tt.sync != nil {
				h.timeToWait = 0
				h.sync = tt.sync
			}
			h.signalAfter(tt.at, tt.signal)

			h.execute(NewControllerInput(h.connID))

			next := h.nextInput()
			assert.Equal(t, tt.wantSkipNext, next.SkipScheduling)
			assert.Nil(t, next.JobID)
			assert.Equal(t, tt.wantCancel, h.count("JobCancelled"))
			assert.Equal(t, tt.wantSuccess, h.count("JobSuccess"))
			if tt.sync == nil {
				require.Len(t, h.created, 1)
				assert.False(t, h.created[0].Scheduled)
			}
		})
	}
}

func TestConnectionManagerWorkflow_TombstonedWorkspace(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.tombstoned = true

	h.execute(NewControllerInput(h.connID))

	require.NoError(t, h.env.GetWorkflowError())
	assert.Equal(t, 1, h.count("IsWorkspaceTombstoned"))
	assert.Zero(t, h.count("GetConnectionContext"))
	assert.Zero(t, h.count("CreateNewJob"))
}

func TestConnectionManagerWorkflow_LoadShedBackOff(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.loadShed = []time.Duration{10 * time.Minute, 5 * time.Minute}

	h.execute(NewControllerInput(h.connID))

	h.nextInput()
	assert.Equal(t, 3, h.count("GetLoadShedBackoff"))
	require.Len(t, h.createdAt, 1)
	assert.GreaterOrEqual(t, h.createdAt[0].Sub(h.start), 15*time.Minute)
}

func TestConnectionManagerWorkflow_LegacyVersions(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.tombstoned = true
	h.loadShed = []time.Duration{time.Hour}
	h.featureFlags = map[string]bool{flags.UseSyncV2: true}
	for _, tag := range []string{versionCheckWorkspaceTombstone, versionLoadShedBackOff, versionGetFeatureFlags} {
		h.env.OnGetVersion(tag, workflow.DefaultVersion, 1).Return(workflow.DefaultVersion)
	}

	h.execute(NewControllerInput(h.connID))

	h.nextInput()
	assert.Zero(t, h.count("IsWorkspaceTombstoned"))
	assert.Zero(t, h.count("GetLoadShedBackoff"))
	assert.Zero(t, h.count("GetFeatureFlags"))
	assert.Equal(t, 1, h.count("SyncWorkflow"))
	assert.Zero(t, h.count("SyncWorkflowV2"))
}

func TestConnectionManagerWorkflow_SyncV2(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.featureFlags = map[string]bool{flags.UseSyncV2: true}
	h.attempt = 1

	h.execute(NewControllerInput(h.connID))

	h.nextInput()
	assert.Zero(t, h.count("SyncWorkflow"))
	assert.Equal(t, []replication.SyncInputV2{{JobID: 42, AttemptNumber: 1, ConnectionID: h.connID}}, h.syncV2Inputs)
}

func TestConnectionManagerWorkflow_SyncFailure(t *testing.T) {
	t.Parallel()

	transient := failures.Reason{
		Origin:          failures.OriginSource,
		Type:            failures.TypeTransientError,
		InternalMessage: "connection reset by peer",
		Timestamp:       1,
	}

	t.Run("partial failure is retried with the retry manager", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.hydrated = retries.NewManager(retries.DefaultCompleteFailurePolicy(), retries.DefaultLimits())
		h.madeProgress = true
		h.sync = failedSync(10, transient)

		h.execute(NewControllerInput(h.connID))

		next := h.nextInput()
		require.NotNil(t, next.JobID)
		assert.Equal(t, int64(42), *next.JobID)
		assert.Equal(t, 2, next.AttemptNumber)
		assert.True(t, next.FromFailure)
		assert.Zero(t, h.count("JobFailure"))

		require.Len(t, h.attemptFailures, 1)
		summary := h.attemptFailures[0].Summary
		assert.Equal(t, []failures.Reason{transient}, summary.Failures)
		require.NotNil(t, summary.PartialSuccess)
		assert.True(t, *summary.PartialSuccess)
		assert.Equal(t, []retries.State{{SuccessivePartialFailures: 1, TotalPartialFailures: 1}}, h.persisted)

		progress := h.metricsFor(telemetry.EventReplicationMadeProgress)
		require.Len(t, progress, 1)
		assert.Equal(t, "true", progress[0].Attributes["will_retry"])
		assert.Equal(t, "0", progress[0].Attributes["attempt_number"])
	})

	t.Run("configuration error fails the job with retries left", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.hydrated = retries.NewManager(retries.DefaultCompleteFailurePolicy(), retries.DefaultLimits())
		h.sync = failedSync(0, failures.Reason{
			Origin:          failures.OriginSource,
			Type:            failures.TypeConfigError,
			InternalMessage: "invalid credentials",
		})

		h.execute(NewControllerInput(h.connID))

		assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
		require.Len(t, h.jobFailures, 1)
		assert.Equal(t, "invalid credentials", h.jobFailures[0].Reason)
		assert.Equal(t, 1, h.count("AutoDisableConnection"))
		assert.Equal(t, []retries.State{{SuccessiveCompleteFailures: 1, TotalCompleteFailures: 1}}, h.persisted)
		assert.Less(t, h.persisted[0].SuccessiveCompleteFailures, retries.DefaultLimits().MaxSuccessiveCompleteFailures)

		failed := h.metricsFor(telemetry.EventWorkflowFailure)
		require.Len(t, failed, 1)
		assert.Equal(t, string(CauseUnknown), failed[0].FailureCause)
	})

	t.Run("reported partial success without record counts", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.sync = func(workflow.Context) (*replication.SyncOutput, error) {
			return &replication.SyncOutput{
				Status:         replication.SyncStatusFailed,
				Failures:       []failures.Reason{transient},
				PartialSuccess: true,
			}, nil
		}

		h.execute(NewControllerInput(h.connID))

		assert.Equal(t, 2, h.nextInput().AttemptNumber)
		require.Len(t, h.attemptFailures, 1)
		summary := h.attemptFailures[0].Summary
		require.NotNil(t, summary.PartialSuccess)
		assert.True(t, *summary.PartialSuccess)
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.hydrateErr = temporal.NewNonRetryableApplicationError("no retry state", "NotFound", nil)
		h.sync = failedSync(0, transient)
		h.attempt = 2
		jobID := int64(42)
		in := ControllerInput{ConnectionID: h.connID, JobID: &jobID, AttemptNumber: 3, FromFailure: true}

		h.execute(in)

		assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
		assert.Zero(t, h.count("EnsureCleanJobState"))
		assert.Zero(t, h.count("CreateNewJob"))
		require.Len(t, h.jobFailures, 1)
		assert.Equal(t, "Job failed after too many retries for connection "+h.connID.String(), h.jobFailures[0].Reason)
		assert.Equal(t, int64(42), h.jobFailures[0].JobID)
		assert.Equal(t, 1, h.count("AutoDisableConnection"))
		assert.Equal(t, []replication.PostSyncInput{
			{JobID: 42, ConnectionID: h.connID, JobStatus: store.JobStatusFailed},
		}, h.postSync)

		failed := h.metricsFor(telemetry.EventWorkflowFailure)
		require.Len(t, failed, 1)
		assert.Equal(t, string(CauseUnknown), failed[0].FailureCause)
		assert.Equal(t, "false", failed[0].Attributes["made_progress"])
		assert.NotEmpty(t, h.metricsFor(telemetry.EventActivityFailure), "hydration failure is counted")
	})
}

func TestConnectionManagerWorkflow_CheckFailure(t *testing.T) {
	t.Parallel()

	t.Run("destination failure is never retried", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.lastFailed = true
		h.checks[connectors.ActorTypeDestination] = replication.CheckConnectionOutput{Message: "bad password"}

		h.execute(NewControllerInput(h.connID))

		assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
		assert.Zero(t, h.count("SyncWorkflow"))
		require.Len(t, h.checkInputs, 2)
		assert.Equal(t, connectors.ActorTypeSource, h.checkInputs[0].ActorType)
		assert.Equal(t, connectors.ActorTypeDestination, h.checkInputs[1].ActorType)

		require.Len(t, h.attemptFailures, 1)
		reasons := h.attemptFailures[0].Summary.Failures
		require.Len(t, reasons, 1)
		assert.Equal(t, failures.OriginDestination, reasons[0].Origin)
		assert.Equal(t, failures.TypeConfigError, reasons[0].Type)

		require.Len(t, h.jobFailures, 1)
		assert.Equal(t, "bad password", h.jobFailures[0].Reason)
		failed := h.metricsFor(telemetry.EventWorkflowFailure)
		require.Len(t, failed, 1)
		assert.Equal(t, string(CauseConnection), failed[0].FailureCause)
	})

	t.Run("source failure skips the destination check", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.lastFailed = true
		h.checks[connectors.ActorTypeSource] = replication.CheckConnectionOutput{}

		h.execute(NewControllerInput(h.connID))

		h.nextInput()
		require.Len(t, h.checkInputs, 1)
		require.Len(t, h.jobFailures, 1)
		assert.Equal(t, unknownFailureReason, h.jobFailures[0].Reason)
		assert.Equal(t, failures.OriginSource, h.attemptFailures[0].Summary.Failures[0].Origin)
	})

	t.Run("reset jobs only check the destination", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.lastFailed = true
		h.isReset = true

		h.execute(NewControllerInput(h.connID))

		assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
		require.Len(t, h.checkInputs, 1)
		assert.Equal(t, connectors.ActorTypeDestination, h.checkInputs[0].ActorType)
		require.Len(t, h.syncInputs, 1)
		assert.True(t, h.syncInputs[0].IsReset)
	})
}

func TestConnectionManagerWorkflow_ChildErrors(t *testing.T) {
	t.Parallel()

	t.Run("activity error is a replication failure", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.sync = func(ctx workflow.Context) (*replication.SyncOutput, error) {
			ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{StartToCloseTimeout: time.Minute})
			return nil, workflow.ExecuteActivity(ctx, failingLaunchActivity).Get(ctx, nil)
		}

		h.execute(NewControllerInput(h.connID))

		next := h.nextInput()
		assert.Equal(t, 2, next.AttemptNumber)
		require.Len(t, h.attemptFailures, 1)
		reasons := h.attemptFailures[0].Summary.Failures
		require.Len(t, reasons, 1)
		assert.Equal(t, failures.OriginReplication, reasons[0].Origin)
		assert.Equal(t, failures.TypeTransientError, reasons[0].Type)
	})

	t.Run("workflow error has an unknown origin", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.sync = func(workflow.Context) (*replication.SyncOutput, error) {
			return nil, temporal.NewNonRetryableApplicationError("panic in sync", "Panic", nil)
		}

		h.execute(NewControllerInput(h.connID))

		next := h.nextInput()
		assert.True(t, next.FromFailure)
		require.Len(t, h.attemptFailures, 1)
		assert.Equal(t, failures.OriginUnknown, h.attemptFailures[0].Summary.Failures[0].Origin)
	})

	t.Run("terminal cause separates failed syncs from child errors", func(t *testing.T) {
		t.Parallel()
		terminalCause := func(sync func(workflow.Context) (*replication.SyncOutput, error)) string {
			h := newHarness(t)
			h.maxAttempt = 1
			h.sync = sync
			h.execute(NewControllerInput(h.connID))
			assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
			failed := h.metricsFor(telemetry.EventWorkflowFailure)
			require.Len(t, failed, 1)
			return failed[0].FailureCause
		}

		structured := terminalCause(failedSync(0, failures.Reason{
			Origin: failures.OriginDestination, Type: failures.TypeSystemError,
		}))
		infra := terminalCause(func(workflow.Context) (*replication.SyncOutput, error) {
			return nil, temporal.NewNonRetryableApplicationError("panic in sync", "Panic", nil)
		})

		assert.Equal(t, string(CauseUnknown), structured)
		assert.Equal(t, string(CauseWorkflow), infra)
		assert.NotEqual(t, structured, infra)
	})
}

func TestConnectionManagerWorkflow_MandatoryActivityFailure(t *testing.T) {
	t.Parallel()

	t.Run("before the job exists", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.createJobErr = temporal.NewNonRetryableApplicationError("database down", "Store", nil)
		h.restartDelay = 5 * time.Minute
		in := NewControllerInput(h.connID)
		in.SkipScheduling = true

		h.execute(in)

		assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
		assert.Zero(t, h.count("AttemptFailure"))
		assert.GreaterOrEqual(t, h.env.Now().Sub(h.start), 5*time.Minute)
	})

	t.Run("after the job exists reports a platform failure", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.reportStartErr = temporal.NewNonRetryableApplicationError("database down", "Store", nil)

		h.execute(NewControllerInput(h.connID))

		assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
		require.Len(t, h.attemptFailures, 1)
		reasons := h.attemptFailures[0].Summary.Failures
		require.Len(t, reasons, 1)
		assert.Equal(t, failures.OriginPlatform, reasons[0].Origin)
		assert.Zero(t, h.count("SyncWorkflow"))
	})
}

func TestConnectionManagerWorkflow_ResumeFromFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.hydrated = retries.NewManager(retries.DefaultCompleteFailurePolicy(), retries.DefaultLimits(),
		retries.WithState(retries.State{SuccessiveCompleteFailures: 1, TotalCompleteFailures: 1}))
	h.attempt = 1
	jobID := int64(7)
	in := ControllerInput{ConnectionID: h.connID, JobID: &jobID, AttemptNumber: 2, FromFailure: true}
	backoff := h.hydrated.Backoff()
	require.Positive(t, backoff)

	h.env.RegisterDelayedCallback(func() {
		assert.True(t, h.queryState().Running)
		assert.Equal(t, JobInformation{JobID: 7, AttemptID: 1}, h.queryJob())
		assert.Zero(t, h.count("CreateNewAttemptNumber"))
	}, backoff/2)

	h.execute(in)

	assert.Equal(t, NewControllerInput(h.connID), h.nextInput())
	assert.Zero(t, h.count("CreateNewJob"))
	assert.Zero(t, h.count("EnsureCleanJobState"))
	assert.Equal(t, []activities.AttemptCreationInput{{JobID: 7}}, h.attempts)
	assert.Equal(t, 1, h.count("JobSuccess"))
}

// Three runs of one job: two failed attempts then a successful one.
func TestConnectionManagerWorkflow_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	connID := uuid.New()
	in := NewControllerInput(connID)

	var totalFailures, totalSuccess int
	for run := 0; run < 3; run++ {
		h := newHarness(t)
		h.connID = connID
		h.attempt = run
		if run < 2 {
			h.sync = failedSync(0, failures.Reason{Origin: failures.OriginDestination, Type: failures.TypeSystemError})
		}

		h.execute(in)

		in = h.nextInput()
		totalFailures += h.count("AttemptFailure")
		totalSuccess += h.count("JobSuccess")
		if run < 2 {
			assert.True(t, in.FromFailure)
			assert.Equal(t, run+2, in.AttemptNumber)
			require.NotNil(t, in.JobID)
		}
		assert.Zero(t, h.count("JobFailure"))
	}

	assert.Equal(t, 2, totalFailures)
	assert.Equal(t, 1, totalSuccess)
	assert.Equal(t, NewControllerInput(connID), in)
}

func TestConnectionManagerWorkflow_CheckChildError(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.lastFailed = true
	h.checkErr = errors.New("check crashed")

	h.execute(NewControllerInput(h.connID))

	next := h.nextInput()
	assert.Equal(t, 2, next.AttemptNumber, "check child errors are retried like sync errors")
	assert.Zero(t, h.count("SyncWorkflow"))
	require.Len(t, h.attemptFailures, 1)
	assert.Equal(t, failures.OriginUnknown, h.attemptFailures[0].Summary.Failures[0].Origin)
}
