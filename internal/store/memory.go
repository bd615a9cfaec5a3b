package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/toolhive-sync-controller/internal/failures"
	"github.com/stacklok/toolhive-sync-controller/internal/retries"
)

// MemoryOption configures a memory store.
type MemoryOption func(*memoryStore)

// WithClock replaces time.Now for created and updated timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *memoryStore) {
		m.now = now
	}
}

type memoryStore struct {
	mu sync.RWMutex

	now         func() time.Time
	nextJobID   int64
	workspaces  map[uuid.UUID]Workspace
	connections map[uuid.UUID]Connection
	jobs        map[int64]*Job
	retryStates map[int64]retries.State
	resets      map[uuid.UUID][]StreamDescriptor
}

var _ Store = (*memoryStore)(nil)

// NewMemoryStore returns a Store kept in process memory. Data does not
// survive a restart, which makes it suitable for development and tests.
func NewMemoryStore(opts ...MemoryOption) Store {
	m := &memoryStore{
		now:         time.Now,
		workspaces:  make(map[uuid.UUID]Workspace),
		connections: make(map[uuid.UUID]Connection),
		jobs:        make(map[int64]*Job),
		retryStates: make(map[int64]retries.State),
		resets:      make(map[uuid.UUID][]StreamDescriptor),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *memoryStore) UpsertWorkspace(_ context.Context, w Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspaces[w.ID] = w
	return nil
}

func (m *memoryStore) GetWorkspaceForConnection(_ context.Context, connectionID uuid.UUID) (*Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.connections[connectionID]
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", connectionID, ErrNotFound)
	}
	w, ok := m.workspaces[c.WorkspaceID]
	if !ok {
		return nil, fmt.Errorf("workspace %s: %w", c.WorkspaceID, ErrNotFound)
	}
	return &w, nil
}

func (m *memoryStore) UpsertConnection(_ context.Context, c Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workspaces[c.WorkspaceID]; !ok {
		return fmt.Errorf("workspace %s: %w", c.WorkspaceID, ErrNotFound)
	}
	if c.Status == "" {
		c.Status = ConnectionStatusActive
	}
	if c.Schedule.Type == "" {
		c.Schedule.Type = ScheduleTypeManual
	}
	c.UpdatedAt = m.now()
	m.connections[c.ID] = c
	return nil
}

func (m *memoryStore) GetConnection(_ context.Context, connectionID uuid.UUID) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.connections[connectionID]
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", connectionID, ErrNotFound)
	}
	return &c, nil
}

func (m *memoryStore) SetConnectionStatus(_ context.Context, connectionID uuid.UUID, status ConnectionStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.connections[connectionID]
	if !ok {
		return fmt.Errorf("connection %s: %w", connectionID, ErrNotFound)
	}
	c.Status = status
	c.StatusReason = reason
	c.UpdatedAt = m.now()
	m.connections[connectionID] = c
	return nil
}

func (m *memoryStore) MarkAutoDisableWarning(_ context.Context, connectionID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.connections[connectionID]
	if !ok {
		return fmt.Errorf("connection %s: %w", connectionID, ErrNotFound)
	}
	c.AutoDisableWarnedAt = &at
	m.connections[connectionID] = c
	return nil
}

func (m *memoryStore) CreateJob(_ context.Context, req CreateJobRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connections[req.ConnectionID]; !ok {
		return 0, fmt.Errorf("connection %s: %w", req.ConnectionID, ErrNotFound)
	}
	for _, j := range m.jobs {
		if j.ConnectionID == req.ConnectionID && !j.Status.IsTerminal() {
			return j.ID, nil
		}
	}

	m.nextJobID++
	now := m.now()
	m.jobs[m.nextJobID] = &Job{
		ID:           m.nextJobID,
		ConnectionID: req.ConnectionID,
		ConfigType:   req.ConfigType,
		Status:       JobStatusPending,
		IsScheduled:  req.Scheduled,
		ResetStreams: slices.Clone(req.ResetStreams),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return m.nextJobID, nil
}

// copyJob returns a deep copy so callers cannot mutate stored state.
func copyJob(j *Job) *Job {
	out := *j
	out.ResetStreams = slices.Clone(j.ResetStreams)
	out.Attempts = slices.Clone(j.Attempts)
	return &out
}

func (m *memoryStore) GetJob(_ context.Context, jobID int64) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %d: %w", jobID, ErrNotFound)
	}
	return copyJob(j), nil
}

// jobsFor returns the jobs of a connection ordered by creation, newest first.
func (m *memoryStore) jobsFor(connectionID uuid.UUID) []*Job {
	var out []*Job
	for _, j := range m.jobs {
		if j.ConnectionID == connectionID {
			out = append(out, j)
		}
	}
	slices.SortFunc(out, func(a, b *Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return out
}

func (m *memoryStore) LastJob(_ context.Context, connectionID uuid.UUID) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := m.jobsFor(connectionID)
	if len(jobs) == 0 {
		return nil, fmt.Errorf("jobs for connection %s: %w", connectionID, ErrNotFound)
	}
	return copyJob(jobs[0]), nil
}

func (m *memoryStore) FirstJob(_ context.Context, connectionID uuid.UUID) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := m.jobsFor(connectionID)
	if len(jobs) == 0 {
		return nil, fmt.Errorf("jobs for connection %s: %w", connectionID, ErrNotFound)
	}
	return copyJob(jobs[len(jobs)-1]), nil
}

func (m *memoryStore) ListJobsSince(_ context.Context, connectionID uuid.UUID, since time.Time) ([]Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Job
	for _, j := range m.jobsFor(connectionID) {
		if !j.CreatedAt.Before(since) {
			out = append(out, *copyJob(j))
		}
	}
	return out, nil
}

func (m *memoryStore) ListNonTerminalJobs(_ context.Context, connectionID uuid.UUID) ([]Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Job
	for _, j := range m.jobsFor(connectionID) {
		if !j.Status.IsTerminal() {
			out = append(out, *copyJob(j))
		}
	}
	return out, nil
}

func (m *memoryStore) job(jobID int64) (*Job, error) {
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %d: %w", jobID, ErrNotFound)
	}
	return j, nil
}

func (j *Job) attempt(number int) (*Attempt, error) {
	for i := range j.Attempts {
		if j.Attempts[i].Number == number {
			return &j.Attempts[i], nil
		}
	}
	return nil, fmt.Errorf("attempt %d of job %d: %w", number, j.ID, ErrNotFound)
}

func (m *memoryStore) SetJobStarted(_ context.Context, jobID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.job(jobID)
	if err != nil {
		return err
	}
	if j.StartedAt == nil {
		j.StartedAt = &at
	}
	j.UpdatedAt = m.now()
	return nil
}

func (m *memoryStore) SucceedJob(_ context.Context, jobID int64, attemptNumber int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.job(jobID)
	if err != nil {
		return err
	}
	a, err := j.attempt(attemptNumber)
	if err != nil {
		return err
	}
	now := m.now()
	a.Status = AttemptStatusSucceeded
	a.UpdatedAt = now
	a.EndedAt = &now
	j.Status = JobStatusSucceeded
	j.UpdatedAt = now
	return nil
}

func (m *memoryStore) FailJob(_ context.Context, jobID int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.job(jobID)
	if err != nil {
		return err
	}
	j.Status = JobStatusFailed
	j.FailureReason = reason
	j.UpdatedAt = m.now()
	return nil
}

func (m *memoryStore) CancelJob(_ context.Context, jobID int64, attemptNumber int, summary *failures.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.job(jobID)
	if err != nil {
		return err
	}
	now := m.now()
	// a job cancelled before its first attempt has nothing to fail
	if a, err := j.attempt(attemptNumber); err == nil {
		a.Status = AttemptStatusFailed
		a.FailureSummary = summary
		a.UpdatedAt = now
		a.EndedAt = &now
	}
	j.Status = JobStatusCancelled
	j.UpdatedAt = now
	return nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, jobID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.job(jobID)
	if err != nil {
		return 0, err
	}
	if j.Status.IsTerminal() {
		return 0, fmt.Errorf("job %d is %s, cannot create an attempt", jobID, j.Status)
	}
	now := m.now()
	number := len(j.Attempts)
	j.Attempts = append(j.Attempts, Attempt{
		JobID:     jobID,
		Number:    number,
		Status:    AttemptStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	})
	j.Status = JobStatusRunning
	j.UpdatedAt = now
	return number, nil
}

func (m *memoryStore) FailAttempt(_ context.Context, jobID int64, attemptNumber int, summary *failures.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.job(jobID)
	if err != nil {
		return err
	}
	a, err := j.attempt(attemptNumber)
	if err != nil {
		return err
	}
	now := m.now()
	a.Status = AttemptStatusFailed
	a.FailureSummary = summary
	a.UpdatedAt = now
	a.EndedAt = &now
	if !j.Status.IsTerminal() {
		j.Status = JobStatusIncomplete
	}
	j.UpdatedAt = now
	return nil
}

func (m *memoryStore) SetAttemptStats(_ context.Context, jobID int64, attemptNumber int, records, bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.job(jobID)
	if err != nil {
		return err
	}
	a, err := j.attempt(attemptNumber)
	if err != nil {
		return err
	}
	a.RecordsCommitted = records
	a.BytesCommitted = bytes
	a.UpdatedAt = m.now()
	return nil
}

func (m *memoryStore) GetRetryState(_ context.Context, jobID int64) (*retries.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.retryStates[jobID]
	if !ok {
		return nil, fmt.Errorf("retry state for job %d: %w", jobID, ErrNotFound)
	}
	return &s, nil
}

func (m *memoryStore) PutRetryState(_ context.Context, jobID int64, _ uuid.UUID, state retries.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.job(jobID); err != nil {
		return err
	}
	m.retryStates[jobID] = state
	return nil
}

func (m *memoryStore) AddStreamResets(_ context.Context, connectionID uuid.UUID, streams []StreamDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connections[connectionID]; !ok {
		return fmt.Errorf("connection %s: %w", connectionID, ErrNotFound)
	}
	pending := m.resets[connectionID]
	for _, s := range streams {
		if !slices.Contains(pending, s) {
			pending = append(pending, s)
		}
	}
	m.resets[connectionID] = pending
	return nil
}

func (m *memoryStore) ListStreamResets(_ context.Context, connectionID uuid.UUID) ([]StreamDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.resets[connectionID]), nil
}

func (m *memoryStore) DeleteStreamResets(_ context.Context, connectionID uuid.UUID, streams []StreamDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := slices.DeleteFunc(m.resets[connectionID], func(s StreamDescriptor) bool {
		return slices.Contains(streams, s)
	})
	if len(remaining) == 0 {
		delete(m.resets, connectionID)
		return nil
	}
	m.resets[connectionID] = remaining
	return nil
}
