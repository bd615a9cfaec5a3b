// Package activities holds every call the connection manager workflow makes
// to the outside world. Each exported method of Activities is registered as
// a Temporal activity; workflow code only ever reaches the store, the flag
// client and the clock through them.
package activities

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/sdk/temporal"

	"github.com/stacklok/toolhive-sync-controller/internal/config"
	"github.com/stacklok/toolhive-sync-controller/internal/flags"
	"github.com/stacklok/toolhive-sync-controller/internal/retries"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
	"github.com/stacklok/toolhive-sync-controller/internal/telemetry"
)

// Settings are the static knobs the activities read.
type Settings struct {
	MaxAttempts             int
	WorkflowRestartDelay    time.Duration
	LoadShedUpperBound      time.Duration
	RetryLimits             retries.Limits
	CompleteFailureBackoff  retries.BackoffPolicy
	PartialFailureBackoff   *retries.BackoffPolicy
	MaxDaysOfOnlyFailedJobs int
	MaxFailedJobsInARow     int
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return SettingsFromConfig(&config.Config{})
}

// SettingsFromConfig extracts the activity settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxAttempts:             cfg.Scheduler.GetMaxAttempts(),
		WorkflowRestartDelay:    cfg.Scheduler.GetWorkflowRestartDelay(),
		LoadShedUpperBound:      cfg.Scheduler.GetLoadShedUpperBound(),
		RetryLimits:             cfg.Retries.GetLimits(),
		CompleteFailureBackoff:  cfg.Retries.GetCompleteFailureBackoff(),
		PartialFailureBackoff:   cfg.Retries.PartialFailureBackoff,
		MaxDaysOfOnlyFailedJobs: cfg.AutoDisable.GetMaxDaysOfOnlyFailedJobs(),
		MaxFailedJobsInARow:     cfg.AutoDisable.GetMaxFailedJobsInARow(),
	}
}

// Activities implements the activity adapter layer.
type Activities struct {
	store    store.Store
	flags    flags.Client
	metrics  *telemetry.ControllerMetrics
	tracer   trace.Tracer
	settings Settings
	now      func() time.Time
}

// Option configures Activities.
type Option func(*Activities)

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(a *Activities) {
		a.settings = s
	}
}

// WithMetrics sets the counters recorded by RecordMetric.
func WithMetrics(m *telemetry.ControllerMetrics) Option {
	return func(a *Activities) {
		a.metrics = m
	}
}

// WithTracer sets the tracer used for activity spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Activities) {
		a.tracer = t
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Activities) {
		a.now = now
	}
}

// New creates the activities backed by s and fc.
func New(s store.Store, fc flags.Client, opts ...Option) *Activities {
	a := &Activities{
		store:    s,
		flags:    fc,
		settings: DefaultSettings(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ConnectionContext identifies everything a connection touches. It is
// hydrated once per controller run.
type ConnectionContext struct {
	ConnectionID            uuid.UUID `json:"connectionId"`
	WorkspaceID             uuid.UUID `json:"workspaceId"`
	OrganizationID          uuid.UUID `json:"organizationId"`
	SourceID                uuid.UUID `json:"sourceId"`
	DestinationID           uuid.UUID `json:"destinationId"`
	SourceDefinitionID      uuid.UUID `json:"sourceDefinitionId"`
	DestinationDefinitionID uuid.UUID `json:"destinationDefinitionId"`
}

// FlagContext returns the flag evaluation context of the connection.
func (c ConnectionContext) FlagContext() flags.Context {
	return flags.Context{
		ConnectionID:   c.ConnectionID.String(),
		WorkspaceID:    c.WorkspaceID.String(),
		OrganizationID: c.OrganizationID.String(),
	}
}

// ConnectionInput addresses a connection.
type ConnectionInput struct {
	ConnectionID uuid.UUID `json:"connectionId"`
}

// JobInput addresses one attempt of a job of a connection.
type JobInput struct {
	JobID         int64     `json:"jobId"`
	AttemptNumber int       `json:"attemptNumber"`
	ConnectionID  uuid.UUID `json:"connectionId"`
}

// errorTypeNotFound tags non-retryable errors for missing rows.
const errorTypeNotFound = "NotFound"

// wrapStoreErr makes missing rows non-retryable; everything else stays
// retryable under the activity retry policy.
func wrapStoreErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, store.ErrNotFound) {
		return temporal.NewNonRetryableApplicationError(msg, errorTypeNotFound, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
