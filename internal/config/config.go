// Package config provides configuration loading and management for the sync controller.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhive-sync-controller/internal/retries"
	"github.com/stacklok/toolhive-sync-controller/internal/telemetry"
)

// EnvPrefix is the prefix for environment variables read by the controller
const EnvPrefix = "THV_SYNC"

const (
	// StorageTypeDatabase persists jobs and connections in PostgreSQL
	StorageTypeDatabase = "database"

	// StorageTypeMemory keeps jobs and connections in process memory
	StorageTypeMemory = "memory"
)

const (
	defaultTemporalHostPort     = "localhost:7233"
	defaultTemporalNamespace    = "default"
	defaultTaskQueue            = "connection-manager"
	defaultMaxAttempts          = 3
	defaultWorkflowRestartDelay = 600 * time.Second
	defaultConnectorTimeout     = 30 * time.Second
	defaultPollInterval         = 5 * time.Second
	defaultServerAddress        = ":8080"
	defaultMaxDaysOfFailures    = 14
	defaultMaxFailedJobsInARow  = 20
	defaultLoadShedUpperBound   = time.Hour
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Temporal    TemporalConfig    `yaml:"temporal"`
	Database    *DatabaseConfig   `yaml:"database,omitempty"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Retries     RetriesConfig     `yaml:"retries"`
	AutoDisable AutoDisableConfig `yaml:"autoDisable"`
	Flags       FlagsConfig       `yaml:"flags"`
	Connectors  ConnectorsConfig  `yaml:"connectors"`
	Server      ServerConfig      `yaml:"server"`
	Telemetry   *telemetry.Config `yaml:"telemetry,omitempty"`
}

// TemporalConfig defines how the worker reaches the workflow engine
type TemporalConfig struct {
	// HostPort is the frontend address of the Temporal cluster
	HostPort string `yaml:"hostPort,omitempty"`

	// Namespace is the Temporal namespace the controllers run in
	Namespace string `yaml:"namespace,omitempty"`

	// TaskQueue is the queue the worker polls for controller tasks
	TaskQueue string `yaml:"taskQueue,omitempty"`
}

// SchedulerConfig holds controller-wide scheduling settings
type SchedulerConfig struct {
	// MaxAttempts is the attempt budget used when no retry state exists
	MaxAttempts int `yaml:"maxAttempts,omitempty"`

	// WorkflowRestartDelay is slept before restarting after an activity failure
	WorkflowRestartDelay time.Duration `yaml:"workflowRestartDelay,omitempty"`

	// LoadShedUpperBound caps the load-shedding backoff returned by the flag
	LoadShedUpperBound time.Duration `yaml:"loadShedUpperBound,omitempty"`
}

// RetriesConfig configures the retry engine
type RetriesConfig struct {
	Limits                 *retries.Limits        `yaml:"limits,omitempty"`
	CompleteFailureBackoff *retries.BackoffPolicy `yaml:"completeFailureBackoff,omitempty"`
	PartialFailureBackoff  *retries.BackoffPolicy `yaml:"partialFailureBackoff,omitempty"`
}

// AutoDisableConfig configures when repeatedly failing connections are disabled
type AutoDisableConfig struct {
	// MaxDaysOfOnlyFailedJobs disables a connection whose jobs all failed for this many days
	MaxDaysOfOnlyFailedJobs int `yaml:"maxDaysOfOnlyFailedJobs,omitempty"`

	// MaxFailedJobsInARow disables a connection after this many consecutive failed jobs
	MaxFailedJobsInARow int `yaml:"maxFailedJobsInARow,omitempty"`
}

// FlagsConfig points at the feature flag file
type FlagsConfig struct {
	// Path is a YAML flag file; when empty every flag takes its default
	Path string `yaml:"path,omitempty"`
}

// ConnectorsConfig configures the connector command service client
type ConnectorsConfig struct {
	// Endpoint is the base URL of the command service
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds a single HTTP request
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// PollInterval is the delay between command status polls
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`
}

// ServerConfig configures the operational HTTP server (health and metrics)
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the minimum number of idle connections kept in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from THV_SYNC_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv("THV_SYNC_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or THV_SYNC_DATABASE_PASSWORD environment variable",
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if c.Scheduler.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("scheduler.maxAttempts must not be negative"))
	}
	if c.Scheduler.WorkflowRestartDelay < 0 {
		errs = append(errs, fmt.Errorf("scheduler.workflowRestartDelay must not be negative"))
	}
	if c.Retries.CompleteFailureBackoff != nil {
		if err := c.Retries.CompleteFailureBackoff.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("retries.completeFailureBackoff: %w", err))
		}
	}
	if c.Retries.PartialFailureBackoff != nil {
		if err := c.Retries.PartialFailureBackoff.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("retries.partialFailureBackoff: %w", err))
		}
	}
	if c.AutoDisable.MaxDaysOfOnlyFailedJobs < 0 || c.AutoDisable.MaxFailedJobsInARow < 0 {
		errs = append(errs, fmt.Errorf("autoDisable limits must not be negative"))
	}
	if c.Connectors.Endpoint != "" {
		if _, err := url.ParseRequestURI(c.Connectors.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("connectors.endpoint must be a valid URL: %w", err))
		}
	}
	if c.Database != nil {
		if err := c.Database.validate(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func (d *DatabaseConfig) validate() error {
	switch {
	case d.Host == "":
		return fmt.Errorf("host is required")
	case d.Port == 0:
		return fmt.Errorf("port is required")
	case d.User == "":
		return fmt.Errorf("user is required")
	case d.Database == "":
		return fmt.Errorf("database name is required")
	}
	if d.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
			return fmt.Errorf("connMaxLifetime must be a valid duration: %w", err)
		}
	}
	return nil
}

// GetStorageType returns the storage backend implied by the configuration
func (c *Config) GetStorageType() string {
	if c.Database != nil {
		return StorageTypeDatabase
	}
	return StorageTypeMemory
}

// GetHostPort returns the Temporal frontend address
func (t TemporalConfig) GetHostPort() string {
	if t.HostPort == "" {
		return defaultTemporalHostPort
	}
	return t.HostPort
}

// GetNamespace returns the Temporal namespace
func (t TemporalConfig) GetNamespace() string {
	if t.Namespace == "" {
		return defaultTemporalNamespace
	}
	return t.Namespace
}

// GetTaskQueue returns the worker task queue
func (t TemporalConfig) GetTaskQueue() string {
	if t.TaskQueue == "" {
		return defaultTaskQueue
	}
	return t.TaskQueue
}

// GetMaxAttempts returns the attempt budget
func (s SchedulerConfig) GetMaxAttempts() int {
	if s.MaxAttempts == 0 {
		return defaultMaxAttempts
	}
	return s.MaxAttempts
}

// GetWorkflowRestartDelay returns the delay slept before an activity-failure restart
func (s SchedulerConfig) GetWorkflowRestartDelay() time.Duration {
	if s.WorkflowRestartDelay == 0 {
		return defaultWorkflowRestartDelay
	}
	return s.WorkflowRestartDelay
}

// GetLoadShedUpperBound returns the maximum load-shedding backoff
func (s SchedulerConfig) GetLoadShedUpperBound() time.Duration {
	if s.LoadShedUpperBound == 0 {
		return defaultLoadShedUpperBound
	}
	return s.LoadShedUpperBound
}

// GetLimits returns the configured retry limits or the defaults
func (r RetriesConfig) GetLimits() retries.Limits {
	if r.Limits == nil {
		return retries.DefaultLimits()
	}
	return *r.Limits
}

// GetCompleteFailureBackoff returns the configured backoff or the default
func (r RetriesConfig) GetCompleteFailureBackoff() retries.BackoffPolicy {
	if r.CompleteFailureBackoff == nil {
		return retries.DefaultCompleteFailurePolicy()
	}
	return *r.CompleteFailureBackoff
}

// GetMaxDaysOfOnlyFailedJobs returns the day threshold for auto-disable
func (a AutoDisableConfig) GetMaxDaysOfOnlyFailedJobs() int {
	if a.MaxDaysOfOnlyFailedJobs == 0 {
		return defaultMaxDaysOfFailures
	}
	return a.MaxDaysOfOnlyFailedJobs
}

// GetMaxFailedJobsInARow returns the consecutive failure threshold for auto-disable
func (a AutoDisableConfig) GetMaxFailedJobsInARow() int {
	if a.MaxFailedJobsInARow == 0 {
		return defaultMaxFailedJobsInARow
	}
	return a.MaxFailedJobsInARow
}

// GetTimeout returns the per-request connector timeout
func (c ConnectorsConfig) GetTimeout() time.Duration {
	if c.Timeout == 0 {
		return defaultConnectorTimeout
	}
	return c.Timeout
}

// GetPollInterval returns the connector status poll interval
func (c ConnectorsConfig) GetPollInterval() time.Duration {
	if c.PollInterval == 0 {
		return defaultPollInterval
	}
	return c.PollInterval
}

// GetAddress returns the ops server address
func (s ServerConfig) GetAddress() string {
	if s.Address == "" {
		return defaultServerAddress
	}
	return s.Address
}
