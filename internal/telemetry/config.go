// Package telemetry wires OpenTelemetry into the sync controller worker:
// tracer and meter providers, the Temporal client instrumentation and the
// controller's own counters.
package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stacklok/toolhive-sync-controller/internal/versions"
)

const (
	// DefaultServiceName identifies the worker when no name is configured
	DefaultServiceName = "thv-sync-controller"

	// DefaultEndpoint is the OTLP/HTTP collector address
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the parent-based trace ratio (5%)
	DefaultSampling = 0.05

	// DefaultMetricsInterval is the OTLP metric push period
	DefaultMetricsInterval = 60 * time.Second
)

// Config is the telemetry section of the worker configuration.
type Config struct {
	Enabled bool `yaml:"enabled"`

	ServiceName string `yaml:"serviceName,omitempty"`

	// ServiceVersion defaults to the build version
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the collector as host:port, without a scheme
	Endpoint string `yaml:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`

	// Headers are sent with every OTLP export
	Headers map[string]string `yaml:"headers,omitempty"`

	// Attributes are added to the resource of every span and metric
	Attributes map[string]string `yaml:"attributes,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig controls metric export. Prometheus metrics are served by the
// ops server; OTLP push is on unless OTLP is set to false.
type MetricsConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Prometheus bool          `yaml:"prometheus,omitempty"`
	OTLP       *bool         `yaml:"otlp,omitempty"`
	Interval   time.Duration `yaml:"interval,omitempty"`
}

// GetServiceName returns the service name, using default if not specified
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the configured version or the build version
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return versions.Version
	}
	return c.ServiceVersion
}

// GetEndpoint returns the endpoint, using default if not specified
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

func (c *Config) tracingEnabled() bool {
	return c != nil && c.Enabled && c.Tracing != nil && c.Tracing.Enabled
}

func (c *Config) metricsEnabled() bool {
	return c != nil && c.Enabled && c.Metrics != nil && c.Metrics.Enabled
}

// GetSampling returns the sampling ratio. Zero means DefaultSampling.
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0.0 {
		return DefaultSampling
	}
	return c.Sampling
}

// PushEnabled reports whether metrics are pushed over OTLP
func (c *MetricsConfig) PushEnabled() bool {
	return c.OTLP == nil || *c.OTLP
}

// GetInterval returns the push period
func (c *MetricsConfig) GetInterval() time.Duration {
	if c.Interval == 0 {
		return DefaultMetricsInterval
	}
	return c.Interval
}

// Validate checks the configuration. Nothing is checked while disabled.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if strings.Contains(c.Endpoint, "://") {
		errs = append(errs, fmt.Errorf("endpoint must be host:port without a scheme, got %q", c.Endpoint))
	}
	for k := range c.Headers {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, errors.New("header names must not be empty"))
			break
		}
	}
	for k := range c.Attributes {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, errors.New("attribute keys must not be empty"))
			break
		}
	}
	if c.Tracing != nil {
		if err := c.Tracing.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}
	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates the tracing configuration
func (c *TracingConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.Sampling < 0 || c.Sampling > 1.0 {
		return fmt.Errorf("sampling must be between 0.0 and 1.0, got %f", c.Sampling)
	}
	return nil
}

// Validate validates the metrics configuration
func (c *MetricsConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if !c.PushEnabled() && !c.Prometheus {
		errs = append(errs, errors.New("at least one of otlp or prometheus must be enabled"))
	}
	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must not be negative, got %s", c.Interval))
	}
	return errors.Join(errs...)
}
