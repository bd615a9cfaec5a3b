// Package connectors is a client for the connector command service, which runs
// check and replication commands on behalf of the controller's children.
package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/toolhive-sync-controller/internal/versions"
)

const (
	// maxResponseSize caps the body read from the service (10 MB)
	maxResponseSize = 10 * 1024 * 1024

	defaultTimeout = 30 * time.Second
	userAgent      = "thv-sync-controller/1.0"
)

// Client talks to the connector command service.
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/stacklok/toolhive-sync-controller/internal/connectors Client
type Client interface {
	// StartCheck submits a check command and returns its id.
	StartCheck(ctx context.Context, req CheckRequest) (string, error)
	// StartReplication submits a replication command and returns its id.
	StartReplication(ctx context.Context, req ReplicationRequest) (string, error)
	// RefreshMetadata asks the service to refresh connector metadata for a connection.
	RefreshMetadata(ctx context.Context, connectionID string) error
	// Status returns the current state of a command.
	Status(ctx context.Context, commandID string) (CommandStatus, error)
	// CheckOutput returns the output of a completed check command.
	CheckOutput(ctx context.Context, commandID string) (*CheckOutput, error)
	// ReplicationOutput returns the output of a finished replication command.
	ReplicationOutput(ctx context.Context, commandID string) (*ReplicationOutput, error)
	// Cancel requests cancellation of a command.
	Cancel(ctx context.Context, commandID string) error
}

// HTTPClient implements Client over HTTP/JSON.
type HTTPClient struct {
	base   *url.URL
	client *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the service at endpoint. A zero timeout
// uses the default.
func NewHTTPClient(endpoint string, timeout time.Duration) (*HTTPClient, error) {
	if endpoint == "" {
		return nil, errors.New("connector endpoint is required")
	}
	base, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid connector endpoint: %w", err)
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// StartCheck implements Client.
func (c *HTTPClient) StartCheck(ctx context.Context, req CheckRequest) (string, error) {
	var resp startResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/commands/check", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// StartReplication implements Client.
func (c *HTTPClient) StartReplication(ctx context.Context, req ReplicationRequest) (string, error) {
	var resp startResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/commands/replicate", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// RefreshMetadata implements Client.
func (c *HTTPClient) RefreshMetadata(ctx context.Context, connectionID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/connections/"+url.PathEscape(connectionID)+"/refresh", nil, nil)
}

// Status implements Client.
func (c *HTTPClient) Status(ctx context.Context, commandID string) (CommandStatus, error) {
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, commandPath(commandID, "status"), nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// CheckOutput implements Client.
func (c *HTTPClient) CheckOutput(ctx context.Context, commandID string) (*CheckOutput, error) {
	var out CheckOutput
	if err := c.do(ctx, http.MethodGet, commandPath(commandID, "output"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReplicationOutput implements Client.
func (c *HTTPClient) ReplicationOutput(ctx context.Context, commandID string) (*ReplicationOutput, error) {
	var out ReplicationOutput
	if err := c.do(ctx, http.MethodGet, commandPath(commandID, "output"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel implements Client.
func (c *HTTPClient) Cancel(ctx context.Context, commandID string) error {
	return c.do(ctx, http.MethodPost, commandPath(commandID, "cancel"), nil, nil)
}

// CheckCompatibility fails when the service is older than
// versions.MinCommandServiceVersion.
func (c *HTTPClient) CheckCompatibility(ctx context.Context) error {
	var resp struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/version", nil, &resp); err != nil {
		return err
	}
	if !versions.IsAtLeast(resp.Version, versions.MinCommandServiceVersion) {
		return fmt.Errorf("command service version %q is older than %s", resp.Version, versions.MinCommandServiceVersion)
	}
	return nil
}

func commandPath(id, action string) string {
	return "/api/v1/commands/" + url.PathEscape(id) + "/" + action
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	target := c.base.String() + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent+" ("+versions.Version+")")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > maxResponseSize {
		return fmt.Errorf("response size (%d bytes) exceeds maximum allowed size (%.2f MB)",
			resp.ContentLength, float64(maxResponseSize)/(1024*1024))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > maxResponseSize {
		return fmt.Errorf("response exceeds maximum allowed size (%.2f MB)", float64(maxResponseSize)/(1024*1024))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewHTTPError(resp.StatusCode, target, strings.TrimSpace(string(data)))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// WaitOption configures Wait.
type WaitOption func(*waitConfig)

type waitConfig struct {
	interval   time.Duration
	maxElapsed time.Duration
	onPoll     func(CommandStatus)
}

// WithPollInterval sets the delay between status polls.
func WithPollInterval(d time.Duration) WaitOption {
	return func(c *waitConfig) { c.interval = d }
}

// WithMaxWait bounds the total wait. Zero waits until ctx is done.
func WithMaxWait(d time.Duration) WaitOption {
	return func(c *waitConfig) { c.maxElapsed = d }
}

// WithOnPoll registers a callback run after every status poll, for example to
// heartbeat an activity.
func WithOnPoll(fn func(CommandStatus)) WaitOption {
	return func(c *waitConfig) { c.onPoll = fn }
}

var errStillRunning = errors.New("command still running")

// Wait polls the command until it reaches a terminal state. It returns
// ErrCommandFailed or ErrCommandCancelled for those states. Client errors
// (4xx other than 429) stop polling immediately.
func Wait(ctx context.Context, c Client, commandID string, opts ...WaitOption) (CommandStatus, error) {
	cfg := waitConfig{interval: 5 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	operation := func() (CommandStatus, error) {
		status, err := c.Status(ctx, commandID)
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && !httpErr.Retryable() {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		if cfg.onPoll != nil {
			cfg.onPoll(status)
		}
		if !status.IsTerminal() {
			return status, errStillRunning
		}
		return status, nil
	}

	status, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(cfg.interval)),
		backoff.WithMaxElapsedTime(cfg.maxElapsed),
	)
	if err != nil {
		return status, fmt.Errorf("waiting for command %s: %w", commandID, err)
	}

	switch status {
	case CommandStatusFailed:
		return status, fmt.Errorf("command %s: %w", commandID, ErrCommandFailed)
	case CommandStatusCancelled:
		return status, fmt.Errorf("command %s: %w", commandID, ErrCommandCancelled)
	default:
		return status, nil
	}
}
