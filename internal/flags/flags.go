// Package flags evaluates feature flags for connections. Flags are read from
// a YAML file that can be edited while the worker runs.
package flags

import (
	"context"
)

// Known flags.
const (
	// UseSyncV2 makes the controller pass ids only to the sync child, which
	// hydrates its own configuration.
	UseSyncV2 = "connection.use-sync-v2"

	// LoadShedBackoffSeconds, when positive, holds every controller at start-up
	// for that many seconds.
	LoadShedBackoffSeconds = "platform.load-shed-backoff-seconds"
)

// defaults apply to flags absent from the file.
var defaults = map[string]any{
	UseSyncV2:              false,
	LoadShedBackoffSeconds: 0,
}

// Context is the evaluation context of a flag. Empty ids never match an override.
type Context struct {
	ConnectionID   string
	WorkspaceID    string
	OrganizationID string
}

// Client evaluates flags.
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/stacklok/toolhive-sync-controller/internal/flags Client
type Client interface {
	// Bool returns the boolean value of a flag for the context.
	Bool(ctx context.Context, flag string, fc Context) bool
	// Int returns the integer value of a flag for the context.
	Int(ctx context.Context, flag string, fc Context) int
}
