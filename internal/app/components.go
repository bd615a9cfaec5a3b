package app

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.temporal.io/sdk/client"

	"github.com/stacklok/toolhive-sync-controller/internal/connectors"
	"github.com/stacklok/toolhive-sync-controller/internal/flags"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
	"github.com/stacklok/toolhive-sync-controller/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Temporal is the client the worker polls through
	Temporal client.Client

	// Worker executes controller workflows and their activities
	Worker Worker

	// Store persists connections, jobs and retry state
	Store store.Store

	// Flags serves feature flags and is reloaded while the app runs
	Flags *flags.FileClient

	// Connectors reaches the connector command service
	Connectors connectors.Client

	// Database is the Postgres pool (nil with in-memory storage)
	Database *pgxpool.Pool

	// Telemetry owns the tracer and meter providers
	Telemetry *telemetry.Telemetry
}
