package store

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-sync-controller/internal/config"
)

// New returns the Store implied by the configured storage type. The pool
// must not be nil when a database is configured.
func New(cfg *config.Config, pool *pgxpool.Pool, tracer trace.Tracer) (Store, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		if pool == nil {
			return nil, fmt.Errorf("database pool is required when storage type is database")
		}
		slog.Debug("Using Postgres store")
		return NewPostgresStore(pool, WithTracer(tracer)), nil
	default:
		slog.Warn("No database configured, jobs are kept in memory and lost on restart")
		return NewMemoryStore(), nil
	}
}
