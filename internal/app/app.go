// Package app provides application lifecycle management for the sync
// controller worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/toolhive-sync-controller/internal/config"
)

// WorkerApp encapsulates everything needed to run the controller worker
// It provides lifecycle management and graceful shutdown capabilities
type WorkerApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the Temporal worker, the feature flag watcher and the ops
// server. It blocks until Stop is called or one of them fails.
func (app *WorkerApp) Start() error {
	if err := app.components.Worker.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	slog.Info("Worker started", "task_queue", app.config.Temporal.GetTaskQueue())

	g, ctx := errgroup.WithContext(app.ctx)
	g.Go(func() error {
		if err := app.components.Flags.Watch(ctx); err != nil {
			return fmt.Errorf("feature flag watcher failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("Ops server listening", "address", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Stop gracefully stops the application with the given timeout. The worker
// stops first so in-flight workflow tasks can finish, then the ops server
// shuts down and the clients are released.
func (app *WorkerApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down worker...")

	app.components.Worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	shutdownErr := app.httpServer.Shutdown(shutdownCtx)

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if shutdownErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
	}

	slog.Info("Worker shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *WorkerApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the ops HTTP server
func (app *WorkerApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// GetComponents returns the built components
func (app *WorkerApp) GetComponents() *AppComponents {
	return app.components
}
