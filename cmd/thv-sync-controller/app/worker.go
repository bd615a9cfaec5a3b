package app

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/toolhive-sync-controller/internal/app"
)

const defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the connection controller worker",
		Long: `Run the Temporal worker hosting the connection controller, its check, sync and
post-sync child workflows and their activities.

The worker requires a configuration file (--config) that specifies:
- the Temporal cluster and task queue
- the database (optional, jobs are kept in memory without one)
- scheduler, retry and auto-disable settings
- the connector command service endpoint and the feature flag file`,
		RunE: runWorker,
	}

	cmd.Flags().String("address", "", "Ops server address (overrides server.address)")
	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := cmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
	return cmd
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []app.WorkerAppOptions{app.WithConfig(cfg)}
	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return fmt.Errorf("failed to get address flag: %w", err)
	}
	if address != "" {
		opts = append(opts, app.WithAddress(address))
	}

	workerApp, err := app.NewWorkerApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build worker: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- workerApp.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			slog.Error("Worker stopped unexpectedly", "error", err)
		}
		if stopErr := workerApp.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Failed to stop worker", "error", stopErr)
		}
		return err
	}

	if err := workerApp.Stop(defaultGracefulTimeout); err != nil {
		return err
	}
	return <-errCh
}
