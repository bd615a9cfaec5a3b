package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/stacklok/toolhive-sync-controller/internal/api"
	"github.com/stacklok/toolhive-sync-controller/internal/config"
	"github.com/stacklok/toolhive-sync-controller/internal/connectors"
	"github.com/stacklok/toolhive-sync-controller/internal/db"
	"github.com/stacklok/toolhive-sync-controller/internal/flags"
	"github.com/stacklok/toolhive-sync-controller/internal/replication"
	"github.com/stacklok/toolhive-sync-controller/internal/scheduling"
	"github.com/stacklok/toolhive-sync-controller/internal/scheduling/activities"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
	"github.com/stacklok/toolhive-sync-controller/internal/telemetry"
)

const (
	instrumentationName     = "github.com/stacklok/toolhive-sync-controller"
	defaultRequestTimeout   = 10 * time.Second
	defaultReadTimeout      = 10 * time.Second
	defaultWriteTimeout     = 15 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	compatibilityCheckLimit = 5 * time.Second
	readinessCheckLimit     = 3 * time.Second
)

// Worker is the part of a Temporal worker the app drives. worker.Worker
// satisfies it.
type Worker interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivity(a interface{})
	Start() error
	Stop()
}

// WorkerFactory creates the worker polling taskQueue through c
type WorkerFactory func(c client.Client, taskQueue string) Worker

// WorkerAppOptions is a function that configures the worker app builder
type WorkerAppOptions func(*workerAppConfig) error

// workerAppConfig collects everything NewWorkerApp needs. Injected components
// replace the ones built from the configuration, mostly for tests.
type workerAppConfig struct {
	config *config.Config

	temporalClient client.Client
	store          store.Store
	flags          *flags.FileClient
	connectors     connectors.Client
	workerFactory  WorkerFactory
	registry       *prometheus.Registry

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...WorkerAppOptions) (*workerAppConfig, error) {
	cfg := &workerAppConfig{
		workerFactory:  newTemporalWorker,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.Server.GetAddress()
	}
	if cfg.registry == nil {
		cfg.registry = prometheus.NewRegistry()
	}
	return cfg, nil
}

// cleanups runs registered release functions in reverse order
type cleanups []func()

func (c *cleanups) add(fn func()) {
	*c = append(*c, fn)
}

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// NewWorkerApp builds the worker process: storage, feature flags, the
// connector client, the Temporal client and worker with every workflow and
// activity registered, and the ops HTTP server.
func NewWorkerApp(ctx context.Context, opts ...WorkerAppOptions) (*WorkerApp, error) {
	b, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	var release cleanups
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			release.run()
		}
	}()

	tel, err := telemetry.New(ctx,
		telemetry.WithTelemetryConfig(b.config.Telemetry),
		telemetry.WithRegisterer(b.registry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	release.add(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	})

	pool, err := buildStorage(ctx, b, tel, &release)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage: %w", err)
	}

	if b.flags == nil {
		b.flags, err = flags.NewFileClient(b.config.Flags.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load feature flags: %w", err)
		}
	}

	if err := buildConnectors(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to build connector client: %w", err)
	}

	if b.temporalClient == nil {
		b.temporalClient, err = DialTemporal(ctx, b.config.Temporal, tel)
		if err != nil {
			return nil, err
		}
		release.add(b.temporalClient.Close)
	}

	w, err := buildWorker(b, tel)
	if err != nil {
		return nil, fmt.Errorf("failed to build worker: %w", err)
	}

	httpServer, err := buildHTTPServer(b, pool, tel)
	if err != nil {
		return nil, fmt.Errorf("failed to build ops server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false
	var stopOnce sync.Once

	return &WorkerApp{
		config: b.config,
		components: &AppComponents{
			Temporal:   b.temporalClient,
			Worker:     w,
			Store:      b.store,
			Flags:      b.flags,
			Connectors: b.connectors,
			Database:   pool,
			Telemetry:  tel,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: func() {
			stopOnce.Do(func() {
				cancel()
				release.run()
			})
		},
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) WorkerAppOptions {
	return func(cfg *workerAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the ops HTTP server address, overriding server.address
func WithAddress(addr string) WorkerAppOptions {
	return func(cfg *workerAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		parts := strings.SplitN(addr, ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		host, port := parts[0], parts[1]
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) WorkerAppOptions {
	return func(cfg *workerAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithTemporalClient uses c instead of dialing the configured cluster. The
// caller keeps ownership of c.
func WithTemporalClient(c client.Client) WorkerAppOptions {
	return func(cfg *workerAppConfig) error {
		cfg.temporalClient = c
		return nil
	}
}

// WithStore allows injecting a custom store (for testing)
func WithStore(s store.Store) WorkerAppOptions {
	return func(cfg *workerAppConfig) error {
		cfg.store = s
		return nil
	}
}

// WithFlagsClient allows injecting a preloaded flag client
func WithFlagsClient(fc *flags.FileClient) WorkerAppOptions {
	return func(cfg *workerAppConfig) error {
		cfg.flags = fc
		return nil
	}
}

// WithConnectorsClient allows injecting a custom connector client (for testing)
func WithConnectorsClient(c connectors.Client) WorkerAppOptions {
	return func(cfg *workerAppConfig) error {
		cfg.connectors = c
		return nil
	}
}

// WithWorkerFactory replaces the Temporal worker constructor (for testing)
func WithWorkerFactory(f WorkerFactory) WorkerAppOptions {
	return func(cfg *workerAppConfig) error {
		if f == nil {
			return fmt.Errorf("worker factory cannot be nil")
		}
		cfg.workerFactory = f
		return nil
	}
}

// WithPrometheusRegistry sets the registry served on /metrics
func WithPrometheusRegistry(r *prometheus.Registry) WorkerAppOptions {
	return func(cfg *workerAppConfig) error {
		cfg.registry = r
		return nil
	}
}

func newTemporalWorker(c client.Client, taskQueue string) Worker {
	return worker.New(c, taskQueue, worker.Options{})
}

// buildStorage opens the database pool when one is configured and creates
// the store on top of it. The pool is nil with in-memory storage.
func buildStorage(ctx context.Context, b *workerAppConfig, tel *telemetry.Telemetry, release *cleanups) (*pgxpool.Pool, error) {
	if b.store != nil {
		return nil, nil
	}

	var pool *pgxpool.Pool
	if b.config.Database != nil {
		var err error
		pool, err = db.NewPool(ctx, b.config.Database)
		if err != nil {
			return nil, err
		}
		release.add(pool.Close)
	}

	s, err := store.New(b.config, pool, tel.Tracer(instrumentationName))
	if err != nil {
		return nil, err
	}
	b.store = s
	slog.Info("Storage initialized", "type", b.config.GetStorageType())
	return pool, nil
}

func buildConnectors(ctx context.Context, b *workerAppConfig) error {
	if b.connectors != nil {
		return nil
	}

	c, err := connectors.NewHTTPClient(b.config.Connectors.Endpoint, b.config.Connectors.GetTimeout())
	if err != nil {
		return err
	}

	checkCtx, cancel := context.WithTimeout(ctx, compatibilityCheckLimit)
	defer cancel()
	if err := c.CheckCompatibility(checkCtx); err != nil {
		slog.Warn("Could not confirm command service compatibility",
			"endpoint", b.config.Connectors.Endpoint, "error", err)
	}

	b.connectors = c
	return nil
}

// DialTemporal connects to the configured Temporal frontend. With tel set,
// the client traces through the tracing interceptor and reports SDK metrics
// to the meter provider.
func DialTemporal(ctx context.Context, cfg config.TemporalConfig, tel *telemetry.Telemetry) (client.Client, error) {
	opts := client.Options{
		HostPort:  cfg.GetHostPort(),
		Namespace: cfg.GetNamespace(),
		Logger:    tlog.NewStructuredLogger(slog.Default()),
	}
	if tel != nil {
		if err := tel.InstrumentTemporal(&opts, instrumentationName); err != nil {
			return nil, err
		}
	}

	c, err := client.DialContext(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal at %s: %w", cfg.GetHostPort(), err)
	}

	slog.Info("Connected to Temporal", "host_port", cfg.GetHostPort(), "namespace", cfg.GetNamespace())
	return c, nil
}

// buildWorker creates the worker and registers the controller, its child
// workflows and both activity sets on it.
func buildWorker(b *workerAppConfig, tel *telemetry.Telemetry) (Worker, error) {
	controllerMetrics, err := telemetry.NewControllerMetrics(tel.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create controller metrics: %w", err)
	}
	syncMetrics, err := telemetry.NewSyncMetrics(tel.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	tracer := tel.Tracer(instrumentationName)

	controllerActivities := activities.New(b.store, b.flags,
		activities.WithSettings(activities.SettingsFromConfig(b.config)),
		activities.WithMetrics(controllerMetrics),
		activities.WithTracer(tracer),
	)
	replicationActivities := replication.NewActivities(b.connectors, b.store,
		replication.WithPollInterval(b.config.Connectors.GetPollInterval()),
		replication.WithSyncMetrics(syncMetrics),
		replication.WithTracer(tracer),
	)

	taskQueue := b.config.Temporal.GetTaskQueue()
	w := b.workerFactory(b.temporalClient, taskQueue)
	registerWorkflows(w)
	w.RegisterActivity(controllerActivities)
	w.RegisterActivity(replicationActivities)

	slog.Info("Worker configured", "task_queue", taskQueue)
	return w, nil
}

func registerWorkflows(w Worker) {
	w.RegisterWorkflowWithOptions(scheduling.ConnectionManagerWorkflow,
		workflow.RegisterOptions{Name: scheduling.WorkflowName})
	w.RegisterWorkflowWithOptions(replication.CheckConnectionWorkflow,
		workflow.RegisterOptions{Name: replication.CheckConnectionWorkflowName})
	w.RegisterWorkflowWithOptions(replication.SyncWorkflow,
		workflow.RegisterOptions{Name: replication.SyncWorkflowName})
	w.RegisterWorkflowWithOptions(replication.SyncWorkflowV2,
		workflow.RegisterOptions{Name: replication.SyncWorkflowV2Name})
	w.RegisterWorkflowWithOptions(replication.PostSyncWorkflow,
		workflow.RegisterOptions{Name: replication.PostSyncWorkflowName})
}

// buildHTTPServer builds the ops server with readiness checks for the
// Temporal frontend and, when present, the database. With tel set, every
// request is traced and counted.
func buildHTTPServer(b *workerAppConfig, pool *pgxpool.Pool, tel *telemetry.Telemetry) (*http.Server, error) {
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Outermost, so requests that time out or panic are still recorded
	if tel != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(tel.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create ops metrics middleware: %w", err)
		}
		b.middlewares = append([]func(http.Handler) http.Handler{
			telemetry.TracingMiddleware(tel.TracerProvider()),
			metricsMiddleware,
		}, b.middlewares...)
	}

	temporalClient := b.temporalClient
	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
		api.WithCheckTimeout(readinessCheckLimit),
		api.WithReadinessCheck("temporal", func(ctx context.Context) error {
			_, err := temporalClient.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		}),
		api.WithMetricsHandler(promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{})),
	}
	if pool != nil {
		serverOpts = append(serverOpts, api.WithReadinessCheck("database", pool.Ping))
	}

	server := &http.Server{
		Addr:         b.address,
		Handler:      api.NewServer(serverOpts...),
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("Ops server configured", "address", b.address)
	return server, nil
}
