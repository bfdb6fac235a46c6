package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"devtel/app/handler"
	"devtel/internal/jobs"
	"devtel/internal/service"
	"devtel/pkg/config"
	"devtel/pkg/fastpath"
	"devtel/pkg/logger"
	"devtel/pkg/metrics"
	"devtel/pkg/queue"
	queueasynq "devtel/pkg/queue/asynq"
	"devtel/pkg/slowpath"
	mysqlstore "devtel/pkg/store/mysql"
	redisstore "devtel/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// Application manages the lifecycle of the entire pipeline process: the
// ingest API, the fast-path consumer, the slow-path worker pool and the
// background jobs all run in this one binary.
type Application struct {
	// Infrastructure
	config      *config.Config
	mysqlRepo   *mysqlstore.Repository
	redisClient *redisstore.RedisClient

	// Pipeline components
	producer     *queue.StreamProducer
	cdcPublisher *fastpath.CDCPublisher
	consumer     *fastpath.Consumer
	workerPool   *slowpath.Pool
	queueManager *queueasynq.Manager

	// Metrics
	sharedState *metrics.SharedState
	calculator  *metrics.Calculator
	storage     *metrics.Storage

	// Service layer
	metricsService  *service.MetricsService
	pipelineService *service.PipelineService

	// Handler layer
	ingestHandler   *handler.IngestHandler
	metricsHandler  *handler.MetricsHandler
	pipelineHandler *handler.PipelineHandler
	watchHandler    *handler.WatchHandler

	// HTTP server
	httpServer *http.Server
	ginEngine  *gin.Engine

	// Background jobs
	jobsManager *jobs.Manager

	// Context management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cleanupFuncs []func()
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:          ctx,
		cancel:       cancel,
		cleanupFuncs: make([]func(), 0),
	}
}

// Initialize initializes all application components in dependency order.
func (app *Application) Initialize() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"MySQL", app.initMySQL},
		{"Redis", app.initRedis},
		{"Metrics", app.initMetrics},
		{"Pipeline", app.initPipeline},
		{"Queue", app.initQueue},
		{"Service Layer", app.initServices},
		{"Background Jobs", app.initJobs},
		{"Handler Layer", app.initHandlers},
		{"HTTP Server", app.initHTTPServer},
	}

	for _, step := range steps {
		logger.InfoCtx(app.ctx, "Initializing %s...", step.name)
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		logger.InfoCtx(app.ctx, "%s initialized successfully", step.name)
	}

	logger.InfoCtx(app.ctx, "Application initialization completed")
	return nil
}

// Start starts all application components.
func (app *Application) Start() error {
	logger.InfoCtx(app.ctx, "Starting application components...")

	// 1. Fast-path consumer
	if err := app.consumer.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start fast-path consumer: %w", err)
	}

	// 2. Slow-path worker pool
	if err := app.workerPool.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start slow-path pool: %w", err)
	}

	// 3. Replay queue server
	if err := app.queueManager.Start(); err != nil {
		return fmt.Errorf("failed to start queue server: %w", err)
	}

	// 4. Background jobs
	app.jobsManager.Start()
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.jobsManager.Wait()
	}()

	// 5. HTTP server
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		addr := fmt.Sprintf(":%d", app.config.Server.Port)
		logger.InfoCtx(app.ctx, "HTTP server listening on: %s", addr)
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalCtx(app.ctx, "HTTP server error: %v", err)
		}
	}()

	logger.InfoCtx(app.ctx, "All components started successfully")
	return nil
}

// Shutdown gracefully shuts down the application. Consumers stop before
// the stores close so in-flight batches finish their write-then-ack cycle.
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.InfoCtx(app.ctx, "Starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. Stop accepting new requests
	logger.InfoCtx(app.ctx, "Shutting down HTTP server...")
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(app.ctx, "HTTP server shutdown error: %v", err)
	}

	// 2. Stop consumers and workers
	logger.InfoCtx(app.ctx, "Stopping pipeline consumers...")
	app.consumer.Stop()
	app.workerPool.Stop()
	app.queueManager.Stop()

	// 3. Cancel background jobs
	logger.InfoCtx(app.ctx, "Canceling background jobs...")
	app.cancel()
	app.jobsManager.Stop()

	// 4. Wait for background goroutines
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoCtx(app.ctx, "All background tasks completed")
	case <-shutdownCtx.Done():
		logger.WarnCtx(app.ctx, "Shutdown timeout, some tasks may not have completed")
	}

	// 5. Cleanup functions in reverse registration order
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}

	logger.Sync()
	logger.InfoCtx(app.ctx, "Graceful shutdown completed")
	return nil
}

// registerCleanup registers a cleanup function.
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}
