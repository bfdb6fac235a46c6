package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"devtel/app/handler"
	"devtel/app/router"
	"devtel/internal/service"
	"devtel/pkg/config"
	"devtel/pkg/constants"
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

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
	})
	return nil
}

// initMySQL initializes the durable trace store
func (app *Application) initMySQL() error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		app.config.MySQL.User,
		app.config.MySQL.Password,
		app.config.MySQL.Host,
		app.config.MySQL.Port,
		app.config.MySQL.Database,
	)

	repo, err := mysqlstore.NewRepository(dsn)
	if err != nil {
		return err
	}

	app.mysqlRepo = repo
	app.registerCleanup(func() {
		repo.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})
	return nil
}

// initRedis initializes the Redis connection shared by streams and metrics
func (app *Application) initRedis() error {
	client, err := redisstore.NewRedisClient(app.config)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})
	return nil
}

// initMetrics initializes shared metrics state, calculator and storage
func (app *Application) initMetrics() error {
	rdb := app.redisClient.GetClient()
	app.sharedState = metrics.NewSharedState(rdb)
	app.calculator = metrics.NewCalculator(app.sharedState)
	app.storage = metrics.NewStorage(rdb)
	return nil
}

// initPipeline wires the producer, the fast-path consumer and the
// slow-path worker pool
func (app *Application) initPipeline() error {
	rdb := app.redisClient.GetClient()
	cfg := app.config

	app.producer = queue.NewStreamProducer(rdb, constants.EventsStream, cfg.Streams.EventsMaxLen)
	app.cdcPublisher = fastpath.NewCDCPublisher(rdb, constants.CDCStream, cfg.Streams.CDCMaxLen)

	consumerName := cfg.FastPath.ConsumerName
	if consumerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "consumer"
		}
		consumerName = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	writer := fastpath.NewDurableWriter(app.mysqlRepo.Trace)
	app.consumer = fastpath.NewConsumer(rdb, writer, app.cdcPublisher, fastpath.ConsumerOptions{
		Stream:       constants.EventsStream,
		Group:        constants.FastPathGroup,
		ConsumerName: consumerName,
		DLQStream:    constants.DLQStream,
		DLQMaxLen:    cfg.Streams.DLQMaxLen,
		BatchSize:    cfg.FastPath.BatchSize,
		BatchTimeout: cfg.FastPath.BatchTimeoutDuration(),
		BlockTimeout: time.Duration(cfg.FastPath.BlockMs) * time.Millisecond,
		ClaimIdle:    cfg.FastPath.ClaimIdleDuration(),
	})

	metricsHandler := slowpath.NewMetricsHandler(app.mysqlRepo.Trace, app.calculator, app.storage)
	app.workerPool = slowpath.NewPool(rdb, metricsHandler, slowpath.PoolOptions{
		Stream:          constants.CDCStream,
		Group:           constants.SlowPathGroup,
		DLQStream:       constants.DLQStream,
		DLQMaxLen:       cfg.Streams.DLQMaxLen,
		MetricsWorkers: cfg.SlowPath.MetricsWorkers,
		BlockTimeout:   time.Duration(cfg.SlowPath.BlockMs) * time.Millisecond,
		ClaimIdle:      cfg.SlowPath.ClaimIdleDuration(),
		MaxRetries:     int64(cfg.SlowPath.MaxRetries),
		Priorities: []int{
			constants.PriorityHigh,
			constants.PriorityMedium,
			constants.PriorityLow,
		},
		MonitorInterval: time.Duration(cfg.SlowPath.MonitorSec) * time.Second,
		DepthWarn:       cfg.SlowPath.DepthWarn,
		DepthCritical:   cfg.SlowPath.DepthCritical,
		PendingWarn:     cfg.SlowPath.PendingWarn,
	})
	return nil
}

// initQueue initializes the dead-letter replay queue
func (app *Application) initQueue() error {
	manager, err := queueasynq.NewManager(app.config, app.redisClient.GetClient())
	if err != nil {
		return err
	}

	app.queueManager = manager
	app.registerCleanup(func() {
		manager.Close()
		logger.InfoCtx(app.ctx, "Queue client has been closed")
	})
	return nil
}

// initServices initializes the service layer
func (app *Application) initServices() error {
	app.metricsService = service.NewMetricsService(app.sharedState, app.storage)
	app.pipelineService = service.NewPipelineService(
		app.redisClient.GetClient(),
		app.consumer,
		app.workerPool,
		app.queueManager,
	)
	return nil
}

// initHandlers initializes the handler layer
func (app *Application) initHandlers() error {
	app.ingestHandler = handler.NewIngestHandler(app.producer)
	app.metricsHandler = handler.NewMetricsHandler(app.metricsService)
	app.pipelineHandler = handler.NewPipelineHandler(app.pipelineService)
	app.watchHandler = handler.NewWatchHandler(app.metricsService)
	return nil
}

// initHTTPServer initializes the gin engine and HTTP server
func (app *Application) initHTTPServer() error {
	if app.config.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	app.ginEngine = gin.New()

	r := router.NewRouter(app.ingestHandler, app.metricsHandler, app.pipelineHandler, app.watchHandler)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:      app.ginEngine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket watch connections stay open
	}
	return nil
}
