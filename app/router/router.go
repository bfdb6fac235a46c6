package router

import (
	"devtel/app/handler"
	"devtel/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router wires handlers onto the HTTP engine.
type Router struct {
	ingestHandler   *handler.IngestHandler
	metricsHandler  *handler.MetricsHandler
	pipelineHandler *handler.PipelineHandler
	watchHandler    *handler.WatchHandler
}

// NewRouter creates a new Router.
func NewRouter(ingestHandler *handler.IngestHandler, metricsHandler *handler.MetricsHandler, pipelineHandler *handler.PipelineHandler, watchHandler *handler.WatchHandler) *Router {
	return &Router{
		ingestHandler:   ingestHandler,
		metricsHandler:  metricsHandler,
		pipelineHandler: pipelineHandler,
		watchHandler:    watchHandler,
	}
}

// Setup sets up routes.
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	v1 := engine.Group("/v1")
	{
		// Event ingestion
		v1.POST("/events", r.ingestHandler.Ingest)
		v1.POST("/events/batch", r.ingestHandler.IngestBatch)

		// Derived metrics
		v1.GET("/metrics", r.metricsHandler.Snapshot)
		v1.GET("/metrics/:category", r.metricsHandler.Latest)
		v1.GET("/metrics/:category/:name/series", r.metricsHandler.Series)

		// Live metrics feed
		v1.GET("/watch", r.watchHandler.Watch)

		// Pipeline operations
		pipeline := v1.Group("/pipeline")
		{
			pipeline.GET("/stats", r.pipelineHandler.Stats)
			pipeline.GET("/dlq", r.pipelineHandler.ListDLQ)
			pipeline.POST("/dlq/:message_id/replay", r.pipelineHandler.Replay)
		}
	}

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
