package handler

import (
	"net/http"
	"strconv"
	"time"

	"devtel/internal/service"
	"devtel/pkg/logger"

	"github.com/gin-gonic/gin"
)

// MetricsHandler serves the derived-metrics read API.
type MetricsHandler struct {
	metricsService *service.MetricsService
}

// NewMetricsHandler creates the metrics handler.
func NewMetricsHandler(metricsService *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metricsService: metricsService}
}

// Snapshot returns the aggregated metrics view.
// @Summary Get current metrics snapshot
// @Tags metrics
// @Produce json
// @Router /v1/metrics [get]
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	snap, err := h.metricsService.Snapshot(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to build metrics snapshot: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Latest returns the most recent value of every metric in a category.
// @Summary Get latest metrics for a category
// @Tags metrics
// @Produce json
// @Param category path string true "Metric category"
// @Router /v1/metrics/{category} [get]
func (h *MetricsHandler) Latest(c *gin.Context) {
	category := c.Param("category")
	latest, err := h.metricsService.Latest(c.Request.Context(), category)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to get latest %s metrics: %v", category, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"metrics":  latest,
	})
}

// Series returns the stored time series for one metric.
// @Summary Get metric time series
// @Tags metrics
// @Produce json
// @Param category path string true "Metric category"
// @Param name path string true "Metric name"
// @Param since_sec query int false "Window in seconds (default 3600)"
// @Router /v1/metrics/{category}/{name}/series [get]
func (h *MetricsHandler) Series(c *gin.Context) {
	category := c.Param("category")
	name := c.Param("name")

	sinceSec := int64(3600)
	if raw := c.Query("since_sec"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since_sec must be a positive integer"})
			return
		}
		sinceSec = parsed
	}

	since := time.Now().Add(-time.Duration(sinceSec) * time.Second)
	points, err := h.metricsService.Series(c.Request.Context(), category, name, since)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to get series %s/%s: %v", category, name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"name":     name,
		"points":   points,
	})
}
