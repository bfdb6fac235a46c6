package handler

import (
	"net/http"
	"strconv"

	"devtel/internal/service"
	"devtel/pkg/logger"

	"github.com/gin-gonic/gin"
)

// PipelineHandler serves pipeline health and dead-letter operations.
type PipelineHandler struct {
	pipelineService *service.PipelineService
}

// NewPipelineHandler creates the pipeline handler.
func NewPipelineHandler(pipelineService *service.PipelineService) *PipelineHandler {
	return &PipelineHandler{pipelineService: pipelineService}
}

// Stats returns the current pipeline snapshot.
// @Summary Get pipeline statistics
// @Tags pipeline
// @Produce json
// @Router /v1/pipeline/stats [get]
func (h *PipelineHandler) Stats(c *gin.Context) {
	stats, err := h.pipelineService.Stats(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to get pipeline stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListDLQ returns dead-letter entries, oldest first.
// @Summary List dead-letter entries
// @Tags pipeline
// @Produce json
// @Param limit query int false "Maximum entries to return (default 100)"
// @Router /v1/pipeline/dlq [get]
func (h *PipelineHandler) ListDLQ(c *gin.Context) {
	limit := int64(100)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	entries, err := h.pipelineService.ListDLQ(c.Request.Context(), limit)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list dlq: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// Replay schedules a dead-letter entry for re-ingestion.
// @Summary Replay a dead-letter entry
// @Tags pipeline
// @Produce json
// @Param message_id path string true "Dead-letter stream message ID"
// @Router /v1/pipeline/dlq/{message_id}/replay [post]
func (h *PipelineHandler) Replay(c *gin.Context) {
	messageID := c.Param("message_id")
	if messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_id required"})
		return
	}

	if err := h.pipelineService.Replay(c.Request.Context(), messageID); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to replay dlq entry %s: %v", messageID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message_id": messageID, "status": "replay scheduled"})
}
