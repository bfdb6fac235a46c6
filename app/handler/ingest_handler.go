package handler

import (
	"net/http"
	"time"

	"devtel/internal/model"
	"devtel/pkg/logger"
	"devtel/pkg/queue"

	"github.com/gin-gonic/gin"
)

// IngestHandler accepts telemetry events over HTTP and appends them to the
// ingest stream. This is the entry point for producers that cannot talk to
// Redis directly.
type IngestHandler struct {
	producer *queue.StreamProducer
}

// NewIngestHandler creates the ingest handler.
func NewIngestHandler(producer *queue.StreamProducer) *IngestHandler {
	return &IngestHandler{producer: producer}
}

// Ingest accepts a single event.
// @Summary Ingest one telemetry event
// @Tags events
// @Accept json
// @Produce json
// @Router /v1/events [post]
func (h *IngestHandler) Ingest(c *gin.Context) {
	var event model.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event: " + err.Error()})
		return
	}
	if event.EventType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_type required"})
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	id, err := h.producer.Publish(c.Request.Context(), &event)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to ingest event: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"event_id":  event.EventID,
		"stream_id": id,
	})
}

// IngestBatch accepts multiple events in one request. Events are appended
// individually; a partial failure reports how many were accepted.
// @Summary Ingest a batch of telemetry events
// @Tags events
// @Accept json
// @Produce json
// @Router /v1/events/batch [post]
func (h *IngestHandler) IngestBatch(c *gin.Context) {
	var events []model.Event
	if err := c.ShouldBindJSON(&events); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch: " + err.Error()})
		return
	}
	if len(events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty batch"})
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	accepted := 0
	for i := range events {
		if events[i].EventType == "" {
			continue
		}
		if events[i].Timestamp == "" {
			events[i].Timestamp = now
		}
		if _, err := h.producer.Publish(c.Request.Context(), &events[i]); err != nil {
			logger.ErrorCtx(c.Request.Context(), "failed to ingest batch event %d: %v", i, err)
			break
		}
		accepted++
	}

	status := http.StatusAccepted
	if accepted < len(events) {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{
		"accepted": accepted,
		"total":    len(events),
	})
}
