package handler

import (
	"net/http"
	"time"

	"devtel/internal/service"
	"devtel/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	watchInterval = 2 * time.Second
	writeTimeout  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins, production should use stricter checks
	},
}

// WatchHandler streams metrics snapshots over a WebSocket for live
// dashboards.
type WatchHandler struct {
	metricsService *service.MetricsService
}

// NewWatchHandler creates the watch handler.
func NewWatchHandler(metricsService *service.MetricsService) *WatchHandler {
	return &WatchHandler{metricsService: metricsService}
}

// Watch upgrades the connection and pushes a snapshot every interval until
// the client disconnects.
// @Summary Live metrics feed
// @Tags metrics
// @Router /v1/watch [get]
func (h *WatchHandler) Watch(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to upgrade to websocket: %v", err)
		return
	}
	defer ws.Close()

	ctx := c.Request.Context()

	// Drain client frames so close messages are processed.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		snap, err := h.metricsService.Snapshot(ctx)
		if err != nil {
			logger.WarnCtx(ctx, "watch: snapshot failed: %v", err)
		} else {
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteJSON(snap); err != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
