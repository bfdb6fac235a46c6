package service

import (
	"context"
	"time"

	"devtel/pkg/logger"
	"devtel/pkg/metrics"
)

// MetricsSnapshot is the aggregated view served to dashboards and the
// live watch feed.
type MetricsSnapshot struct {
	Timestamp       time.Time                     `json:"timestamp"`
	LatencyP50      float64                       `json:"latency_p50_ms"`
	LatencyP95      float64                       `json:"latency_p95_ms"`
	LatencyP99      float64                       `json:"latency_p99_ms"`
	LatencyAvg      float64                       `json:"latency_avg_ms"`
	AcceptanceRate  float64                       `json:"acceptance_rate"`
	ToolSuccessRate float64                       `json:"tool_success_rate"`
	ToolErrorRate   float64                       `json:"tool_error_rate"`
	EventsPerSecond float64                       `json:"events_per_second"`
	ActiveSessions  int64                         `json:"active_sessions"`
	Categories      map[string]map[string]float64 `json:"categories"`
}

// MetricsService aggregates shared state and stored series for the read
// API.
type MetricsService struct {
	state   *metrics.SharedState
	storage *metrics.Storage
}

// NewMetricsService creates the metrics read service.
func NewMetricsService(state *metrics.SharedState, storage *metrics.Storage) *MetricsService {
	return &MetricsService{
		state:   state,
		storage: storage,
	}
}

// Snapshot builds the current aggregated view. Individual aggregate
// failures degrade to zero values rather than failing the whole snapshot.
func (s *MetricsService) Snapshot(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		Timestamp:  time.Now().UTC(),
		Categories: make(map[string]map[string]float64),
	}

	pct, err := s.state.LatencyPercentiles(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "snapshot: latency percentiles unavailable: %v", err)
	} else {
		snap.LatencyP50 = pct.P50
		snap.LatencyP95 = pct.P95
		snap.LatencyP99 = pct.P99
		snap.LatencyAvg = pct.Avg
	}

	if rate, err := s.state.AcceptanceRate(ctx); err == nil {
		snap.AcceptanceRate = rate
	}
	if rate, err := s.state.ToolSuccessRate(ctx, ""); err == nil {
		snap.ToolSuccessRate = rate
	}
	if rate, err := s.state.ToolErrorRate(ctx); err == nil {
		snap.ToolErrorRate = rate
	}
	if eps, err := s.state.EventsPerSecond(ctx); err == nil {
		snap.EventsPerSecond = eps
	}
	if sessions, err := s.state.ActiveSessions(ctx); err == nil {
		snap.ActiveSessions = sessions
	}

	for _, category := range []string{"realtime", "tools", "session", "productivity"} {
		latest, err := s.storage.Latest(ctx, category)
		if err != nil {
			logger.WarnCtx(ctx, "snapshot: latest %s metrics unavailable: %v", category, err)
			continue
		}
		if len(latest) > 0 {
			snap.Categories[category] = latest
		}
	}

	return snap, nil
}

// Latest returns the most recent value of every metric in a category.
func (s *MetricsService) Latest(ctx context.Context, category string) (map[string]float64, error) {
	return s.storage.Latest(ctx, category)
}

// Series returns the stored time series for one metric since the given
// time.
func (s *MetricsService) Series(ctx context.Context, category, name string, since time.Time) ([]metrics.Point, error) {
	return s.storage.Series(ctx, category, name, since)
}
