package service

import (
	"context"
	"testing"
	"time"

	"devtel/pkg/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetricsService(t *testing.T) (*MetricsService, *metrics.SharedState, *metrics.Storage) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	state := metrics.NewSharedState(client)
	storage := metrics.NewStorage(client)
	return NewMetricsService(state, storage), state, storage
}

func TestMetricsService_SnapshotEmptyState(t *testing.T) {
	svc, _, _ := newTestMetricsService(t)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.LatencyP50)
	assert.Zero(t, snap.AcceptanceRate)
	assert.Zero(t, snap.ActiveSessions)
	assert.Empty(t, snap.Categories)
	assert.False(t, snap.Timestamp.IsZero())
}

func TestMetricsService_SnapshotAggregates(t *testing.T) {
	svc, state, storage := newTestMetricsService(t)
	ctx := context.Background()

	require.NoError(t, state.AddLatency(ctx, 100))
	require.NoError(t, state.AddLatency(ctx, 200))
	require.NoError(t, state.AddAcceptance(ctx, true))
	require.NoError(t, state.IncrementToolCount(ctx, "grep", true))
	require.NoError(t, state.SetSessionStart(ctx, "s1", "2026-08-26T10:00:00Z"))
	require.NoError(t, storage.Record(ctx, metrics.Metric{Category: "productivity", Name: "productivity_score", Value: 85}))

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	assert.InDelta(t, 150.0, snap.LatencyAvg, 0.001)
	assert.InDelta(t, 100.0, snap.AcceptanceRate, 0.001)
	assert.InDelta(t, 100.0, snap.ToolSuccessRate, 0.001)
	assert.Equal(t, int64(1), snap.ActiveSessions)
	require.Contains(t, snap.Categories, "productivity")
	assert.InDelta(t, 85.0, snap.Categories["productivity"]["productivity_score"], 0.001)
}

func TestMetricsService_SeriesPassthrough(t *testing.T) {
	svc, _, storage := newTestMetricsService(t)
	ctx := context.Background()

	require.NoError(t, storage.Record(ctx, metrics.Metric{Category: "tools", Name: "tool_latency_avg", Value: 42}))

	points, err := svc.Series(ctx, "tools", "tool_latency_avg", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 42.0, points[0].Value, 0.001)
}
