package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStorage(client)
}

func TestStorage_RecordAndLatest(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Record(ctx, Metric{Category: "tools", Name: "tool_latency_avg", Value: 120.5}))
	require.NoError(t, storage.Record(ctx, Metric{Category: "tools", Name: "tool_success_rate", Value: 95}))

	// A newer value replaces the snapshot entry.
	require.NoError(t, storage.Record(ctx, Metric{Category: "tools", Name: "tool_latency_avg", Value: 130}))

	latest, err := storage.Latest(ctx, "tools")
	require.NoError(t, err)
	assert.InDelta(t, 130.0, latest["tool_latency_avg"], 0.001)
	assert.InDelta(t, 95.0, latest["tool_success_rate"], 0.001)
}

func TestStorage_LatestEmptyCategory(t *testing.T) {
	storage := newTestStorage(t)

	latest, err := storage.Latest(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func TestStorage_SeriesReturnsAllSamples(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	// Same value twice: both samples must survive as distinct points.
	require.NoError(t, storage.Record(ctx, Metric{Category: "session", Name: "acceptance_rate", Value: 80}))
	require.NoError(t, storage.Record(ctx, Metric{Category: "session", Name: "acceptance_rate", Value: 80}))
	require.NoError(t, storage.Record(ctx, Metric{Category: "session", Name: "acceptance_rate", Value: 85}))

	points, err := storage.Series(ctx, "session", "acceptance_rate", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 80.0, points[0].Value, 0.001)
	assert.InDelta(t, 85.0, points[2].Value, 0.001)

	// Points arrive oldest first.
	assert.LessOrEqual(t, points[0].Timestamp, points[1].Timestamp)
	assert.LessOrEqual(t, points[1].Timestamp, points[2].Timestamp)
}

func TestStorage_SeriesSinceFiltersOldSamples(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Record(ctx, Metric{Category: "realtime", Name: "events_per_second", Value: 10}))

	points, err := storage.Series(ctx, "realtime", "events_per_second", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, points, "a future window excludes current samples")
}
