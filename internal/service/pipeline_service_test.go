package service

import (
	"context"
	"testing"
	"time"

	"devtel/pkg/constants"
	"devtel/pkg/fastpath"
	"devtel/pkg/slowpath"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipelineService(t *testing.T) (*PipelineService, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	publisher := fastpath.NewCDCPublisher(client, constants.CDCStream, 1000)
	writer := fastpath.NewDurableWriter(nil)
	consumer := fastpath.NewConsumer(client, writer, publisher, fastpath.ConsumerOptions{
		Stream:       constants.EventsStream,
		Group:        constants.FastPathGroup,
		ConsumerName: "test-consumer",
		DLQStream:    constants.DLQStream,
		DLQMaxLen:    1000,
		BatchSize:    10,
		BatchTimeout: 100 * time.Millisecond,
		BlockTimeout: 50 * time.Millisecond,
		ClaimIdle:    time.Minute,
	})
	pool := slowpath.NewPool(client, nil, slowpath.PoolOptions{
		Stream:          constants.CDCStream,
		Group:           constants.SlowPathGroup,
		DLQStream:       constants.DLQStream,
		DLQMaxLen:       1000,
		MetricsWorkers:  2,
		BlockTimeout:    50 * time.Millisecond,
		ClaimIdle:       time.Minute,
		MaxRetries:      3,
		MonitorInterval: time.Minute,
		DepthWarn:       10000,
		DepthCritical:   50000,
		PendingWarn:     1000,
	})

	return NewPipelineService(client, consumer, pool, nil), client
}

func TestPipelineServiceStats(t *testing.T) {
	svc, client := newTestPipelineService(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := client.XAdd(ctx, &redis.XAddArgs{
			Stream: constants.EventsStream,
			Values: map[string]interface{}{"event_type": "tool_use"},
		}).Result()
		require.NoError(t, err)
	}
	_, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: constants.DLQStream,
		Values: map[string]interface{}{"event_type": "tool_use"},
	}).Result()
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.IngestDepth)
	assert.Equal(t, int64(0), stats.IngestPending)
	assert.Equal(t, int64(1), stats.DLQDepth)
	assert.Equal(t, "stopped", stats.FastPathState)
	assert.False(t, stats.SlowPath.Running)
	assert.Equal(t, 0, stats.SlowPath.Workers)
}

func TestPipelineServiceListDLQ(t *testing.T) {
	svc, client := newTestPipelineService(t)
	ctx := context.Background()

	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: constants.DLQStream,
		Values: map[string]interface{}{
			"event_id":                          "evt-1",
			"event_type":                        "tool_use",
			"session_id":                        "sess-1",
			constants.DLQFieldError:             "handler failed",
			constants.DLQFieldFailedAt:          "2026-08-26T10:00:00Z",
			constants.DLQFieldOriginalMessageID: "1-0",
			constants.DLQFieldDeliveryCount:     "3",
		},
	}).Result()
	require.NoError(t, err)

	entries, err := svc.ListDLQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, id, entry.MessageID)
	assert.Equal(t, "evt-1", entry.EventID)
	assert.Equal(t, "tool_use", entry.EventType)
	assert.Equal(t, "handler failed", entry.Error)
	assert.Equal(t, "2026-08-26T10:00:00Z", entry.FailedAt)
	assert.Equal(t, "1-0", entry.OriginalMessageID)
	assert.Equal(t, "3", entry.DeliveryCount)

	// Diagnostic metadata stays out of the replayable field set, originals
	// stay in.
	assert.Equal(t, "sess-1", entry.Fields["session_id"])
	assert.Equal(t, "evt-1", entry.Fields["event_id"])
	assert.NotContains(t, entry.Fields, constants.DLQFieldError)
	assert.NotContains(t, entry.Fields, constants.DLQFieldFailedAt)
	assert.NotContains(t, entry.Fields, constants.DLQFieldOriginalMessageID)
	assert.NotContains(t, entry.Fields, constants.DLQFieldDeliveryCount)
}

func TestPipelineServiceListDLQEmpty(t *testing.T) {
	svc, _ := newTestPipelineService(t)

	entries, err := svc.ListDLQ(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPipelineServiceReplayUnknownEntry(t *testing.T) {
	svc, _ := newTestPipelineService(t)

	err := svc.Replay(context.Background(), "99-0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
