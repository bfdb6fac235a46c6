package slowpath

import (
	"context"
	"testing"
	"time"

	"devtel/pkg/constants"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, handler Handler, workers int) (*Pool, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	pool := NewPool(client, handler, PoolOptions{
		Stream:          constants.CDCStream,
		Group:           constants.SlowPathGroup,
		DLQStream:       constants.DLQStream,
		DLQMaxLen:       1000,
		MetricsWorkers:  workers,
		BlockTimeout:    50 * time.Millisecond,
		ClaimIdle:       time.Minute,
		MaxRetries:      3,
		MonitorInterval: 50 * time.Millisecond,
		DepthWarn:       10000,
		DepthCritical:   50000,
		PendingWarn:     1000,
	})
	return pool, client
}

func TestPool_StartCreatesGroupAndWorkers(t *testing.T) {
	handler := &recordingHandler{}
	pool, client := newTestPool(t, handler, 2)
	ctx := context.Background()

	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	groups, err := client.XInfoGroups(ctx, constants.CDCStream).Result()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, constants.SlowPathGroup, groups[0].Name)

	stats := pool.Stats(ctx)
	assert.True(t, stats.Running)
	assert.Equal(t, 2, stats.Workers)
}

func TestPool_CompetingWorkersShareTheStream(t *testing.T) {
	handler := &recordingHandler{}
	pool, client := newTestPool(t, handler, 3)
	ctx := context.Background()

	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	for i := int64(1); i <= 10; i++ {
		addPointer(t, client, i, constants.PriorityMedium)
	}

	// Each message is processed exactly once across the group.
	require.Eventually(t, func() bool {
		return pool.Stats(ctx).Processed == 10
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 10, handler.seen())
}

func TestPool_StartStopIdempotent(t *testing.T) {
	handler := &recordingHandler{}
	pool, _ := newTestPool(t, handler, 1)
	ctx := context.Background()

	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Start(ctx), "second start is a no-op")

	pool.Stop()
	pool.Stop() // no-op
	assert.False(t, pool.Stats(ctx).Running)

	// The pool restarts cleanly after a stop.
	require.NoError(t, pool.Start(ctx))
	assert.True(t, pool.Stats(ctx).Running)
	pool.Stop()
}

func TestPool_QueueStatsReflectBacklog(t *testing.T) {
	handler := &recordingHandler{}
	pool, client := newTestPool(t, handler, 1)
	ctx := context.Background()

	// Not started: depth counts unconsumed entries.
	for i := int64(1); i <= 5; i++ {
		addPointer(t, client, i, constants.PriorityMedium)
	}

	require.NoError(t, pool.ensureGroup(ctx))
	stats := pool.Stats(ctx)
	assert.Equal(t, int64(5), stats.Queue.Depth)
	assert.Zero(t, stats.Queue.Pending)
}
