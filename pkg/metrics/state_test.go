package metrics

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *SharedState {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSharedState(client)
}

func TestSharedState_LatencyWindowTrimsToBound(t *testing.T) {
	state := newTestState(t)
	ctx := context.Background()

	for i := 0; i < latencyWindowSize+50; i++ {
		require.NoError(t, state.AddLatency(ctx, float64(i)))
	}

	size, err := state.LatencyWindowSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(latencyWindowSize), size, "window must stay bounded")

	// Only the most recent samples survive, so the minimum moved up.
	pct, err := state.LatencyPercentiles(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pct.P50, float64(50))
}

func TestSharedState_DuplicateLatencyValuesKeepDistinctSlots(t *testing.T) {
	state := newTestState(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, state.AddLatency(ctx, 250))
	}

	size, err := state.LatencyWindowSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), size, "equal values must not collapse into one sample")
}

func TestSharedState_PercentilesEmptyWindow(t *testing.T) {
	state := newTestState(t)

	pct, err := state.LatencyPercentiles(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pct.P50)
	assert.Zero(t, pct.Avg)
}

func TestProperty_PercentilesAreMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("p50 <= p95 <= p99 for any sample set", prop.ForAll(
		func(samples []float64) bool {
			if len(samples) == 0 {
				return true
			}
			state := newTestState(t)
			ctx := context.Background()
			for _, s := range samples {
				if err := state.AddLatency(ctx, s); err != nil {
					return false
				}
			}
			pct, err := state.LatencyPercentiles(ctx)
			if err != nil {
				return false
			}
			return pct.P50 <= pct.P95 && pct.P95 <= pct.P99
		},
		gen.SliceOf(gen.Float64Range(0, 100000)),
	))

	properties.TestingRun(t)
}

func TestSharedState_AcceptanceRate(t *testing.T) {
	state := newTestState(t)
	ctx := context.Background()

	rate, err := state.AcceptanceRate(ctx)
	require.NoError(t, err)
	assert.Zero(t, rate, "empty window reports zero")

	require.NoError(t, state.AddAcceptance(ctx, true))
	require.NoError(t, state.AddAcceptance(ctx, true))
	require.NoError(t, state.AddAcceptance(ctx, false))
	require.NoError(t, state.AddAcceptance(ctx, true))

	rate, err = state.AcceptanceRate(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, rate, 0.001)

	size, err := state.AcceptanceWindowSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
}

func TestSharedState_ToolOutcomes(t *testing.T) {
	state := newTestState(t)
	ctx := context.Background()

	require.NoError(t, state.IncrementToolCount(ctx, "grep", true))
	require.NoError(t, state.IncrementToolCount(ctx, "grep", true))
	require.NoError(t, state.IncrementToolCount(ctx, "grep", false))
	require.NoError(t, state.IncrementToolCount(ctx, "edit", true))

	rate, err := state.ToolSuccessRate(ctx, "grep")
	require.NoError(t, err)
	assert.InDelta(t, 66.666, rate, 0.01)

	overall, err := state.ToolSuccessRate(ctx, "")
	require.NoError(t, err)
	assert.InDelta(t, 75.0, overall, 0.001)

	errRate, err := state.ToolErrorRate(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, errRate, 0.001)

	freq, err := state.ToolFrequency(ctx, "grep")
	require.NoError(t, err)
	assert.InDelta(t, 75.0, freq, 0.001)
}

func TestSharedState_ToolRatesWithoutData(t *testing.T) {
	state := newTestState(t)
	ctx := context.Background()

	rate, err := state.ToolSuccessRate(ctx, "unknown")
	require.NoError(t, err)
	assert.Zero(t, rate)

	freq, err := state.ToolFrequency(ctx, "unknown")
	require.NoError(t, err)
	assert.Zero(t, freq)
}

func TestSharedState_SessionLifecycle(t *testing.T) {
	state := newTestState(t)
	ctx := context.Background()

	_, found, err := state.SessionStart(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, state.SetSessionStart(ctx, "s1", "2026-08-26T10:00:00Z"))
	require.NoError(t, state.IncrementSessionTools(ctx, "s1"))
	require.NoError(t, state.IncrementSessionTools(ctx, "s1"))
	require.NoError(t, state.IncrementSessionPrompts(ctx, "s1"))

	start, found, err := state.SessionStart(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2026-08-26T10:00:00Z", start)

	tools, err := state.SessionToolCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tools)

	prompts, err := state.SessionPromptCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), prompts)

	active, err := state.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)

	require.NoError(t, state.ClearSession(ctx, "s1"))

	_, found, err = state.SessionStart(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, found, "cleared session leaves no state behind")

	tools, err = state.SessionToolCount(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, tools)

	active, err = state.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, active)
}

func TestSharedState_EventsPerSecondNeedsTwoSamples(t *testing.T) {
	state := newTestState(t)
	ctx := context.Background()

	eps, err := state.EventsPerSecond(ctx)
	require.NoError(t, err)
	assert.Zero(t, eps)

	require.NoError(t, state.RecordEventTimestamp(ctx))
	eps, err = state.EventsPerSecond(ctx)
	require.NoError(t, err)
	assert.Zero(t, eps, "a single sample has no rate")
}
