package metrics

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis key layout for the shared state. Everything lives in Redis so that
// N worker processes see one consistent aggregate; per-process memory is
// never authoritative.
const (
	statePrefix = "metrics:state:"

	latencyWindowKey    = statePrefix + "latency_window"
	acceptanceWindowKey = statePrefix + "acceptance_window"
	toolCountsKey       = statePrefix + "tool_counts"
	toolSuccessKey      = statePrefix + "tool_success"
	toolFailuresKey     = statePrefix + "tool_failures"
	sessionStartsKey    = statePrefix + "session_starts"
	sessionToolsKey     = statePrefix + "session_tools"
	sessionPromptsKey   = statePrefix + "session_prompts"
	throughputKey       = statePrefix + "events_per_second"
)

const (
	latencyWindowSize    = 100
	acceptanceWindowSize = 100
	throughputWindowSec  = 60

	windowTTL  = time.Hour
	counterTTL = 24 * time.Hour
)

// Percentiles summarizes the latency window.
type Percentiles struct {
	P50 float64
	P95 float64
	P99 float64
	Avg float64
}

// SharedState is the cross-worker metrics state. Correctness depends on
// the atomicity of Redis increment and sorted-set primitives, not on local
// locking.
type SharedState struct {
	client *redis.Client
}

// NewSharedState creates the shared state accessor.
func NewSharedState(client *redis.Client) *SharedState {
	return &SharedState{client: client}
}

// windowMember tags a sample with its insertion time so duplicate values
// still occupy distinct window slots.
func windowMember(value float64) string {
	return fmt.Sprintf("%d:%s", time.Now().UnixNano(), strconv.FormatFloat(value, 'f', -1, 64))
}

func memberValue(member string) (float64, bool) {
	parts := strings.SplitN(member, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// appendWindow adds one sample to a bounded sliding window, evicting the
// oldest entries beyond the size bound.
func (s *SharedState) appendWindow(ctx context.Context, key string, value float64, size int64) error {
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, &redis.Z{Score: now, Member: windowMember(value)})
	pipe.ZRemRangeByRank(ctx, key, 0, -(size + 1))
	pipe.Expire(ctx, key, windowTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SharedState) windowValues(ctx context.Context, key string) ([]float64, error) {
	members, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0, len(members))
	for _, m := range members {
		if v, ok := memberValue(m); ok {
			values = append(values, v)
		}
	}
	return values, nil
}

// AddLatency records one latency sample in the sliding window.
func (s *SharedState) AddLatency(ctx context.Context, durationMs float64) error {
	return s.appendWindow(ctx, latencyWindowKey, durationMs, latencyWindowSize)
}

// LatencyWindowSize returns the current number of latency samples.
func (s *SharedState) LatencyWindowSize(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, latencyWindowKey).Result()
}

// LatencyPercentiles computes p50/p95/p99/avg over the window by sorting
// and indexing at floor(count*percentile), clamped to count-1.
func (s *SharedState) LatencyPercentiles(ctx context.Context) (Percentiles, error) {
	values, err := s.windowValues(ctx, latencyWindowKey)
	if err != nil {
		return Percentiles{}, err
	}
	if len(values) == 0 {
		return Percentiles{}, nil
	}

	sort.Float64s(values)
	count := len(values)

	var sum float64
	for _, v := range values {
		sum += v
	}

	return Percentiles{
		P50: values[percentileIndex(count, 0.50)],
		P95: values[percentileIndex(count, 0.95)],
		P99: values[percentileIndex(count, 0.99)],
		Avg: sum / float64(count),
	}, nil
}

func percentileIndex(count int, percentile float64) int {
	idx := int(float64(count) * percentile)
	if idx > count-1 {
		return count - 1
	}
	return idx
}

// AddAcceptance records one explicit accept/reject decision. Callers must
// only invoke this when the producing event explicitly stated the decision;
// absence of the field is neither accept nor reject.
func (s *SharedState) AddAcceptance(ctx context.Context, accepted bool) error {
	value := 0.0
	if accepted {
		value = 1.0
	}
	return s.appendWindow(ctx, acceptanceWindowKey, value, acceptanceWindowSize)
}

// AcceptanceRate returns the mean of the acceptance window as a percentage,
// or zero for an empty window.
func (s *SharedState) AcceptanceRate(ctx context.Context) (float64, error) {
	values, err := s.windowValues(ctx, acceptanceWindowKey)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)) * 100, nil
}

// AcceptanceWindowSize returns the current number of recorded decisions.
func (s *SharedState) AcceptanceWindowSize(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, acceptanceWindowKey).Result()
}

// IncrementToolCount updates per-tool running counters for one explicitly
// reported execution outcome.
func (s *SharedState) IncrementToolCount(ctx context.Context, toolName string, success bool) error {
	outcomeKey := toolFailuresKey
	if success {
		outcomeKey = toolSuccessKey
	}

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, toolCountsKey, toolName, 1)
	pipe.HIncrBy(ctx, outcomeKey, toolName, 1)
	pipe.Expire(ctx, toolCountsKey, counterTTL)
	pipe.Expire(ctx, toolSuccessKey, counterTTL)
	pipe.Expire(ctx, toolFailuresKey, counterTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// ToolSuccessRate returns success/(success+failure)*100 for one tool, or
// the overall rate when toolName is empty. Zero when nothing was recorded.
func (s *SharedState) ToolSuccessRate(ctx context.Context, toolName string) (float64, error) {
	success, failures, err := s.toolOutcomes(ctx, toolName)
	if err != nil {
		return 0, err
	}
	total := success + failures
	if total == 0 {
		return 0, nil
	}
	return float64(success) / float64(total) * 100, nil
}

// ToolErrorRate returns failure/(success+failure)*100 overall.
func (s *SharedState) ToolErrorRate(ctx context.Context) (float64, error) {
	success, failures, err := s.toolOutcomes(ctx, "")
	if err != nil {
		return 0, err
	}
	total := success + failures
	if total == 0 {
		return 0, nil
	}
	return float64(failures) / float64(total) * 100, nil
}

func (s *SharedState) toolOutcomes(ctx context.Context, toolName string) (int64, int64, error) {
	if toolName != "" {
		success, err := hgetInt(ctx, s.client, toolSuccessKey, toolName)
		if err != nil {
			return 0, 0, err
		}
		failures, err := hgetInt(ctx, s.client, toolFailuresKey, toolName)
		if err != nil {
			return 0, 0, err
		}
		return success, failures, nil
	}

	success, err := hsumInt(ctx, s.client, toolSuccessKey)
	if err != nil {
		return 0, 0, err
	}
	failures, err := hsumInt(ctx, s.client, toolFailuresKey)
	if err != nil {
		return 0, 0, err
	}
	return success, failures, nil
}

// ToolFrequency returns one tool's share of all recorded executions.
func (s *SharedState) ToolFrequency(ctx context.Context, toolName string) (float64, error) {
	count, err := hgetInt(ctx, s.client, toolCountsKey, toolName)
	if err != nil {
		return 0, err
	}
	total, err := hsumInt(ctx, s.client, toolCountsKey)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return float64(count) / float64(total) * 100, nil
}

// SetSessionStart records a session's start timestamp.
func (s *SharedState) SetSessionStart(ctx context.Context, sessionID, timestamp string) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, sessionStartsKey, sessionID, timestamp)
	pipe.Expire(ctx, sessionStartsKey, counterTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// SessionStart returns a session's start timestamp; the bool reports
// whether session state exists.
func (s *SharedState) SessionStart(ctx context.Context, sessionID string) (string, bool, error) {
	value, err := s.client.HGet(ctx, sessionStartsKey, sessionID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// IncrementSessionTools bumps a session's tool-use counter.
func (s *SharedState) IncrementSessionTools(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, sessionToolsKey, sessionID, 1)
	pipe.Expire(ctx, sessionToolsKey, counterTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// IncrementSessionPrompts bumps a session's prompt counter.
func (s *SharedState) IncrementSessionPrompts(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, sessionPromptsKey, sessionID, 1)
	pipe.Expire(ctx, sessionPromptsKey, counterTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// SessionToolCount returns a session's tool-use count.
func (s *SharedState) SessionToolCount(ctx context.Context, sessionID string) (int64, error) {
	return hgetInt(ctx, s.client, sessionToolsKey, sessionID)
}

// SessionPromptCount returns a session's prompt count.
func (s *SharedState) SessionPromptCount(ctx context.Context, sessionID string) (int64, error) {
	return hgetInt(ctx, s.client, sessionPromptsKey, sessionID)
}

// ClearSession deletes all per-session state. Called when the session's end
// event is processed so session memory stays bounded.
func (s *SharedState) ClearSession(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.HDel(ctx, sessionStartsKey, sessionID)
	pipe.HDel(ctx, sessionToolsKey, sessionID)
	pipe.HDel(ctx, sessionPromptsKey, sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

// RecordEventTimestamp adds the current time to the throughput window and
// trims entries older than the window.
func (s *SharedState) RecordEventTimestamp(ctx context.Context) error {
	now := time.Now()
	score := float64(now.UnixNano()) / float64(time.Second)
	cutoff := score - throughputWindowSec

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, throughputKey, &redis.Z{Score: score, Member: strconv.FormatInt(now.UnixNano(), 10)})
	pipe.ZRemRangeByScore(ctx, throughputKey, "-inf", strconv.FormatFloat(cutoff, 'f', -1, 64))
	pipe.Expire(ctx, throughputKey, 5*time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

// EventsPerSecond returns count/(newest-oldest) over the throughput window
// when at least two samples exist, else zero.
func (s *SharedState) EventsPerSecond(ctx context.Context) (float64, error) {
	entries, err := s.client.ZRangeWithScores(ctx, throughputKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	if len(entries) < 2 {
		return 0, nil
	}
	span := entries[len(entries)-1].Score - entries[0].Score
	if span <= 0 {
		return 0, nil
	}
	return float64(len(entries)) / span, nil
}

// ActiveSessions returns the number of sessions with tracked state.
func (s *SharedState) ActiveSessions(ctx context.Context) (int64, error) {
	return s.client.HLen(ctx, sessionStartsKey).Result()
}

func hgetInt(ctx context.Context, client *redis.Client, key, field string) (int64, error) {
	value, err := client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter %s/%s: %w", key, field, err)
	}
	return n, nil
}

func hsumInt(ctx context.Context, client *redis.Client, key string) (int64, error) {
	values, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, v := range values {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		total += n
	}
	return total, nil
}
