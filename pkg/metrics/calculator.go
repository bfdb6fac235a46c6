package metrics

import (
	"context"
	"fmt"
	"strings"

	"devtel/internal/model"
	"devtel/pkg/logger"
)

// Minimum latency samples before percentile metrics are emitted; a
// near-empty window produces noise, not percentiles.
const minPercentileSamples = 10

// Calculator derives metric tuples from full telemetry events. All window
// state lives in the shared store, so any worker can process any event and
// the aggregates stay consistent.
type Calculator struct {
	state *SharedState
}

// NewCalculator creates a calculator over the shared state.
func NewCalculator(state *SharedState) *Calculator {
	return &Calculator{state: state}
}

// CalculateForEvent updates shared state for one event and returns the
// metric tuples to record. Rules that depend on optional fields only fire
// when the field is explicitly present: a missing accepted flag is neither
// accept nor reject, and a missing success flag increments no counter.
func (c *Calculator) CalculateForEvent(ctx context.Context, e *model.Event) ([]Metric, error) {
	var metrics []Metric

	switch e.EventType {
	case model.EventToolUse, model.EventMCPExecution:
		latency, err := c.latencyMetrics(ctx, e)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, latency...)

		usage, err := c.toolUsageMetrics(ctx, e)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, usage...)

	case model.EventFileEdit, model.EventCodeChange:
		acceptance, err := c.acceptanceMetrics(ctx, e)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, acceptance...)

	case model.EventUserPrompt:
		interaction, err := c.interactionMetrics(ctx, e)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, interaction...)

	case model.EventSessionStart:
		if e.SessionID != "" {
			if err := c.state.SetSessionStart(ctx, e.SessionID, e.Timestamp); err != nil {
				return nil, err
			}
		}

	case model.EventSessionEnd:
		session, err := c.sessionMetrics(ctx, e)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, session...)
	}

	throughput, err := c.throughputMetrics(ctx)
	if err != nil {
		return nil, err
	}
	metrics = append(metrics, throughput...)

	return metrics, nil
}

func (c *Calculator) latencyMetrics(ctx context.Context, e *model.Event) ([]Metric, error) {
	if e.DurationMs == nil || *e.DurationMs < 0 {
		return nil, nil
	}

	if err := c.state.AddLatency(ctx, *e.DurationMs); err != nil {
		return nil, err
	}

	size, err := c.state.LatencyWindowSize(ctx)
	if err != nil {
		return nil, err
	}

	percentiles, err := c.state.LatencyPercentiles(ctx)
	if err != nil {
		return nil, err
	}

	metrics := []Metric{
		{Category: "tools", Name: "tool_latency_avg", Value: percentiles.Avg},
	}
	if size >= minPercentileSamples {
		metrics = append(metrics,
			Metric{Category: "tools", Name: "tool_latency_p50", Value: percentiles.P50},
			Metric{Category: "tools", Name: "tool_latency_p95", Value: percentiles.P95},
			Metric{Category: "tools", Name: "tool_latency_p99", Value: percentiles.P99},
		)
	}
	return metrics, nil
}

func (c *Calculator) toolUsageMetrics(ctx context.Context, e *model.Event) ([]Metric, error) {
	var metrics []Metric

	if e.SessionID != "" {
		if err := c.state.IncrementSessionTools(ctx, e.SessionID); err != nil {
			return nil, err
		}
	}

	// Counters move only on explicitly reported outcomes.
	success, reported := e.PayloadBool("success")
	if !reported {
		return metrics, nil
	}

	toolName := e.ToolName
	if toolName == "" {
		toolName = "unknown"
	}

	if err := c.state.IncrementToolCount(ctx, toolName, success); err != nil {
		return nil, err
	}

	toolRate, err := c.state.ToolSuccessRate(ctx, toolName)
	if err != nil {
		return nil, err
	}
	metrics = append(metrics, Metric{
		Category: "tools",
		Name:     "tool_success_rate_" + strings.ToLower(toolName),
		Value:    toolRate,
	})

	overallRate, err := c.state.ToolSuccessRate(ctx, "")
	if err != nil {
		return nil, err
	}
	metrics = append(metrics, Metric{Category: "tools", Name: "tool_success_rate", Value: overallRate})

	frequency, err := c.state.ToolFrequency(ctx, toolName)
	if err != nil {
		return nil, err
	}
	metrics = append(metrics, Metric{
		Category: "tools",
		Name:     "tool_frequency_" + strings.ToLower(toolName),
		Value:    frequency,
	})

	return metrics, nil
}

func (c *Calculator) acceptanceMetrics(ctx context.Context, e *model.Event) ([]Metric, error) {
	accepted, reported := e.PayloadBool("accepted")
	if !reported {
		// Absence of the flag must not move the acceptance window.
		return nil, nil
	}

	if err := c.state.AddAcceptance(ctx, accepted); err != nil {
		return nil, err
	}

	rate, err := c.state.AcceptanceRate(ctx)
	if err != nil {
		return nil, err
	}

	return []Metric{
		{Category: "session", Name: "acceptance_rate", Value: rate},
		{Category: "session", Name: "rejection_rate", Value: 100 - rate},
	}, nil
}

func (c *Calculator) interactionMetrics(ctx context.Context, e *model.Event) ([]Metric, error) {
	if e.SessionID == "" {
		return nil, nil
	}

	if err := c.state.IncrementSessionPrompts(ctx, e.SessionID); err != nil {
		return nil, err
	}

	count, err := c.state.SessionPromptCount(ctx, e.SessionID)
	if err != nil {
		return nil, err
	}

	metrics := []Metric{
		{Category: "session", Name: "prompts_per_session", Value: float64(count)},
	}

	if length, ok := e.Payload["prompt_length"].(float64); ok && length > 0 {
		metrics = append(metrics, Metric{Category: "session", Name: "prompt_length_avg", Value: length})
	}
	return metrics, nil
}

// sessionMetrics computes end-of-session aggregates, then deletes the
// session's shared state so memory stays bounded.
func (c *Calculator) sessionMetrics(ctx context.Context, e *model.Event) ([]Metric, error) {
	if e.SessionID == "" {
		return nil, nil
	}

	start, ok, err := c.state.SessionStart(ctx, e.SessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Warnf("session_end for untracked session %s", e.SessionID)
		return nil, nil
	}

	var metrics []Metric

	startEvent := model.Event{Timestamp: start}
	endEvent := model.Event{Timestamp: e.Timestamp}
	startTime, startErr := startEvent.ParseTime()
	endTime, endErr := endEvent.ParseTime()
	if startErr == nil && endErr == nil {
		duration := endTime.Sub(startTime).Seconds()
		metrics = append(metrics, Metric{Category: "session", Name: "session_duration", Value: duration})

		toolCount, err := c.state.SessionToolCount(ctx, e.SessionID)
		if err != nil {
			return nil, err
		}
		if duration > 0 {
			metrics = append(metrics, Metric{
				Category: "session",
				Name:     "tools_per_minute",
				Value:    float64(toolCount) / duration * 60,
			})
		}

		promptCount, err := c.state.SessionPromptCount(ctx, e.SessionID)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, Metric{
			Category: "session",
			Name:     "prompts_per_session",
			Value:    float64(promptCount),
		})
	} else {
		logger.Warnf("unparseable session timestamps for %s: %v %v", e.SessionID, startErr, endErr)
	}

	if err := c.state.ClearSession(ctx, e.SessionID); err != nil {
		return nil, fmt.Errorf("failed to clear session %s: %w", e.SessionID, err)
	}
	return metrics, nil
}

func (c *Calculator) throughputMetrics(ctx context.Context) ([]Metric, error) {
	if err := c.state.RecordEventTimestamp(ctx); err != nil {
		return nil, err
	}

	eps, err := c.state.EventsPerSecond(ctx)
	if err != nil {
		return nil, err
	}
	if eps == 0 {
		return nil, nil
	}
	return []Metric{{Category: "realtime", Name: "events_per_second", Value: eps}}, nil
}

// ProductivityScore computes the composite score from current shared state:
// base 50, up to +25 scaled by tool success rate, up to -15 scaled by tool
// error rate, up to +10 scaled by acceptance rate, clamped to [0,100].
// Called periodically by a background job rather than per event.
func (c *Calculator) ProductivityScore(ctx context.Context) (float64, error) {
	score := 50.0

	successRate, err := c.state.ToolSuccessRate(ctx, "")
	if err != nil {
		return 0, err
	}
	score += successRate / 100 * 25

	errorRate, err := c.state.ToolErrorRate(ctx)
	if err != nil {
		return 0, err
	}
	score -= errorRate / 100 * 15

	acceptanceRate, err := c.state.AcceptanceRate(ctx)
	if err != nil {
		return 0, err
	}
	score += acceptanceRate / 100 * 10

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}
