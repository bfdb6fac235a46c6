package fastpath

import (
	"testing"

	"devtel/internal/model"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressDecompress_RoundTrip(t *testing.T) {
	duration := 123.5
	tokens := int64(4200)
	event := &model.Event{
		EventID:    "evt-1",
		SessionID:  "session-1",
		EventType:  model.EventToolUse,
		Platform:   "vscode",
		Timestamp:  "2026-08-26T10:00:00Z",
		ToolName:   "grep",
		Model:      "large",
		DurationMs: &duration,
		TokensUsed: &tokens,
		Payload: map[string]interface{}{
			"success": true,
			"query":   "func main",
			"nested":  map[string]interface{}{"depth": float64(2)},
		},
		Metadata: map[string]interface{}{"version": "1.2.3"},
	}

	compressed, err := CompressEvent(event)
	require.NoError(t, err)
	require.NotEmpty(t, compressed)

	restored, err := DecompressEvent(compressed)
	require.NoError(t, err)
	assert.Equal(t, event, restored, "decompression must reproduce the exact event")
}

func TestCompressEvent_ReducesSize(t *testing.T) {
	// Telemetry payloads are repetitive JSON; compression must pay for
	// itself on realistic sizes.
	payload := make(map[string]interface{})
	for i := 0; i < 100; i++ {
		payload[string(rune('a'+i%26))+"_field"] = "the same repetitive tool output line over and over"
	}
	event := &model.Event{
		EventID:   "evt-big",
		SessionID: "session-1",
		EventType: model.EventToolUse,
		Timestamp: "2026-08-26T10:00:00Z",
		Payload:   payload,
	}

	compressed, err := CompressEvent(event)
	require.NoError(t, err)

	raw, err := DecompressEvent(compressed)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, raw.EventID)
	assert.Less(t, len(compressed), 1000, "repetitive payload should compress well")
}

func TestDecompressEvent_RejectsCorruptData(t *testing.T) {
	_, err := DecompressEvent([]byte("not zlib data"))
	assert.Error(t, err)
}

func TestProperty_CompressRoundTripFidelity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("round trip preserves identity fields", prop.ForAll(
		func(eventID, sessionID, tool string, durationMs float64) bool {
			if eventID == "" {
				return true
			}
			event := &model.Event{
				EventID:    eventID,
				SessionID:  sessionID,
				EventType:  model.EventToolUse,
				Timestamp:  "2026-08-26T10:00:00Z",
				ToolName:   tool,
				DurationMs: &durationMs,
				Payload:    map[string]interface{}{"tool": tool},
			}

			compressed, err := CompressEvent(event)
			if err != nil {
				return false
			}
			restored, err := DecompressEvent(compressed)
			if err != nil {
				return false
			}
			return restored.EventID == eventID &&
				restored.SessionID == sessionID &&
				restored.ToolName == tool &&
				restored.DurationMs != nil &&
				*restored.DurationMs == durationMs
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Float64Range(0, 1e9),
	))

	properties.TestingRun(t)
}
