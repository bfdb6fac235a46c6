package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventFromFields_RequiresEventID(t *testing.T) {
	_, err := EventFromFields(map[string]interface{}{
		"session_id": "s1",
		"event_type": EventToolUse,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event_id")
}

func TestEventFromFields_FullRecord(t *testing.T) {
	event, err := EventFromFields(map[string]interface{}{
		"event_id":    "evt-1",
		"session_id":  "s1",
		"event_type":  EventToolUse,
		"platform":    "vscode",
		"timestamp":   "2026-08-26T10:00:00Z",
		"tool_name":   "grep",
		"duration_ms": "120.5",
		"tokens_used": "300",
		"payload":     `{"success":true,"query":"main"}`,
	})
	require.NoError(t, err)

	assert.Equal(t, "evt-1", event.EventID)
	assert.Equal(t, "grep", event.ToolName)
	require.NotNil(t, event.DurationMs)
	assert.Equal(t, 120.5, *event.DurationMs)
	require.NotNil(t, event.TokensUsed)
	assert.Equal(t, int64(300), *event.TokensUsed)
	assert.Equal(t, true, event.Payload["success"])
}

func TestEventFromFields_ExternalSessionIDFallback(t *testing.T) {
	event, err := EventFromFields(map[string]interface{}{
		"event_id":            "evt-1",
		"external_session_id": "ext-9",
		"event_type":          EventUserPrompt,
	})
	require.NoError(t, err)
	assert.Equal(t, "ext-9", event.SessionID)
}

func TestEventFromFields_LenientOptionalFields(t *testing.T) {
	// Bad numbers and bad nested JSON degrade instead of failing.
	event, err := EventFromFields(map[string]interface{}{
		"event_id":    "evt-1",
		"duration_ms": "not-a-number",
		"payload":     "{broken json",
		"metadata":    "",
	})
	require.NoError(t, err)
	assert.Nil(t, event.DurationMs)
	assert.NotNil(t, event.Payload)
	assert.Empty(t, event.Payload)
	assert.Empty(t, event.Metadata)
}

func TestEventFields_RoundTrip(t *testing.T) {
	duration := 99.5
	lines := int64(12)
	original := &Event{
		EventID:    "evt-1",
		SessionID:  "s1",
		EventType:  EventFileEdit,
		Platform:   "jetbrains",
		Timestamp:  "2026-08-26T10:00:00Z",
		ToolName:   "edit",
		DurationMs: &duration,
		LinesAdded: &lines,
		Payload:    map[string]interface{}{"accepted": true},
		Metadata:   map[string]interface{}{"plugin": "2.0"},
	}

	restored, err := EventFromFields(original.Fields())
	require.NoError(t, err)
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, original.SessionID, restored.SessionID)
	assert.Equal(t, original.Timestamp, restored.Timestamp)
	require.NotNil(t, restored.DurationMs)
	assert.Equal(t, duration, *restored.DurationMs)
	require.NotNil(t, restored.LinesAdded)
	assert.Equal(t, lines, *restored.LinesAdded)
	assert.Equal(t, true, restored.Payload["accepted"])
	assert.Equal(t, "2.0", restored.Metadata["plugin"])
}

func TestEventFields_OmitsAbsentOptionals(t *testing.T) {
	event := &Event{
		EventID:   "evt-1",
		SessionID: "s1",
		EventType: EventUserPrompt,
		Timestamp: "2026-08-26T10:00:00Z",
	}
	fields := event.Fields()

	assert.NotContains(t, fields, "duration_ms")
	assert.NotContains(t, fields, "tool_name")
	assert.NotContains(t, fields, "metadata")
}

func TestPayloadBool_PresenceAware(t *testing.T) {
	event := &Event{
		Payload: map[string]interface{}{
			"success": false,
			"count":   float64(3),
		},
	}

	v, ok := event.PayloadBool("success")
	assert.True(t, ok, "explicit false is still present")
	assert.False(t, v)

	_, ok = event.PayloadBool("accepted")
	assert.False(t, ok, "absent key reports not present")

	_, ok = event.PayloadBool("count")
	assert.False(t, ok, "non-boolean value reports not present")

	var nilPayload Event
	_, ok = nilPayload.PayloadBool("success")
	assert.False(t, ok)
}

func TestParseTime_AcceptedFormats(t *testing.T) {
	withZone := &Event{Timestamp: "2026-08-26T10:00:00Z"}
	parsed, err := withZone.ParseTime()
	require.NoError(t, err)
	assert.Equal(t, 2026, parsed.Year())

	noZone := &Event{Timestamp: "2026-08-26T10:00:00"}
	parsed, err = noZone.ParseTime()
	require.NoError(t, err)
	assert.Equal(t, time.August, parsed.Month())

	bad := &Event{Timestamp: "yesterday"}
	_, err = bad.ParseTime()
	assert.Error(t, err)
}
