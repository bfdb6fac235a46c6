package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event type constants for the telemetry stream.
const (
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
	EventUserPrompt   = "user_prompt"
	EventToolUse      = "tool_use"
	EventMCPExecution = "mcp_execution"
	EventFileEdit     = "file_edit"
	EventCodeChange   = "code_change"
	EventGitCommit    = "git_commit"
)

// Event is the unit of telemetry. It is created by an external producer,
// enqueued once, written exactly once to durable storage (sequence assigned
// at write time) and never mutated after the write.
type Event struct {
	EventID   string `json:"event_id"`
	SessionID string `json:"session_id"`
	EventType string `json:"event_type"`
	Platform  string `json:"platform"`
	Timestamp string `json:"timestamp"` // ISO-8601

	// Optional indexed fields. Pointers distinguish "absent" from zero;
	// several metric rules only apply when a field is explicitly present.
	ToolName     string   `json:"tool_name,omitempty"`
	Model        string   `json:"model,omitempty"`
	DurationMs   *float64 `json:"duration_ms,omitempty"`
	TokensUsed   *int64   `json:"tokens_used,omitempty"`
	LinesAdded   *int64   `json:"lines_added,omitempty"`
	LinesRemoved *int64   `json:"lines_removed,omitempty"`

	// Opaque nested data. Consumers validate only the keys they need.
	Payload  map[string]interface{} `json:"payload"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ParseTime parses the event timestamp. Both RFC3339 and the common
// second-precision variant without zone are accepted.
func (e *Event) ParseTime() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", e.Timestamp)
}

// EventFromFields reconstructs an Event from the flat field/value record
// stored in a stream entry. The only required field is event_id; a record
// without it can never become valid and must be dead-lettered by the
// caller. payload and metadata are parsed leniently: malformed JSON
// degrades to an empty map instead of failing the whole message.
func EventFromFields(fields map[string]interface{}) (*Event, error) {
	e := &Event{
		EventID:   stringField(fields, "event_id"),
		SessionID: stringField(fields, "session_id"),
		EventType: stringField(fields, "event_type"),
		Platform:  stringField(fields, "platform"),
		Timestamp: stringField(fields, "timestamp"),
		ToolName:  stringField(fields, "tool_name"),
		Model:     stringField(fields, "model"),
	}
	if e.EventID == "" {
		return nil, fmt.Errorf("event record missing event_id")
	}
	if e.SessionID == "" {
		e.SessionID = stringField(fields, "external_session_id")
	}

	e.DurationMs = floatField(fields, "duration_ms")
	e.TokensUsed = intField(fields, "tokens_used")
	e.LinesAdded = intField(fields, "lines_added")
	e.LinesRemoved = intField(fields, "lines_removed")

	e.Payload = jsonField(fields, "payload")
	e.Metadata = jsonField(fields, "metadata")
	return e, nil
}

// Fields flattens the event into the field/value record written to the
// ingest stream. payload and metadata are JSON-encoded sub-fields.
func (e *Event) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"event_id":   e.EventID,
		"session_id": e.SessionID,
		"event_type": e.EventType,
		"platform":   e.Platform,
		"timestamp":  e.Timestamp,
	}
	if e.ToolName != "" {
		fields["tool_name"] = e.ToolName
	}
	if e.Model != "" {
		fields["model"] = e.Model
	}
	if e.DurationMs != nil {
		fields["duration_ms"] = strconv.FormatFloat(*e.DurationMs, 'f', -1, 64)
	}
	if e.TokensUsed != nil {
		fields["tokens_used"] = strconv.FormatInt(*e.TokensUsed, 10)
	}
	if e.LinesAdded != nil {
		fields["lines_added"] = strconv.FormatInt(*e.LinesAdded, 10)
	}
	if e.LinesRemoved != nil {
		fields["lines_removed"] = strconv.FormatInt(*e.LinesRemoved, 10)
	}
	if payload, err := json.Marshal(e.Payload); err == nil {
		fields["payload"] = string(payload)
	}
	if len(e.Metadata) > 0 {
		if metadata, err := json.Marshal(e.Metadata); err == nil {
			fields["metadata"] = string(metadata)
		}
	}
	return fields
}

// PayloadBool reads an explicitly-set boolean from the payload. The second
// return value reports presence; absence must never be treated as either
// true or false by metric rules.
func (e *Event) PayloadBool(key string) (bool, bool) {
	if e.Payload == nil {
		return false, false
	}
	v, ok := e.Payload[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func stringField(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func floatField(fields map[string]interface{}, key string) *float64 {
	s := stringField(fields, key)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func intField(fields map[string]interface{}, key string) *int64 {
	s := stringField(fields, key)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func jsonField(fields map[string]interface{}, key string) map[string]interface{} {
	result := make(map[string]interface{})
	s := stringField(fields, key)
	if s == "" {
		return result
	}
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		// Malformed nested JSON degrades to an empty object.
		return make(map[string]interface{})
	}
	return result
}
