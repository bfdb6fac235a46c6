package model

import (
	"strconv"

	"devtel/pkg/constants"
)

// CDCPointer is the lightweight change-notification record emitted after a
// successful durable write. It references the stored event by sequence
// number without duplicating its payload, and is only ever published after
// that sequence is durably committed.
type CDCPointer struct {
	Sequence  int64
	EventID   string
	SessionID string
	EventType string
	Platform  string
	Timestamp string
	Priority  int
}

// NewCDCPointer builds a pointer for a committed event.
func NewCDCPointer(sequence int64, e *Event) *CDCPointer {
	return &CDCPointer{
		Sequence:  sequence,
		EventID:   e.EventID,
		SessionID: e.SessionID,
		EventType: e.EventType,
		Platform:  e.Platform,
		Timestamp: e.Timestamp,
		Priority:  constants.PriorityForEventType(e.EventType),
	}
}

// Fields flattens the pointer for XADD.
func (p *CDCPointer) Fields() map[string]interface{} {
	return map[string]interface{}{
		"sequence":   strconv.FormatInt(p.Sequence, 10),
		"event_id":   p.EventID,
		"session_id": p.SessionID,
		"event_type": p.EventType,
		"platform":   p.Platform,
		"timestamp":  p.Timestamp,
		"priority":   strconv.Itoa(p.Priority),
	}
}

// CDCPointerFromFields decodes a stream entry back into a pointer.
// Missing numeric fields decode to zero values; callers treat a zero
// sequence as undeliverable.
func CDCPointerFromFields(fields map[string]interface{}) *CDCPointer {
	sequence, _ := strconv.ParseInt(stringField(fields, "sequence"), 10, 64)
	priority, err := strconv.Atoi(stringField(fields, "priority"))
	if err != nil {
		priority = constants.PriorityDefault
	}
	return &CDCPointer{
		Sequence:  sequence,
		EventID:   stringField(fields, "event_id"),
		SessionID: stringField(fields, "session_id"),
		EventType: stringField(fields, "event_type"),
		Platform:  stringField(fields, "platform"),
		Timestamp: stringField(fields, "timestamp"),
		Priority:  priority,
	}
}
