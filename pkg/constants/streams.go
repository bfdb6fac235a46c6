package constants

// Redis stream names used across the telemetry pipeline.
// Centralized so producers and consumers never disagree on naming.
const (
	// EventsStream is the primary ingest stream. Producers (editor hooks,
	// git integration, the HTTP ingest endpoint) append flat field/value
	// records here; fast-path consumers drain it.
	EventsStream = "telemetry:events"

	// DLQStream collects messages that exhausted their retries or could
	// never be parsed. Preserved for manual inspection and replay.
	DLQStream = "telemetry:dlq"

	// CDCStream carries lightweight pointer records emitted after each
	// durable write. Slow-path workers consume it.
	CDCStream = "cdc:events"
)

// Consumer group names.
const (
	// FastPathGroup is the competing-consumers group on EventsStream.
	FastPathGroup = "processors"

	// SlowPathGroup is the competing-consumers group on CDCStream shared
	// by all metrics workers.
	SlowPathGroup = "workers"
)

// Dead-letter entry field names (in addition to the original fields).
const (
	DLQFieldError             = "error"
	DLQFieldFailedAt          = "failed_at"
	DLQFieldOriginalMessageID = "original_message_id"
	DLQFieldDeliveryCount     = "delivery_count"
)
