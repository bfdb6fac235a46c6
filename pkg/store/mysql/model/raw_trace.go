package model

import "time"

// RawTrace MySQL model for the raw_traces append-only log.
//
// Sequence is the auto-assigned ordering key for the durable log: assigned
// in write order at commit time, never reused or skipped for committed
// writes. EventData holds the compressed JSON of the full original event;
// the scalar columns are extracted for indexed lookup only.
type RawTrace struct {
	Sequence     int64     `gorm:"column:sequence;primaryKey;autoIncrement" json:"sequence"`
	EventID      string    `gorm:"column:event_id;type:varchar(255);not null;uniqueIndex:idx_event_id_unique" json:"event_id"`
	SessionID    string    `gorm:"column:session_id;type:varchar(255);index:idx_session_id" json:"session_id"`
	EventType    string    `gorm:"column:event_type;type:varchar(50);index:idx_event_type" json:"event_type"`
	Platform     string    `gorm:"column:platform;type:varchar(50)" json:"platform"`
	Timestamp    string    `gorm:"column:timestamp;type:varchar(64);index:idx_timestamp" json:"timestamp"`
	ToolName     string    `gorm:"column:tool_name;type:varchar(255)" json:"tool_name"`
	Model        string    `gorm:"column:model;type:varchar(255)" json:"model"`
	DurationMs   *float64  `gorm:"column:duration_ms" json:"duration_ms"`
	TokensUsed   *int64    `gorm:"column:tokens_used" json:"tokens_used"`
	LinesAdded   *int64    `gorm:"column:lines_added" json:"lines_added"`
	LinesRemoved *int64    `gorm:"column:lines_removed" json:"lines_removed"`
	EventData    []byte    `gorm:"column:event_data;type:mediumblob;not null" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
}

// TableName specifies the table name for RawTrace
func (RawTrace) TableName() string {
	return "raw_traces"
}
