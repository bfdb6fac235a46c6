package fastpath

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"devtel/internal/model"
	"devtel/pkg/store/mysql"
	storemodel "devtel/pkg/store/mysql/model"

	"github.com/klauspost/compress/zlib"
)

// Compression level 6 trades CPU for a 7-10x size reduction on typical
// telemetry JSON.
const compressionLevel = 6

// CompressEvent serializes an event to canonical JSON and compresses it.
func CompressEvent(e *model.Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", e.EventID, err)
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, compressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress event %s: %w", e.EventID, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush compressor: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressEvent reverses CompressEvent, reproducing the exact original
// event structure including the nested payload.
func DecompressEvent(data []byte) (*model.Event, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed event: %w", err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress event: %w", err)
	}

	var e model.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &e, nil
}

// BatchWriter appends an ordered batch of events to durable storage and
// returns the assigned sequence numbers in the same order. If the write
// fails no sequence numbers are assigned and the caller must not
// acknowledge the originating queue messages.
type BatchWriter interface {
	WriteBatch(ctx context.Context, events []*model.Event) ([]int64, error)
}

// DurableWriter persists compressed events to the MySQL raw_traces log.
type DurableWriter struct {
	traces *mysql.TraceRepository
}

// NewDurableWriter creates a durable writer backed by the trace repository.
func NewDurableWriter(traces *mysql.TraceRepository) *DurableWriter {
	return &DurableWriter{traces: traces}
}

// WriteBatch compresses and appends events in order inside one transaction.
func (w *DurableWriter) WriteBatch(ctx context.Context, events []*model.Event) ([]int64, error) {
	if len(events) == 0 {
		return nil, nil
	}

	rows := make([]*storemodel.RawTrace, 0, len(events))
	for _, e := range events {
		compressed, err := CompressEvent(e)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &storemodel.RawTrace{
			EventID:      e.EventID,
			SessionID:    e.SessionID,
			EventType:    e.EventType,
			Platform:     e.Platform,
			Timestamp:    e.Timestamp,
			ToolName:     e.ToolName,
			Model:        e.Model,
			DurationMs:   e.DurationMs,
			TokensUsed:   e.TokensUsed,
			LinesAdded:   e.LinesAdded,
			LinesRemoved: e.LinesRemoved,
			EventData:    compressed,
		})
	}

	if err := w.traces.InsertBatch(ctx, rows); err != nil {
		return nil, err
	}

	sequences := make([]int64, len(rows))
	for i, row := range rows {
		sequences[i] = row.Sequence
	}
	return sequences, nil
}
