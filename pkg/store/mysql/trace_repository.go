package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devtel/pkg/store/mysql/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TraceRepository handles the raw_traces append-only log in MySQL
type TraceRepository struct {
	ds *Datastore
}

// NewTraceRepository creates a new trace repository
func NewTraceRepository(ds *Datastore) *TraceRepository {
	return &TraceRepository{ds: ds}
}

// InsertBatch appends rows to the durable log inside a single transaction
// and back-fills the assigned sequence numbers on the passed rows. The
// insert is idempotent on event_id: a redelivered event does not create a
// second row, and its row keeps the originally assigned sequence, which is
// looked up and back-filled instead.
//
// Either every row ends up with a sequence or the transaction is rolled
// back and none do.
func (r *TraceRepository) InsertBatch(ctx context.Context, rows []*model.RawTrace) error {
	if len(rows) == 0 {
		return nil
	}

	return r.ds.ExecTx(ctx, func(ctx context.Context) error {
		db := r.ds.DB(ctx)

		if err := db.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "event_id"}},
				DoNothing: true,
			}).
			Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert trace batch: %w", err)
		}

		// Conflicting rows come back with a zero sequence; resolve them to
		// the sequence of the already-stored row.
		for _, row := range rows {
			if row.Sequence != 0 {
				continue
			}
			var existing model.RawTrace
			if err := db.
				Select("sequence").
				Where("event_id = ?", row.EventID).
				Take(&existing).Error; err != nil {
				return fmt.Errorf("failed to resolve sequence for event %s: %w", row.EventID, err)
			}
			row.Sequence = existing.Sequence
		}
		return nil
	})
}

// GetBySequence fetches a single trace row by sequence number.
// Returns (nil, nil) when the sequence does not exist; a fetch-miss is not
// an error for slow-path workers.
func (r *TraceRepository) GetBySequence(ctx context.Context, sequence int64) (*model.RawTrace, error) {
	var trace model.RawTrace
	err := r.ds.DB(ctx).Where("sequence = ?", sequence).Take(&trace).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trace by sequence: %w", err)
	}
	return &trace, nil
}

// GetByEventID fetches a single trace row by event ID.
func (r *TraceRepository) GetByEventID(ctx context.Context, eventID string) (*model.RawTrace, error) {
	var trace model.RawTrace
	err := r.ds.DB(ctx).Where("event_id = ?", eventID).Take(&trace).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trace by event_id: %w", err)
	}
	return &trace, nil
}

// GetSessionTraces retrieves all traces for a session in write order.
func (r *TraceRepository) GetSessionTraces(ctx context.Context, sessionID string, limit int) ([]*model.RawTrace, error) {
	if limit <= 0 {
		limit = 100
	}

	var traces []*model.RawTrace
	err := r.ds.DB(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence ASC").
		Limit(limit).
		Find(&traces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get session traces: %w", err)
	}
	return traces, nil
}

// HighWaterMark returns the highest assigned sequence number, or zero for
// an empty log.
func (r *TraceRepository) HighWaterMark(ctx context.Context) (int64, error) {
	var mark *int64
	err := r.ds.DB(ctx).
		Model(&model.RawTrace{}).
		Select("MAX(sequence)").
		Scan(&mark).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get high-water mark: %w", err)
	}
	if mark == nil {
		return 0, nil
	}
	return *mark, nil
}

// DeleteOldTraces deletes traces older than the specified duration.
func (r *TraceRepository) DeleteOldTraces(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoffTime := time.Now().Add(-olderThan)

	result := r.ds.DB(ctx).
		Where("created_at < ?", cutoffTime).
		Delete(&model.RawTrace{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old traces: %w", result.Error)
	}

	return result.RowsAffected, nil
}
