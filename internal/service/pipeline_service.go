package service

import (
	"context"
	"fmt"

	"devtel/pkg/constants"
	"devtel/pkg/fastpath"
	queueasynq "devtel/pkg/queue/asynq"
	"devtel/pkg/slowpath"

	"github.com/go-redis/redis/v8"
)

// PipelineStats is the operational view of the whole pipeline.
type PipelineStats struct {
	IngestDepth   int64              `json:"ingest_depth"`
	IngestPending int64              `json:"ingest_pending"`
	DLQDepth      int64              `json:"dlq_depth"`
	FastPathState string             `json:"fast_path_state"`
	SlowPath      slowpath.PoolStats `json:"slow_path"`
}

// DLQEntry is one dead-letter record as served over the API.
type DLQEntry struct {
	MessageID         string            `json:"message_id"`
	EventID           string            `json:"event_id"`
	EventType         string            `json:"event_type"`
	Error             string            `json:"error"`
	FailedAt          string            `json:"failed_at"`
	OriginalMessageID string            `json:"original_message_id"`
	DeliveryCount     string            `json:"delivery_count"`
	Fields            map[string]string `json:"fields"`
}

// PipelineService exposes pipeline health and dead-letter operations.
type PipelineService struct {
	redis    *redis.Client
	consumer *fastpath.Consumer
	pool     *slowpath.Pool
	queue    *queueasynq.Manager
}

// NewPipelineService creates the pipeline operations service.
func NewPipelineService(redisClient *redis.Client, consumer *fastpath.Consumer, pool *slowpath.Pool, queue *queueasynq.Manager) *PipelineService {
	return &PipelineService{
		redis:    redisClient,
		consumer: consumer,
		pool:     pool,
		queue:    queue,
	}
}

// Stats returns the current pipeline snapshot.
func (s *PipelineService) Stats(ctx context.Context) (*PipelineStats, error) {
	stats := &PipelineStats{
		FastPathState: s.consumer.State(),
		SlowPath:      s.pool.Stats(ctx),
	}

	depth, err := s.redis.XLen(ctx, constants.EventsStream).Result()
	if err != nil {
		return nil, fmt.Errorf("read ingest depth: %w", err)
	}
	stats.IngestDepth = depth

	if pending, err := s.redis.XPending(ctx, constants.EventsStream, constants.FastPathGroup).Result(); err == nil && pending != nil {
		stats.IngestPending = pending.Count
	}

	if dlq, err := s.redis.XLen(ctx, constants.DLQStream).Result(); err == nil {
		stats.DLQDepth = dlq
	}

	return stats, nil
}

// ListDLQ returns up to limit dead-letter entries, oldest first.
func (s *PipelineService) ListDLQ(ctx context.Context, limit int64) ([]DLQEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	messages, err := s.redis.XRangeN(ctx, constants.DLQStream, "-", "+", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead-letter stream: %w", err)
	}

	entries := make([]DLQEntry, 0, len(messages))
	for _, msg := range messages {
		entry := DLQEntry{
			MessageID: msg.ID,
			Fields:    make(map[string]string, len(msg.Values)),
		}
		for k, v := range msg.Values {
			val, _ := v.(string)
			switch k {
			case constants.DLQFieldError:
				entry.Error = val
			case constants.DLQFieldFailedAt:
				entry.FailedAt = val
			case constants.DLQFieldOriginalMessageID:
				entry.OriginalMessageID = val
			case constants.DLQFieldDeliveryCount:
				entry.DeliveryCount = val
			case "event_id":
				entry.EventID = val
				entry.Fields[k] = val
			case "event_type":
				entry.EventType = val
				entry.Fields[k] = val
			default:
				entry.Fields[k] = val
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Replay schedules a dead-letter entry for re-ingestion.
func (s *PipelineService) Replay(ctx context.Context, messageID string) error {
	messages, err := s.redis.XRange(ctx, constants.DLQStream, messageID, messageID).Result()
	if err != nil {
		return fmt.Errorf("look up dlq entry %s: %w", messageID, err)
	}
	if len(messages) == 0 {
		return fmt.Errorf("dlq entry %s not found", messageID)
	}
	return s.queue.EnqueueReplay(ctx, messageID)
}
