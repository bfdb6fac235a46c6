package queue

import (
	"context"
	"fmt"

	"devtel/internal/model"
	"devtel/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// StreamProducer appends telemetry events to the ingest stream. The stream
// is capped approximately so ingest never blocks on trimming.
type StreamProducer struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamProducer creates a producer for the given stream.
func NewStreamProducer(client *redis.Client, stream string, maxLen int64) *StreamProducer {
	return &StreamProducer{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Publish appends one event. Events without an event_id are assigned one
// here so every message entering the pipeline is individually addressable.
func (p *StreamProducer) Publish(ctx context.Context, event *model.Event) (string, error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: event.Fields(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish event %s: %w", event.EventID, err)
	}

	logger.Debugf("event published, event_id: %s, stream_id: %s", event.EventID, id)
	return id, nil
}

// Stream returns the ingest stream key.
func (p *StreamProducer) Stream() string {
	return p.stream
}
