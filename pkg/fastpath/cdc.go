package fastpath

import (
	"context"
	"fmt"

	"devtel/internal/model"

	"github.com/go-redis/redis/v8"
)

// CDCPublisher emits pointer events to the CDC stream after each successful
// durable write. Publishing is fire-and-forget from the consumer's
// perspective: a failure is surfaced to the operator via logs but never
// rolls back the already-committed write.
type CDCPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewCDCPublisher creates a publisher bound to the given stream.
// The stream is trimmed approximately at maxLen; exactness is traded for
// throughput.
func NewCDCPublisher(client *redis.Client, stream string, maxLen int64) *CDCPublisher {
	return &CDCPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Publish appends a pointer for a durably committed sequence. Callers must
// only invoke this after the write transaction has committed.
func (p *CDCPublisher) Publish(ctx context.Context, sequence int64, e *model.Event) error {
	pointer := model.NewCDCPointer(sequence, e)

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: pointer.Fields(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish CDC pointer for sequence %d: %w", sequence, err)
	}
	return nil
}

// Stream returns the destination stream name.
func (p *CDCPublisher) Stream() string {
	return p.stream
}
