package slowpath

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"devtel/internal/model"
	"devtel/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const workerErrBackoff = 1 * time.Second

// Handler processes decoded CDC pointers. Implementations distinguish
// failure classes by return value: nil means success (ack), a plain error
// means retryable (leave unacked for redelivery), and an error wrapped with
// Permanent means the message can never succeed (dead-letter + ack).
type Handler interface {
	ProcessEvent(ctx context.Context, pointer *model.CDCPointer) error
}

// PermanentError marks a processing failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps an error as non-retryable.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// WorkerOptions configures one slow-path worker instance.
type WorkerOptions struct {
	Stream       string
	Group        string
	ConsumerName string
	DLQStream    string
	DLQMaxLen    int64
	BlockTimeout time.Duration
	ClaimIdle    time.Duration
	MaxRetries   int64

	// Priorities this worker handles; nil means all. Non-matching messages
	// are acknowledged immediately without processing, since they belong
	// to a different worker type.
	Priorities []int
}

// Worker is the slow-path base: it consumes CDC pointer events from a
// competing-consumers group, applies the priority filter, delegates to the
// handler and acknowledges on success. Failed messages are retried via the
// broker's pending-entries list until the delivery count reaches
// MaxRetries, then dead-lettered with diagnostic context.
type Worker struct {
	client  *redis.Client
	handler Handler
	opts    WorkerOptions

	running   int32
	cancel    context.CancelFunc
	done      chan struct{}
	processed uint64
	failed    uint64
}

// NewWorker creates a slow-path worker.
func NewWorker(client *redis.Client, handler Handler, opts WorkerOptions) *Worker {
	return &Worker{
		client:  client,
		handler: handler,
		opts:    opts,
		done:    make(chan struct{}),
	}
}

// Start launches the worker loop. Starting a running worker is a no-op.
// The consumer group must already exist; the pool creates it once.
func (w *Worker) Start(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(runCtx)
	logger.Infof("slow-path worker started: %s", w.opts.ConsumerName)
}

// Stop cancels the loop and waits for the in-flight message to finish.
func (w *Worker) Stop() {
	if !atomic.CompareAndSwapInt32(&w.running, 1, 0) {
		return
	}
	w.cancel()
	<-w.done
	logger.Infof("slow-path worker stopped: %s", w.opts.ConsumerName)
}

// Running reports whether the worker loop is active.
func (w *Worker) Running() bool {
	return atomic.LoadInt32(&w.running) == 1
}

// Processed returns the number of successfully processed messages.
func (w *Worker) Processed() uint64 {
	return atomic.LoadUint64(&w.processed)
}

// Failed returns the number of failed processing attempts.
func (w *Worker) Failed() uint64 {
	return atomic.LoadUint64(&w.failed)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.reclaimPending(ctx)

		streams, err := w.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.opts.Group,
			Consumer: w.opts.ConsumerName,
			Streams:  []string{w.opts.Stream, ">"},
			Count:    1,
			Block:    w.opts.BlockTimeout,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				logger.Errorf("worker %s read error: %v", w.opts.ConsumerName, err)
				sleepCtx(ctx, workerErrBackoff)
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				w.handleMessage(ctx, msg)
			}
		}
	}
}

// handleMessage runs one message through
// RECEIVED -> DECODE -> priority filter -> PROCESS -> ACK.
func (w *Worker) handleMessage(ctx context.Context, msg redis.XMessage) {
	pointer := model.CDCPointerFromFields(msg.Values)

	if !w.matchesPriority(pointer.Priority) {
		w.ack(ctx, msg.ID)
		return
	}

	err := w.handler.ProcessEvent(ctx, pointer)
	if err == nil {
		w.ack(ctx, msg.ID)
		atomic.AddUint64(&w.processed, 1)
		return
	}

	atomic.AddUint64(&w.failed, 1)
	logger.Errorf("worker %s failed to process message %s (sequence %d): %v",
		w.opts.ConsumerName, msg.ID, pointer.Sequence, err)

	deliveries := w.deliveryCount(ctx, msg.ID)

	var permanent *PermanentError
	if errors.As(err, &permanent) || deliveries >= w.opts.MaxRetries {
		w.deadLetter(ctx, msg, err, deliveries)
		return
	}
	// Retryable: leave unacknowledged. The pending entry is redelivered
	// once its idle time exceeds the claim threshold.
}

func (w *Worker) matchesPriority(priority int) bool {
	if len(w.opts.Priorities) == 0 {
		return true
	}
	for _, p := range w.opts.Priorities {
		if p == priority {
			return true
		}
	}
	return false
}

// deliveryCount reads the broker-maintained delivery count for a pending
// message. Broker-side tracking survives worker restarts, unlike any
// counter the worker could keep itself.
func (w *Worker) deliveryCount(ctx context.Context, messageID string) int64 {
	entries, err := w.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: w.opts.Stream,
		Group:  w.opts.Group,
		Start:  messageID,
		End:    messageID,
		Count:  1,
	}).Result()
	if err != nil || len(entries) == 0 {
		logger.Warnf("failed to read delivery count for %s: %v", messageID, err)
		return 1
	}
	return entries[0].RetryCount
}

// deadLetter writes the exhausted message to the dead-letter stream with
// full diagnostic context, then acknowledges the original.
func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, cause error, deliveries int64) {
	fields := make(map[string]interface{}, len(msg.Values)+4)
	for k, v := range msg.Values {
		fields[k] = v
	}
	fields["error"] = cause.Error()
	fields["failed_at"] = strconv.FormatInt(time.Now().Unix(), 10)
	fields["original_message_id"] = msg.ID
	fields["delivery_count"] = strconv.FormatInt(deliveries, 10)

	err := w.client.XAdd(ctx, &redis.XAddArgs{
		Stream: w.opts.DLQStream,
		MaxLen: w.opts.DLQMaxLen,
		Approx: true,
		Values: fields,
	}).Err()
	if err != nil {
		// Leave unacked so the message is not lost; it will be retried.
		logger.Errorf("failed to dead-letter message %s: %v", msg.ID, err)
		return
	}

	w.ack(ctx, msg.ID)
	logger.Warnf("dead-lettered message %s after %d deliveries: %v", msg.ID, deliveries, cause)
}

func (w *Worker) ack(ctx context.Context, messageID string) {
	if err := w.client.XAck(ctx, w.opts.Stream, w.opts.Group, messageID).Err(); err != nil {
		logger.Errorf("failed to ack message %s: %v", messageID, err)
	}
}

// reclaimPending takes over messages stuck pending on crashed or stalled
// consumers so retries make progress.
func (w *Worker) reclaimPending(ctx context.Context) {
	messages, _, err := w.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   w.opts.Stream,
		Group:    w.opts.Group,
		Consumer: w.opts.ConsumerName,
		MinIdle:  w.opts.ClaimIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil && err != redis.Nil {
		if ctx.Err() == nil {
			logger.Errorf("worker %s failed to reclaim pending: %v", w.opts.ConsumerName, err)
		}
		return
	}

	for _, msg := range messages {
		w.handleMessage(ctx, msg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
