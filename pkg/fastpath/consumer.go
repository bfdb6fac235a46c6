package fastpath

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"devtel/internal/model"
	"devtel/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// Consumer lifecycle states.
const (
	StateStopped int32 = iota
	StateStarting
	StateRunning
	StateStopping
)

var stateNames = map[int32]string{
	StateStopped:  "stopped",
	StateStarting: "starting",
	StateRunning:  "running",
	StateStopping: "stopping",
}

const (
	readBackoff = 1 * time.Second
	connBackoff = 5 * time.Second

	// Budget for acknowledging an already-written batch during shutdown.
	drainTimeout = 5 * time.Second
)

// ConsumerOptions configures a fast-path consumer instance.
type ConsumerOptions struct {
	Stream       string
	Group        string
	ConsumerName string
	DLQStream    string
	DLQMaxLen    int64
	BatchSize    int
	BatchTimeout time.Duration
	BlockTimeout time.Duration
	ClaimIdle    time.Duration
}

// Consumer is the fast-path consumer: it reads events from the ingest
// stream as one member of a competing-consumers group, batches them, writes
// batches durably, publishes CDC pointers and acknowledges only
// successfully-written messages. Unacknowledged messages stay in the
// pending-entries list and are redelivered.
type Consumer struct {
	client    *redis.Client
	writer    BatchWriter
	publisher *CDCPublisher
	opts      ConsumerOptions
	batch     *BatchAccumulator

	state  int32
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates a fast-path consumer.
func NewConsumer(client *redis.Client, writer BatchWriter, publisher *CDCPublisher, opts ConsumerOptions) *Consumer {
	return &Consumer{
		client:    client,
		writer:    writer,
		publisher: publisher,
		opts:      opts,
		batch:     NewBatchAccumulator(opts.BatchSize, opts.BatchTimeout),
		done:      make(chan struct{}),
	}
}

// State returns the consumer's lifecycle state name.
func (c *Consumer) State() string {
	return stateNames[atomic.LoadInt32(&c.state)]
}

// Start transitions STOPPED -> STARTING -> RUNNING and launches the main
// loop. Starting an already-started consumer is a no-op.
func (c *Consumer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.state, StateStopped, StateStarting) {
		return nil
	}

	if err := c.ensureGroup(ctx); err != nil {
		atomic.StoreInt32(&c.state, StateStopped)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	atomic.StoreInt32(&c.state, StateRunning)
	go c.run(runCtx)

	logger.Infof("fast-path consumer started: %s (group %s)", c.opts.ConsumerName, c.opts.Group)
	return nil
}

// Stop transitions to STOPPING, cancels the loop and waits for it to finish
// acknowledging any already-written batch.
func (c *Consumer) Stop() {
	if !atomic.CompareAndSwapInt32(&c.state, StateRunning, StateStopping) {
		return
	}
	c.cancel()
	<-c.done
	atomic.StoreInt32(&c.state, StateStopped)
	logger.Infof("fast-path consumer stopped: %s", c.opts.ConsumerName)
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	if err == nil {
		logger.Infof("created consumer group %s on %s", c.opts.Group, c.opts.Stream)
	}
	return nil
}

// run is the RUNNING loop: reclaim pending, read new, batch, flush.
func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.drain()
			return
		default:
		}

		c.reclaimPending(ctx)

		if err := c.readAndBatch(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			var netErr net.Error
			if errors.As(err, &netErr) {
				logger.Errorf("broker connection error in consumer %s: %v", c.opts.ConsumerName, err)
				sleepCtx(ctx, connBackoff)
			} else {
				logger.Errorf("read error in consumer %s: %v", c.opts.ConsumerName, err)
				sleepCtx(ctx, readBackoff)
			}
			continue
		}

		if c.batch.ShouldFlush() && !c.batch.IsEmpty() {
			c.flush(ctx)
		}
	}
}

// drain acknowledges the final in-flight batch during shutdown. The loop
// context is already cancelled, so a bounded background context is used.
func (c *Consumer) drain() {
	if c.batch.IsEmpty() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	c.flush(ctx)
}

// readAndBatch performs one bounded read of new messages and feeds valid
// events into the accumulator, flushing whenever the size threshold is hit.
func (c *Consumer) readAndBatch(ctx context.Context) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.opts.Group,
		Consumer: c.opts.ConsumerName,
		Streams:  []string{c.opts.Stream, ">"},
		Count:    int64(c.opts.BatchSize),
		Block:    c.opts.BlockTimeout,
	}).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			c.ingest(ctx, msg)
		}
	}
	return nil
}

// ingest parses one message. A parse failure can never become valid, so the
// raw message is dead-lettered immediately and acknowledged; valid events
// join the batch.
func (c *Consumer) ingest(ctx context.Context, msg redis.XMessage) {
	event, err := model.EventFromFields(msg.Values)
	if err != nil {
		logger.Errorf("unparseable message %s: %v", msg.ID, err)
		c.deadLetter(ctx, msg, err)
		return
	}

	if ready := c.batch.Add(Entry{MessageID: msg.ID, Event: event}); ready {
		c.flush(ctx)
	}
}

// flush drains the batch, writes it durably, publishes one CDC pointer per
// written event and only then acknowledges the underlying messages. On a
// write failure nothing is acknowledged: the messages stay pending and are
// retried on a later pass or reclaimed after the idle timeout.
func (c *Consumer) flush(ctx context.Context) {
	entries := c.batch.Drain()
	if len(entries) == 0 {
		return
	}

	events := make([]*model.Event, len(entries))
	for i, entry := range entries {
		events[i] = entry.Event
	}

	sequences, err := c.writer.WriteBatch(ctx, events)
	if err != nil {
		logger.Errorf("batch write failed (%d events), leaving messages unacknowledged: %v", len(events), err)
		return
	}

	for i, sequence := range sequences {
		if err := c.publisher.Publish(ctx, sequence, events[i]); err != nil {
			logger.Errorf("CDC publish failed: %v", err)
		}
	}

	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.MessageID
	}
	if err := c.client.XAck(ctx, c.opts.Stream, c.opts.Group, ids...).Err(); err != nil {
		logger.Errorf("failed to ack %d messages: %v", len(ids), err)
		return
	}

	logger.Debugf("flushed batch: %d events, sequences %d-%d",
		len(events), sequences[0], sequences[len(sequences)-1])
}

// reclaimPending takes over messages whose delivery to another consumer
// timed out and runs them through the same batch pipeline.
func (c *Consumer) reclaimPending(ctx context.Context) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.opts.Stream,
		Group:    c.opts.Group,
		Consumer: c.opts.ConsumerName,
		MinIdle:  c.opts.ClaimIdle,
		Start:    "0-0",
		Count:    int64(c.opts.BatchSize),
	}).Result()
	if err != nil && err != redis.Nil {
		if ctx.Err() == nil {
			logger.Errorf("failed to reclaim pending messages: %v", err)
		}
		return
	}

	for _, msg := range messages {
		c.ingest(ctx, msg)
	}
}

// deadLetter routes a malformed raw message to the dead-letter stream and
// acknowledges it; retrying cannot fix malformed content.
func (c *Consumer) deadLetter(ctx context.Context, msg redis.XMessage, cause error) {
	fields := make(map[string]interface{}, len(msg.Values)+4)
	for k, v := range msg.Values {
		fields[k] = v
	}
	fields["error"] = cause.Error()
	fields["failed_at"] = strconv.FormatInt(time.Now().Unix(), 10)
	fields["original_message_id"] = msg.ID
	fields["delivery_count"] = "1"

	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.opts.DLQStream,
		MaxLen: c.opts.DLQMaxLen,
		Approx: true,
		Values: fields,
	}).Err()
	if err != nil {
		logger.Errorf("failed to dead-letter message %s: %v", msg.ID, err)
		return
	}

	if err := c.client.XAck(ctx, c.opts.Stream, c.opts.Group, msg.ID).Err(); err != nil {
		logger.Errorf("failed to ack dead-lettered message %s: %v", msg.ID, err)
	}
	logger.Warnf("dead-lettered unparseable message %s", msg.ID)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
