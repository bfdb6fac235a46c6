package asynq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"devtel/pkg/config"
	"devtel/pkg/constants"
	"devtel/pkg/logger"

	goredis "github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
)

const (
	TypeDLQReplay = "dlq:replay"
)

// ReplayPayload identifies one dead-letter entry to push back through the
// ingest stream.
type ReplayPayload struct {
	MessageID string `json:"message_id"`
}

// Manager runs the background task queue used for dead-letter replay.
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	redis  *goredis.Client
}

// NewManager creates the queue manager and registers the replay handler.
func NewManager(cfg *config.Config, redisClient *goredis.Client) (*Manager, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				"default": 10,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Second
			},
		},
	)

	m := &Manager{
		client: client,
		server: server,
		mux:    asynq.NewServeMux(),
		redis:  redisClient,
	}
	m.mux.HandleFunc(TypeDLQReplay, m.handleReplay)

	return m, nil
}

// EnqueueReplay schedules a dead-letter entry for re-ingestion.
func (m *Manager) EnqueueReplay(ctx context.Context, messageID string) error {
	payload, err := json.Marshal(ReplayPayload{MessageID: messageID})
	if err != nil {
		return fmt.Errorf("failed to marshal replay payload: %w", err)
	}

	task := asynq.NewTask(TypeDLQReplay, payload)
	opts := []asynq.Option{
		asynq.TaskID(messageID),
		asynq.MaxRetry(config.GlobalConfig.Queue.MaxRetry),
	}

	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue replay: %w", err)
	}

	logger.InfoCtx(ctx, "dlq replay enqueued, message_id: %s, queue: %s", messageID, info.Queue)
	return nil
}

// handleReplay reads the dead-letter entry, strips the failure metadata,
// appends the original fields back to the ingest stream and removes the
// entry from the dead-letter stream.
func (m *Manager) handleReplay(ctx context.Context, t *asynq.Task) error {
	var payload ReplayPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal replay payload: %w", err)
	}

	messages, err := m.redis.XRange(ctx, constants.DLQStream, payload.MessageID, payload.MessageID).Result()
	if err != nil {
		return fmt.Errorf("failed to read dlq entry %s: %w", payload.MessageID, err)
	}
	if len(messages) == 0 {
		// Entry trimmed or already replayed.
		logger.WarnCtx(ctx, "dlq entry %s not found, skipping replay", payload.MessageID)
		return nil
	}

	fields := make(map[string]interface{}, len(messages[0].Values))
	for k, v := range messages[0].Values {
		switch k {
		case constants.DLQFieldError, constants.DLQFieldFailedAt,
			constants.DLQFieldOriginalMessageID, constants.DLQFieldDeliveryCount:
			continue
		}
		fields[k] = v
	}

	err = m.redis.XAdd(ctx, &goredis.XAddArgs{
		Stream: constants.EventsStream,
		MaxLen: config.GlobalConfig.Streams.EventsMaxLen,
		Approx: true,
		Values: fields,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to re-ingest dlq entry %s: %w", payload.MessageID, err)
	}

	if err := m.redis.XDel(ctx, constants.DLQStream, payload.MessageID).Err(); err != nil {
		// The event is already back in the pipeline; the duplicate-safe
		// write path absorbs a repeated replay.
		logger.WarnCtx(ctx, "failed to delete replayed dlq entry %s: %v", payload.MessageID, err)
	}

	logger.InfoCtx(ctx, "dlq entry replayed, message_id: %s", payload.MessageID)
	return nil
}

// Start starts the queue server.
func (m *Manager) Start() error {
	logger.InfoCtx(context.Background(), "starting queue server")
	return m.server.Start(m.mux)
}

// Stop stops the queue server.
func (m *Manager) Stop() {
	logger.InfoCtx(context.Background(), "stopping queue server")
	m.server.Stop()
	m.server.Shutdown()
}

// Close closes the enqueue client.
func (m *Manager) Close() error {
	return m.client.Close()
}
