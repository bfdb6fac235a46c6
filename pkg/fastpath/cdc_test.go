package fastpath

import (
	"context"
	"testing"

	"devtel/internal/model"
	"devtel/pkg/constants"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCDCPublisher_PublishesPointerFields(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	publisher := NewCDCPublisher(client, constants.CDCStream, 1000)
	ctx := context.Background()

	event := &model.Event{
		EventID:   "evt-1",
		SessionID: "session-1",
		EventType: model.EventUserPrompt,
		Platform:  "vscode",
		Timestamp: "2026-08-26T10:00:00Z",
		Payload:   map[string]interface{}{"length": float64(42)},
	}

	err := publisher.Publish(ctx, 17, event)
	require.NoError(t, err)

	messages, err := client.XRange(ctx, constants.CDCStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)

	values := messages[0].Values
	assert.Equal(t, "17", values["sequence"])
	assert.Equal(t, "evt-1", values["event_id"])
	assert.Equal(t, "session-1", values["session_id"])
	assert.Equal(t, "user_prompt", values["event_type"])
	assert.Equal(t, "vscode", values["platform"])

	// user_prompt is latency-sensitive and rides the high-priority lane.
	assert.Equal(t, "1", values["priority"])

	// Pointers never carry the payload; workers fetch it from storage.
	assert.NotContains(t, values, "payload")
}

func TestCDCPublisher_PointerDecodesBack(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	publisher := NewCDCPublisher(client, constants.CDCStream, 1000)
	ctx := context.Background()

	event := &model.Event{
		EventID:   "evt-2",
		SessionID: "session-2",
		EventType: model.EventGitCommit,
		Timestamp: "2026-08-26T11:00:00Z",
	}
	require.NoError(t, publisher.Publish(ctx, 99, event))

	messages, err := client.XRange(ctx, constants.CDCStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)

	pointer := model.CDCPointerFromFields(messages[0].Values)
	assert.Equal(t, int64(99), pointer.Sequence)
	assert.Equal(t, "evt-2", pointer.EventID)
	assert.Equal(t, constants.PriorityBatch, pointer.Priority)
}
