package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, config Config) (*RedisQueue, redis.UniversalClient) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisQueueWithClient(client, config, slog.Default()), client
}

func TestEnqueue_DropsDuplicateKeys(t *testing.T) {
	q, client := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	job := Job{Key: "wf-1:item-1", Payload: map[string]any{"item_id": "item-1"}}

	require.NoError(t, q.Enqueue(ctx, "mail", job))
	require.NoError(t, q.Enqueue(ctx, "mail", job))

	length, err := client.LLen(ctx, listPrefix+"mail").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestEnqueue_KeylessJobsAlwaysAccepted(t *testing.T) {
	q, client := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "mail", Job{Payload: map[string]any{"n": 1}}))
	require.NoError(t, q.Enqueue(ctx, "mail", Job{Payload: map[string]any{"n": 2}}))

	length, err := client.LLen(ctx, listPrefix+"mail").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

func TestEnqueue_StampsTopicAndTime(t *testing.T) {
	q, client := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "mail", Job{Key: "k1"}))

	raw, err := client.RPop(ctx, listPrefix+"mail").Result()
	require.NoError(t, err)

	var job Job
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Equal(t, "mail", job.Topic)
	assert.False(t, job.EnqueuedAt.IsZero())
}

func TestConsume_DeliversJobs(t *testing.T) {
	q, _ := newTestQueue(t, Config{Concurrency: 2, MaxAttempts: 3, Backoff: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen atomic.Int32

	err := q.Consume(ctx, "mail", func(_ context.Context, job *Job) error {
		if job.Payload["item_id"] == "item-1" {
			seen.Add(1)
		}

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(ctx, "mail", Job{
		Key:     "wf-1:item-1",
		Payload: map[string]any{"item_id": "item-1"},
	}))

	assert.Eventually(t, func() bool { return seen.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestConsume_ExhaustedJobMovesToDeadList(t *testing.T) {
	q, client := newTestQueue(t, Config{Concurrency: 1, MaxAttempts: 2, Backoff: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32

	err := q.Consume(ctx, "mail", func(_ context.Context, _ *Job) error {
		calls.Add(1)

		return errors.New("handler always fails")
	})
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(ctx, "mail", Job{Key: "wf-1:item-1"}))

	assert.Eventually(t, func() bool {
		length, err := client.LLen(ctx, listPrefix+"mail"+deadSuffix).Result()

		return err == nil && length == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(2), calls.Load())

	raw, err := client.RPop(ctx, listPrefix+"mail"+deadSuffix).Result()
	require.NoError(t, err)

	var dead Job
	require.NoError(t, json.Unmarshal([]byte(raw), &dead))
	assert.Equal(t, 2, dead.Attempt)
}
