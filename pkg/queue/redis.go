package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	listPrefix  = "hookflow:queue:"
	dedupPrefix = "hookflow:queue:dedup:"
	deadSuffix  = ":dead"
)

// RedisQueue implements Queue on Redis lists. One list per topic, FIFO via
// LPUSH/BRPOP, dedup keys with the retention window as TTL, exhausted jobs
// pushed to <topic>:dead.
type RedisQueue struct {
	client redis.UniversalClient
	config Config
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewRedisQueue(ctx context.Context, addr, password string, db int, config Config, logger *slog.Logger) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisQueueWithClient(client, config, logger), nil
}

// NewRedisQueueWithClient wraps an existing client; used by tests.
func NewRedisQueueWithClient(client redis.UniversalClient, config Config, logger *slog.Logger) *RedisQueue {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}

	if config.Retention <= 0 {
		config.Retention = DefaultConfig().Retention
	}

	return &RedisQueue{
		client: client,
		config: config,
		logger: logger.With("module", "redis_queue"),
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, topic string, job Job) error {
	job.Topic = topic

	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	if job.Key != "" {
		fresh, err := q.client.SetNX(ctx, dedupPrefix+job.Key, "1", q.config.Retention).Result()
		if err != nil {
			return fmt.Errorf("failed to check job dedup key: %w", err)
		}

		if !fresh {
			q.logger.DebugContext(ctx, "Dropping duplicate job", "key", job.Key, "topic", topic)

			return nil
		}
	}

	return q.push(ctx, topic, &job)
}

func (q *RedisQueue) push(ctx context.Context, topic string, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	if err := q.client.LPush(ctx, listPrefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to push job to topic %s: %w", topic, err)
	}

	return nil
}

func (q *RedisQueue) Consume(ctx context.Context, topic string, handler Handler) error {
	q.logger.InfoContext(ctx, "Starting queue workers",
		"topic", topic,
		"concurrency", q.config.Concurrency)

	for range q.config.Concurrency {
		q.wg.Add(1)

		go q.work(ctx, topic, handler)
	}

	return nil
}

func (q *RedisQueue) work(ctx context.Context, topic string, handler Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := q.processOne(ctx, topic, handler); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}

			q.logger.ErrorContext(ctx, "Error processing job", "topic", topic, "error", err)
			time.Sleep(time.Second)
		}
	}
}

func (q *RedisQueue) processOne(ctx context.Context, topic string, handler Handler) error {
	result, err := q.client.BRPop(ctx, time.Second, listPrefix+topic).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop job from topic %s: %w", topic, err)
	}

	if len(result) < 2 {
		return nil
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return fmt.Errorf("failed to decode job from topic %s: %w", topic, err)
	}

	if err := handler(ctx, &job); err != nil {
		return q.retry(ctx, topic, &job, err)
	}

	return nil
}

// retry re-enqueues a failed job after its backoff, doubling the delay per
// attempt, until MaxAttempts is exhausted; then the job moves to the dead
// list for inspection.
func (q *RedisQueue) retry(ctx context.Context, topic string, job *Job, cause error) error {
	job.Attempt++

	if job.Attempt >= q.config.MaxAttempts {
		q.logger.WarnContext(ctx, "Job exhausted attempts, moving to dead list",
			"topic", topic,
			"key", job.Key,
			"attempts", job.Attempt,
			"error", cause)

		return q.push(ctx, topic+deadSuffix, job)
	}

	delay := q.config.Backoff
	for i := 1; i < job.Attempt; i++ {
		delay *= 2
	}

	q.logger.InfoContext(ctx, "Retrying job",
		"topic", topic,
		"key", job.Key,
		"attempt", job.Attempt,
		"delay", delay,
		"error", cause)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}

	return q.push(ctx, topic, job)
}

func (q *RedisQueue) Close() error {
	q.wg.Wait()

	return q.client.Close()
}
