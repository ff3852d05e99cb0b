// Package queue provides the durable, at-least-once job queue that absorbs
// inbound trigger bursts and moves workflow starts out of the request path.
package queue

import (
	"context"
	"time"
)

// Job is one durable unit of work. Key is the stable idempotency key
// (workflow + external item id); redelivery of the same Key within the
// retention window is dropped at enqueue time.
type Job struct {
	Key        string         `json:"key"`
	Topic      string         `json:"topic"`
	Payload    map[string]any `json:"payload"`
	Attempt    int            `json:"attempt"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Handler processes one job. Handlers must be idempotent: queue retries and
// provider push callbacks can both redeliver the same logical event.
type Handler func(ctx context.Context, job *Job) error

// Queue is a topic-addressed FIFO with at-least-once delivery, automatic
// retry with backoff and a dead set for exhausted jobs.
type Queue interface {
	Enqueue(ctx context.Context, topic string, job Job) error

	// Consume starts a bounded worker pool on the topic. It returns after
	// the workers are running; they stop when ctx is cancelled.
	Consume(ctx context.Context, topic string, handler Handler) error

	Close() error
}

// Config bounds the queue's concurrency and retry behavior.
type Config struct {
	Concurrency int
	MaxAttempts int
	Backoff     time.Duration
	Retention   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Concurrency: 5,
		MaxAttempts: 3,
		Backoff:     time.Second,
		Retention:   24 * time.Hour,
	}
}
