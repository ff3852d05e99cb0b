// Package eventbus provides the in-process publish/subscribe channel
// decoupling trigger detection from execution start.
package eventbus

import (
	"context"

	"github.com/hookflow/hookflow/pkg/events"
)

// Event is any typed event carrying its own kind and topic.
type Event interface {
	GetType() events.EventType
	Topic() string
}

type EventPublisher interface {
	// Publish sends the event to its topic. It never blocks on listener
	// completion.
	Publish(ctx context.Context, key string, event Event) error
}

type EventHandler func(ctx context.Context, event any) error

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler)
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
