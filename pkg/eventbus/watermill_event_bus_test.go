package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/pkg/events"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	bus := NewWatermillEventBus(pubsub, pubsub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestPublishSubscribe_RoundTrip(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		received *events.WorkflowTriggered
	)

	bus.Handle(events.WorkflowTriggeredEvent, func(_ context.Context, event any) error {
		triggered, ok := event.(*events.WorkflowTriggered)
		require.True(t, ok)

		mu.Lock()
		received = triggered
		mu.Unlock()

		return nil
	})

	require.NoError(t, bus.Subscribe(ctx))

	published := events.WorkflowTriggered{
		BaseEvent:   events.NewBaseEvent(events.WorkflowTriggeredEvent, "wf-1"),
		TriggerType: "webhook",
		TriggerData: map[string]any{"webhook_id": "wh-1"},
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", published))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return received != nil
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "wf-1", received.WorkflowID)
	assert.Equal(t, "webhook", received.TriggerType)
	assert.Equal(t, "wh-1", received.TriggerData["webhook_id"])
}

func TestLifecycleEvents_RouteByType(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		created []string
		deleted []string
	)

	bus.Handle(events.WorkflowCreatedEvent, func(_ context.Context, event any) error {
		mu.Lock()
		defer mu.Unlock()

		created = append(created, event.(*events.WorkflowCreated).WorkflowID)

		return nil
	})
	bus.Handle(events.WorkflowDeletedEvent, func(_ context.Context, event any) error {
		mu.Lock()
		defer mu.Unlock()

		deleted = append(deleted, event.(*events.WorkflowDeleted).WorkflowID)

		return nil
	})

	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "wf-1", events.WorkflowCreated{
		BaseEvent: events.NewBaseEvent(events.WorkflowCreatedEvent, "wf-1"),
	}))
	require.NoError(t, bus.Publish(ctx, "wf-2", events.WorkflowDeleted{
		BaseEvent: events.NewBaseEvent(events.WorkflowDeletedEvent, "wf-2"),
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(created) == 1 && len(deleted) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"wf-1"}, created)
	assert.Equal(t, []string{"wf-2"}, deleted)
}

func TestUnhandledEventIsDropped(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled sync.Map

	bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event any) error {
		handled.Store(event.(*events.ExecutionCompleted).ExecutionID, true)

		return nil
	})

	require.NoError(t, bus.Subscribe(ctx))

	// No handler for ExecutionFailed; the bus must ack it and keep the
	// subscription alive for later events.
	require.NoError(t, bus.Publish(ctx, "wf-1", events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, "wf-1"),
		ExecutionID: "exec-1",
		Error:       "boom",
	}))
	require.NoError(t, bus.Publish(ctx, "wf-1", events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, "wf-1"),
		ExecutionID: "exec-2",
	}))

	assert.Eventually(t, func() bool {
		_, ok := handled.Load("exec-2")

		return ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGenerateID_Unique(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
