package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/pkg/eventbus"
	"github.com/hookflow/hookflow/pkg/events"
	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/registry"
	"github.com/hookflow/hookflow/pkg/testutil"
)

type recordingTrigger struct {
	triggerType models.TriggerType

	mu           sync.Mutex
	registered   []string
	unregistered []string
}

func (h *recordingTrigger) Type() models.TriggerType        { return h.triggerType }
func (h *recordingTrigger) Validate(_ map[string]any) error { return nil }

func (h *recordingTrigger) Register(_ context.Context, workflow *models.Workflow) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.registered = append(h.registered, workflow.ID)

	return nil
}

func (h *recordingTrigger) Unregister(_ context.Context, workflowID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unregistered = append(h.unregistered, workflowID)

	return nil
}

func (h *recordingTrigger) registeredIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.registered...)
}

func (h *recordingTrigger) unregisteredIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.unregistered...)
}

type fixture struct {
	supervisor *Supervisor
	persist    *testutil.MemoryPersistence
	trigger    *recordingTrigger
	bus        eventbus.EventBus
}

func newFixture(t *testing.T, workflows ...*models.Workflow) *fixture {
	t.Helper()

	persist := testutil.NewMemoryPersistence()
	for _, workflow := range workflows {
		require.NoError(t, persist.Workflows().Save(context.Background(), workflow))
	}

	logger := slog.Default()

	trigger := &recordingTrigger{triggerType: models.TriggerTypeManual}
	reg := registry.NewRegistry(logger)
	reg.RegisterTrigger(trigger)

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pubsub, pubsub)
	t.Cleanup(func() { _ = bus.Close() })

	return &fixture{
		supervisor: NewSupervisor(persist, reg, bus, logger),
		persist:    persist,
		trigger:    trigger,
		bus:        bus,
	}
}

func (f *fixture) start(t *testing.T) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = f.supervisor.Start(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return f.supervisor.State() == StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	return cancel
}

func TestStart_RegistersEnabledWorkflows(t *testing.T) {
	first := testutil.CreateTestWorkflow()
	second := testutil.CreateTestWorkflow()
	disabled := testutil.CreateTestWorkflow(testutil.Disabled())

	f := newFixture(t, first, second, disabled)
	f.start(t)

	registered := f.trigger.registeredIDs()
	assert.ElementsMatch(t, []string{first.ID, second.ID}, registered)
	assert.NotContains(t, registered, disabled.ID)
}

func TestStart_StateProgression(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, StateUninitialized, f.supervisor.State())

	f.start(t)

	assert.Equal(t, StateRunning, f.supervisor.State())
}

func TestLifecycle_CreateRegistersWorkflow(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	workflow := testutil.CreateTestWorkflow()
	require.NoError(t, f.persist.Workflows().Save(context.Background(), workflow))

	require.NoError(t, f.bus.Publish(context.Background(), workflow.ID, events.WorkflowCreated{
		BaseEvent: events.NewBaseEvent(events.WorkflowCreatedEvent, workflow.ID),
	}))

	assert.Eventually(t, func() bool {
		return len(f.trigger.registeredIDs()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{workflow.ID}, f.trigger.registeredIDs())
}

func TestLifecycle_DisableUnregistersWorkflow(t *testing.T) {
	workflow := testutil.CreateTestWorkflow()

	f := newFixture(t, workflow)
	f.start(t)

	workflow.Enabled = false
	require.NoError(t, f.persist.Workflows().Save(context.Background(), workflow))

	require.NoError(t, f.bus.Publish(context.Background(), workflow.ID, events.WorkflowUpdated{
		BaseEvent: events.NewBaseEvent(events.WorkflowUpdatedEvent, workflow.ID),
		Enabled:   false,
	}))

	assert.Eventually(t, func() bool {
		return len(f.trigger.unregisteredIDs()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{workflow.ID}, f.trigger.unregisteredIDs())
}

func TestLifecycle_DeleteUnregistersWorkflow(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	require.NoError(t, f.bus.Publish(context.Background(), "wf-gone", events.WorkflowDeleted{
		BaseEvent: events.NewBaseEvent(events.WorkflowDeletedEvent, "wf-gone"),
	}))

	assert.Eventually(t, func() bool {
		return len(f.trigger.unregisteredIDs()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"wf-gone"}, f.trigger.unregisteredIDs())
}

func TestLifecycle_UnknownWorkflowIgnored(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	require.NoError(t, f.bus.Publish(context.Background(), "wf-ghost", events.WorkflowCreated{
		BaseEvent: events.NewBaseEvent(events.WorkflowCreatedEvent, "wf-ghost"),
	}))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.trigger.registeredIDs())
	assert.Equal(t, StateRunning, f.supervisor.State())
}
