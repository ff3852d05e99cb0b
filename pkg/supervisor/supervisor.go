// Package supervisor keeps the live trigger registrations converged with the
// persisted workflow set: batch registration at startup, a periodic health
// sweep, and targeted reconciliation on workflow lifecycle events.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hookflow/hookflow/pkg/eventbus"
	"github.com/hookflow/hookflow/pkg/events"
	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/persistence"
	"github.com/hookflow/hookflow/pkg/registry"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateStarting      State = "starting"
	StateRunning       State = "running"
)

const (
	restartDelay = 5 * time.Second
	healthTick   = 5 * time.Minute
)

// Supervisor owns the trigger registration lifecycle. Any top-level failure
// sends it back to starting after a fixed delay; it retries indefinitely and
// never crashes the process over a bad workflow.
type Supervisor struct {
	workflows persistence.WorkflowRepository
	registry  *registry.Registry
	bus       eventbus.EventBus
	logger    *slog.Logger

	mu    sync.RWMutex
	state State
}

func NewSupervisor(persist persistence.Persistence, reg *registry.Registry, bus eventbus.EventBus, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		workflows: persist.Workflows(),
		registry:  reg,
		bus:       bus,
		logger:    logger.With("module", "supervisor"),
		state:     StateUninitialized,
	}
}

func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Start runs the supervision loop until ctx is cancelled. Lifecycle event
// handlers are wired before the first registration pass so no create/update
// notification is lost during startup.
func (s *Supervisor) Start(ctx context.Context) error {
	s.bus.Handle(events.WorkflowCreatedEvent, s.onWorkflowChanged)
	s.bus.Handle(events.WorkflowUpdatedEvent, s.onWorkflowChanged)
	s.bus.Handle(events.WorkflowDeletedEvent, s.onWorkflowDeleted)

	if err := s.bus.Subscribe(ctx); err != nil {
		return err
	}

	for {
		s.setState(StateStarting)
		s.logger.InfoContext(ctx, "Supervisor starting")

		if err := s.registerAll(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Startup registration failed, retrying", "error", err)

			if err := sleepOrDone(ctx, restartDelay); err != nil {
				return err
			}

			continue
		}

		s.setState(StateRunning)
		s.logger.InfoContext(ctx, "Supervisor running")

		if err := s.runHealthLoop(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			s.logger.ErrorContext(ctx, "Supervisor failed, restarting", "error", err)

			if err := sleepOrDone(ctx, restartDelay); err != nil {
				return err
			}
		}
	}
}

// registerAll loads every enabled workflow and registers its trigger. A
// single workflow's failure is logged and skipped; only the repository read
// itself is fatal for the pass.
func (s *Supervisor) registerAll(ctx context.Context) error {
	workflows, err := s.workflows.Enabled(ctx)
	if err != nil {
		return err
	}

	byType := make(map[models.TriggerType][]*models.Workflow)
	for _, workflow := range workflows {
		byType[workflow.Trigger.Type] = append(byType[workflow.Trigger.Type], workflow)
	}

	for triggerType, group := range byType {
		s.logger.InfoContext(ctx, "Registering triggers",
			"trigger_type", triggerType,
			"count", len(group))

		for _, workflow := range group {
			if err := s.registry.RegisterWorkflowTrigger(ctx, workflow); err != nil {
				s.logger.ErrorContext(ctx, "Failed to register workflow trigger, skipping",
					"workflow_id", workflow.ID,
					"trigger_type", triggerType,
					"error", err)
			}
		}
	}

	return nil
}

func (s *Supervisor) runHealthLoop(ctx context.Context) error {
	ticker := time.NewTicker(healthTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.healthSweep(ctx)
		}
	}
}

// healthSweep re-registers every schedule- and push-type trigger.
// Registration is idempotent, so a healthy trigger is a cheap no-op and a
// silently dead one comes back. A failing workflow gets one explicit retry.
func (s *Supervisor) healthSweep(ctx context.Context) {
	sweepTypes := []models.TriggerType{
		models.TriggerTypeSchedule,
		models.TriggerTypePushMail,
		models.TriggerTypePushChat,
	}

	for _, triggerType := range sweepTypes {
		workflows, err := s.workflows.ByTriggerType(ctx, triggerType)
		if err != nil {
			s.logger.ErrorContext(ctx, "Health sweep failed to load workflows",
				"trigger_type", triggerType,
				"error", err)

			continue
		}

		for _, workflow := range workflows {
			if !workflow.Enabled {
				continue
			}

			if err := s.registry.RegisterWorkflowTrigger(ctx, workflow); err == nil {
				continue
			}

			if err := s.registry.RegisterWorkflowTrigger(ctx, workflow); err != nil {
				s.logger.ErrorContext(ctx, "Health sweep re-registration failed",
					"workflow_id", workflow.ID,
					"trigger_type", triggerType,
					"error", err)
			}
		}
	}
}

// onWorkflowChanged reconciles one workflow after a create or update event:
// enabled workflows are (re)registered, disabled ones unregistered across
// all trigger types.
func (s *Supervisor) onWorkflowChanged(ctx context.Context, event any) error {
	workflowID := lifecycleWorkflowID(event)
	if workflowID == "" {
		return nil
	}

	workflow, err := s.workflows.ByID(ctx, workflowID)
	if err != nil {
		s.logger.WarnContext(ctx, "Lifecycle event for unknown workflow",
			"workflow_id", workflowID,
			"error", err)

		return nil
	}

	if !workflow.Enabled {
		s.logger.InfoContext(ctx, "Workflow disabled, unregistering", "workflow_id", workflowID)
		s.registry.UnregisterWorkflow(ctx, workflowID)

		return nil
	}

	if err := s.registry.RegisterWorkflowTrigger(ctx, workflow); err != nil {
		s.logger.ErrorContext(ctx, "Failed to register workflow after lifecycle event",
			"workflow_id", workflowID,
			"error", err)
	}

	return nil
}

func (s *Supervisor) onWorkflowDeleted(ctx context.Context, event any) error {
	workflowID := lifecycleWorkflowID(event)
	if workflowID == "" {
		return nil
	}

	s.logger.InfoContext(ctx, "Workflow deleted, unregistering", "workflow_id", workflowID)
	s.registry.UnregisterWorkflow(ctx, workflowID)

	return nil
}

func lifecycleWorkflowID(event any) string {
	switch e := event.(type) {
	case *events.WorkflowCreated:
		return e.WorkflowID
	case *events.WorkflowUpdated:
		return e.WorkflowID
	case *events.WorkflowDeleted:
		return e.WorkflowID
	default:
		return ""
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
