// Package schedule provides the schedule trigger. Cron expressions run on a
// shared cron runner; plain intervals run on a per-workflow ticker goroutine.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/persistence"
	"github.com/hookflow/hookflow/pkg/protocol"
)

var (
	ErrScheduleRequired  = errors.New("schedule trigger requires a cron expression or an interval")
	ErrScheduleAmbiguous = errors.New("schedule trigger accepts either a cron expression or an interval, not both")
	ErrInvalidCron       = errors.New("invalid cron expression")
	ErrInvalidInterval   = errors.New("invalid interval duration")
)

type registration struct {
	entryID cron.EntryID
	cancel  context.CancelFunc
}

// Handler fires workflows on cron schedules or fixed intervals. Registration
// is idempotent: registering a workflow that is already scheduled replaces
// the previous schedule.
type Handler struct {
	workflows persistence.WorkflowRepository
	callback  protocol.TriggerCallback
	logger    *slog.Logger
	cron      *cron.Cron
	parser    cron.Parser

	mu      sync.Mutex
	entries map[string]*registration
}

func NewHandler(workflows persistence.WorkflowRepository, callback protocol.TriggerCallback, logger *slog.Logger) *Handler {
	log := logger.With("module", "schedule_trigger")
	runner := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DefaultLogger),
	))
	runner.Start()

	return &Handler{
		workflows: workflows,
		callback:  callback,
		logger:    log,
		cron:      runner,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		entries:   make(map[string]*registration),
	}
}

func (h *Handler) Type() models.TriggerType { return models.TriggerTypeSchedule }

func (h *Handler) Validate(config map[string]any) error {
	cronExpr, _ := config["cron"].(string)
	_, hasInterval := config["interval"]

	switch {
	case cronExpr == "" && !hasInterval:
		return ErrScheduleRequired
	case cronExpr != "" && hasInterval:
		return ErrScheduleAmbiguous
	case cronExpr != "":
		if _, err := h.parser.Parse(cronExpr); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidCron, cronExpr)
		}
	default:
		if _, err := parseInterval(config); err != nil {
			return err
		}
	}

	return nil
}

// parseInterval accepts a Go duration string ("90s", "1h") or a plain number
// of seconds.
func parseInterval(config map[string]any) (time.Duration, error) {
	switch v := config["interval"].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, v)
		}

		return d, nil
	case float64:
		if v <= 0 {
			return 0, fmt.Errorf("%w: %v", ErrInvalidInterval, v)
		}

		return time.Duration(v * float64(time.Second)), nil
	case int:
		if v <= 0 {
			return 0, fmt.Errorf("%w: %v", ErrInvalidInterval, v)
		}

		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidInterval, v)
	}
}

// Register schedules the workflow. A previous registration for the same
// workflow is stopped first, so repeated registration never double-fires.
func (h *Handler) Register(ctx context.Context, workflow *models.Workflow) error {
	if err := h.Validate(workflow.Trigger.Config); err != nil {
		return err
	}

	h.stop(workflow.ID)

	cronExpr := workflow.TriggerConfigString("cron")
	if cronExpr != "" {
		return h.registerCron(ctx, workflow, cronExpr)
	}

	return h.registerInterval(ctx, workflow)
}

func (h *Handler) registerCron(ctx context.Context, workflow *models.Workflow, expr string) error {
	sched, err := h.parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidCron, expr)
	}

	workflowID := workflow.ID
	entryID := h.cron.Schedule(sched, cron.FuncJob(func() {
		h.fire(context.Background(), workflowID)
	}))

	h.mu.Lock()
	h.entries[workflowID] = &registration{entryID: entryID}
	h.mu.Unlock()

	nextRun := sched.Next(time.Now().UTC())
	if err := h.persistSchedule(ctx, workflowID, nextRun); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "Registered cron schedule",
		"workflow_id", workflowID,
		"cron", expr,
		"next_run", nextRun)

	return nil
}

func (h *Handler) registerInterval(ctx context.Context, workflow *models.Workflow) error {
	interval, err := parseInterval(workflow.Trigger.Config)
	if err != nil {
		return err
	}

	runImmediately := true
	if v, ok := workflow.Trigger.Config["runImmediately"].(bool); ok {
		runImmediately = v
	}

	runCtx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	h.entries[workflow.ID] = &registration{cancel: cancel}
	h.mu.Unlock()

	workflowID := workflow.ID

	go func() {
		if runImmediately {
			h.fire(runCtx, workflowID)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				h.fire(runCtx, workflowID)
			}
		}
	}()

	nextRun := time.Now().UTC().Add(interval)
	if runImmediately {
		nextRun = time.Now().UTC()
	}

	if err := h.persistSchedule(ctx, workflowID, nextRun); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "Registered interval schedule",
		"workflow_id", workflowID,
		"interval", interval.String(),
		"run_immediately", runImmediately)

	return nil
}

// Unregister stops the schedule and clears the persisted scheduling state.
// A workflow that was already deleted is tolerated; only the in-memory stop
// matters then. Non-schedule workflows are left untouched, the registry
// fans unregistration out to every handler.
func (h *Handler) Unregister(ctx context.Context, workflowID string) error {
	h.stop(workflowID)

	workflow, err := h.workflows.ByID(ctx, workflowID)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return nil
		}

		return err
	}

	if workflow.Trigger.Type != models.TriggerTypeSchedule {
		return nil
	}

	return h.workflows.UpdateTriggerConfig(ctx, workflowID, map[string]any{
		"scheduled": false,
		"nextRun":   nil,
	})
}

// Close stops the cron runner and all interval goroutines. Blocks until
// in-flight cron jobs finish.
func (h *Handler) Close(_ context.Context) error {
	h.mu.Lock()
	for id, reg := range h.entries {
		if reg.cancel != nil {
			reg.cancel()
		}
		delete(h.entries, id)
	}
	h.mu.Unlock()

	<-h.cron.Stop().Done()

	return nil
}

// Registered reports whether the workflow currently has an active schedule.
func (h *Handler) Registered(workflowID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.entries[workflowID]

	return ok
}

func (h *Handler) stop(workflowID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	reg, ok := h.entries[workflowID]
	if !ok {
		return
	}

	if reg.cancel != nil {
		reg.cancel()
	} else {
		h.cron.Remove(reg.entryID)
	}

	delete(h.entries, workflowID)
}

func (h *Handler) fire(ctx context.Context, workflowID string) {
	firedAt := time.Now().UTC()

	err := h.callback(ctx, workflowID, map[string]any{
		"scheduled":    true,
		"triggered_at": firedAt.Format(time.RFC3339),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "Schedule callback failed",
			"workflow_id", workflowID,
			"error", err)
	}

	// Advance the persisted nextRun so the config reflects the live schedule.
	h.advanceNextRun(ctx, workflowID)
}

func (h *Handler) advanceNextRun(ctx context.Context, workflowID string) {
	workflow, err := h.workflows.ByID(ctx, workflowID)
	if err != nil {
		return
	}

	var next time.Time

	if expr := workflow.TriggerConfigString("cron"); expr != "" {
		sched, err := h.parser.Parse(expr)
		if err != nil {
			return
		}
		next = sched.Next(time.Now().UTC())
	} else if interval, err := parseInterval(workflow.Trigger.Config); err == nil {
		next = time.Now().UTC().Add(interval)
	} else {
		return
	}

	if err := h.persistSchedule(ctx, workflowID, next); err != nil {
		h.logger.WarnContext(ctx, "Failed to persist next run time",
			"workflow_id", workflowID,
			"error", err)
	}
}

func (h *Handler) persistSchedule(ctx context.Context, workflowID string, nextRun time.Time) error {
	err := h.workflows.UpdateTriggerConfig(ctx, workflowID, map[string]any{
		"scheduled": true,
		"nextRun":   nextRun.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to persist schedule state for workflow %s: %w", workflowID, err)
	}

	return nil
}
