package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/template"
)

// run is the walk state of one execution.
type run struct {
	engine    *Engine
	graph     *graph
	execution *models.Execution
	logger    *slog.Logger
}

// runSequence walks the NextActionID chain starting at action. A nil start
// (empty workflow or end of a branch) is a successful no-op.
func (r *run) runSequence(ctx context.Context, execCtx *models.ExecutionContext, action *models.Action) error {
	for action != nil {
		if err := r.runNode(ctx, execCtx, action); err != nil {
			return err
		}

		action = r.graph.next(action)
	}

	return nil
}

func (r *run) runNode(ctx context.Context, execCtx *models.ExecutionContext, action *models.Action) error {
	switch action.Type {
	case models.ActionTypeConditional:
		return r.runConditional(ctx, execCtx, action)
	case models.ActionTypeParallel:
		return r.runParallel(ctx, execCtx, action)
	case models.ActionTypeLoop:
		return r.runLoop(ctx, execCtx, action)
	default:
		return r.runLeaf(ctx, execCtx, action)
	}
}

// runLeaf dispatches one action to its handler, retrying synchronously per
// the action's retry policy. Every status transition of the step record is
// persisted as it happens.
func (r *run) runLeaf(ctx context.Context, execCtx *models.ExecutionContext, action *models.Action) error {
	step := r.newStep(action)

	if err := r.engine.executions.CreateStep(ctx, step); err != nil {
		return &TransientInfraError{Op: "create step", Err: err}
	}

	handler, err := r.engine.registry.ActionHandler(action.Type)
	if err != nil {
		return r.failStep(ctx, step, &ConfigurationError{ActionID: action.ID, Err: err})
	}

	execCtx.CurrentStepOrder = action.Order

	config := template.RenderConfig(action.Config, execCtx)
	step.Input = config

	if err := handler.ValidateConfig(config); err != nil {
		return r.failStep(ctx, step, &ConfigurationError{ActionID: action.ID, Err: err})
	}

	step.Status = models.StepStatusRunning
	step.StartedAt = time.Now().UTC()

	if err := r.engine.executions.UpdateStep(ctx, step); err != nil {
		return &TransientInfraError{Op: "update step", Err: err}
	}

	logger := r.logger.With("action_id", action.ID, "action_type", action.Type)
	logger.InfoContext(ctx, "Executing action")

	attempts := 1
	if action.Retry != nil && action.Retry.Attempts > 0 {
		attempts = action.Retry.Attempts
	}

	var (
		output  any
		execErr error
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		output, execErr = handler.Execute(ctx, *execCtx, config, logger)
		if execErr == nil {
			break
		}

		logger.WarnContext(ctx, "Action attempt failed",
			"attempt", attempt,
			"error", execErr)

		if action.Retry == nil {
			break
		}

		if attempt < attempts {
			step.RetryCount = attempt
			if err := r.engine.executions.UpdateStep(ctx, step); err != nil {
				return &TransientInfraError{Op: "update step", Err: err}
			}
		}

		// The policy delay applies after every failed attempt, the final
		// one included, so the step's wall time is attempts * delay.
		delay := time.Duration(action.Retry.DelayForAttempt(attempt)) * time.Millisecond
		if err := sleepContext(ctx, delay); err != nil {
			execErr = err
			break
		}
	}

	if execErr != nil {
		return r.failStep(ctx, step, &HandlerError{ActionID: action.ID, Attempts: step.RetryCount + 1, Err: execErr})
	}

	execCtx.StepResults[action.Order] = output
	step.Output = output

	if err := r.completeStep(ctx, step); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Action completed")

	return nil
}

// runConditional evaluates the templated expression and runs the children
// labeled with the winning branch. A branch with no children is a no-op.
func (r *run) runConditional(ctx context.Context, execCtx *models.ExecutionContext, action *models.Action) error {
	step := r.newStep(action)
	step.Status = models.StepStatusRunning
	step.StartedAt = time.Now().UTC()

	if err := r.engine.executions.CreateStep(ctx, step); err != nil {
		return &TransientInfraError{Op: "create step", Err: err}
	}

	expression, _ := action.Config["expression"].(string)
	if expression == "" {
		return r.failStep(ctx, step, &ConfigurationError{ActionID: action.ID, Err: errors.New("conditional requires an expression")})
	}

	result := template.EvaluateCondition(expression, template.ContextData(execCtx))

	branch := models.BranchFalse
	if result {
		branch = models.BranchTrue
	}

	r.logger.InfoContext(ctx, "Conditional evaluated",
		"action_id", action.ID,
		"branch", branch)

	for _, child := range r.graph.branchChildren(action.ID, branch) {
		if err := r.runSequence(ctx, execCtx, child); err != nil {
			return r.failStep(ctx, step, err)
		}
	}

	step.Output = map[string]any{"branch": branch}
	execCtx.StepResults[action.Order] = step.Output

	return r.completeStep(ctx, step)
}

// runParallel runs all children concurrently on cloned contexts. waitForAll
// (default true) requires every child to succeed; when false one success is
// enough. stopOnFirstFailure fails the node as soon as one child reports an
// error, without waiting for the remaining children; in-flight handlers are
// never interrupted and persist their own steps as they finish.
func (r *run) runParallel(ctx context.Context, execCtx *models.ExecutionContext, action *models.Action) error {
	step := r.newStep(action)
	step.Status = models.StepStatusRunning
	step.StartedAt = time.Now().UTC()

	if err := r.engine.executions.CreateStep(ctx, step); err != nil {
		return &TransientInfraError{Op: "create step", Err: err}
	}

	children := r.graph.children[action.ID]
	if len(children) == 0 {
		step.Output = map[string]any{"children": 0}
		return r.completeStep(ctx, step)
	}

	waitForAll := true
	if v, ok := action.Config["waitForAll"].(bool); ok {
		waitForAll = v
	}

	stopOnFirstFailure, _ := action.Config["stopOnFirstFailure"].(bool)

	type outcome struct {
		clone models.ExecutionContext
		err   error
	}

	// Buffered so children finishing after an early failure never block.
	results := make(chan outcome, len(children))

	for _, child := range children {
		clone := execCtx.Clone()

		go func(child *models.Action, clone models.ExecutionContext) {
			err := r.runSequence(ctx, &clone, child)
			results <- outcome{clone: clone, err: err}
		}(child, clone)
	}

	var (
		firstErr  error
		succeeded int
	)

	for range children {
		o := <-results

		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}

			if stopOnFirstFailure {
				// Remaining children keep running and persist their
				// own steps; the node does not wait for them.
				return r.failStep(ctx, step, firstErr)
			}

			continue
		}

		succeeded++

		for order, output := range o.clone.StepResults {
			execCtx.StepResults[order] = output
		}
	}

	failed := firstErr != nil && (waitForAll || succeeded == 0)
	if failed {
		return r.failStep(ctx, step, firstErr)
	}

	step.Output = map[string]any{"children": len(children), "succeeded": succeeded}
	execCtx.StepResults[action.Order] = step.Output

	return r.completeStep(ctx, step)
}

// runLoop resolves the items collection and runs the body child once per
// item with the item bound into the iteration's variables. The first failing
// iteration fails the node.
func (r *run) runLoop(ctx context.Context, execCtx *models.ExecutionContext, action *models.Action) error {
	step := r.newStep(action)
	step.Status = models.StepStatusRunning
	step.StartedAt = time.Now().UTC()

	if err := r.engine.executions.CreateStep(ctx, step); err != nil {
		return &TransientInfraError{Op: "create step", Err: err}
	}

	itemsPath, _ := action.Config["itemsPath"].(string)
	if itemsPath == "" {
		return r.failStep(ctx, step, &ConfigurationError{ActionID: action.ID, Err: errors.New("loop requires itemsPath")})
	}

	itemVariable, _ := action.Config["itemVariable"].(string)
	if itemVariable == "" {
		itemVariable = "item"
	}

	resolved, ok := template.Lookup(template.ContextData(execCtx), itemsPath)
	if !ok {
		return r.failStep(ctx, step, &ConfigurationError{ActionID: action.ID, Err: fmt.Errorf("itemsPath %q resolves to nothing", itemsPath)})
	}

	items, ok := resolved.([]any)
	if !ok {
		return r.failStep(ctx, step, &ConfigurationError{ActionID: action.ID, Err: fmt.Errorf("itemsPath %q is not a list", itemsPath)})
	}

	children := r.graph.children[action.ID]
	if len(children) == 0 {
		step.Output = map[string]any{"iterations": 0}
		return r.completeStep(ctx, step)
	}

	body := children[0]

	for i, item := range items {
		iterCtx := execCtx.Clone()
		iterCtx.Variables[itemVariable] = item
		iterCtx.Variables["loopIndex"] = i

		if err := r.runSequence(ctx, &iterCtx, body); err != nil {
			return r.failStep(ctx, step, fmt.Errorf("iteration %d: %w", i, err))
		}

		for order, output := range iterCtx.StepResults {
			execCtx.StepResults[order] = output
		}
	}

	step.Output = map[string]any{"iterations": len(items)}
	execCtx.StepResults[action.Order] = step.Output

	return r.completeStep(ctx, step)
}

func (r *run) newStep(action *models.Action) *models.ExecutionStep {
	return &models.ExecutionStep{
		ID:          "step-" + uuid.New().String()[:8],
		ExecutionID: r.execution.ID,
		ActionID:    action.ID,
		Order:       action.Order,
		Status:      models.StepStatusPending,
		StartedAt:   time.Now().UTC(),
	}
}

func (r *run) completeStep(ctx context.Context, step *models.ExecutionStep) error {
	now := time.Now().UTC()
	step.Status = models.StepStatusCompleted
	step.FinishedAt = &now

	if err := r.engine.executions.UpdateStep(ctx, step); err != nil {
		return &TransientInfraError{Op: "update step", Err: err}
	}

	return nil
}

// failStep records the failure on the step and returns the causing error so
// the walk unwinds.
func (r *run) failStep(ctx context.Context, step *models.ExecutionStep, cause error) error {
	now := time.Now().UTC()
	step.Status = models.StepStatusFailed
	step.Error = cause.Error()
	step.FinishedAt = &now

	if err := r.engine.executions.UpdateStep(ctx, step); err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist step failure",
			"step_id", step.ID,
			"error", err)
	}

	return cause
}
