package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/hookflow/hookflow/pkg/cmd"
	"github.com/hookflow/hookflow/pkg/engine"
	"github.com/hookflow/hookflow/pkg/eventbus"
	"github.com/hookflow/hookflow/pkg/events"
	"github.com/hookflow/hookflow/pkg/log"
)

func workerCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.StringFlag{
			Name:    "worker-id",
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
	)

	return &cli.Command{
		Name:  "worker",
		Usage: "Consume trigger events and execute workflows",
		Flags: flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			persist, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persist.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus, err := cmd.NewEventBus(command.String("event-bus"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			eng := engine.NewEngine(persist, cmd.NewRegistry(logger), logger)

			bus.Handle(events.WorkflowTriggeredEvent, newTriggeredHandler(eng, bus, logger))

			if err := bus.Subscribe(ctx); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Worker running")
			<-ctx.Done()

			return nil
		},
	}
}

// newTriggeredHandler runs one workflow per WorkflowTriggered event and
// reports the outcome on the lifecycle topic. Disabled workflows are
// acknowledged without an execution record.
func newTriggeredHandler(eng *engine.Engine, bus eventbus.EventBus, logger *slog.Logger) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		triggered, ok := event.(*events.WorkflowTriggered)
		if !ok {
			return nil
		}

		started := time.Now()

		execution, err := eng.Execute(ctx, triggered.WorkflowID, triggered.TriggerData)
		duration := time.Since(started).Milliseconds()

		if errors.Is(err, engine.ErrWorkflowDisabled) {
			logger.InfoContext(ctx, "Skipping disabled workflow", "workflow_id", triggered.WorkflowID)
			return nil
		}

		if err != nil {
			executionID := ""
			if execution != nil {
				executionID = execution.ID
			}

			failed := events.ExecutionFailed{
				BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, triggered.WorkflowID),
				ExecutionID: executionID,
				Error:       err.Error(),
				DurationMS:  duration,
			}

			if pubErr := bus.Publish(ctx, triggered.WorkflowID, failed); pubErr != nil {
				logger.ErrorContext(ctx, "Failed to publish execution failure", "error", pubErr)
			}

			// The failure is recorded on the execution; acking keeps the
			// trigger topic from redelivering a permanently failing run.
			return nil
		}

		completed := events.ExecutionCompleted{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, triggered.WorkflowID),
			ExecutionID: execution.ID,
			Result:      execution.Result,
			DurationMS:  duration,
		}

		if pubErr := bus.Publish(ctx, triggered.WorkflowID, completed); pubErr != nil {
			logger.ErrorContext(ctx, "Failed to publish execution completion", "error", pubErr)
		}

		return nil
	}
}
