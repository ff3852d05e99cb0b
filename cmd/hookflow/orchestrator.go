package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/hookflow/hookflow/pkg/cmd"
	"github.com/hookflow/hookflow/pkg/credentials"
	"github.com/hookflow/hookflow/pkg/log"
	"github.com/hookflow/hookflow/pkg/models"
	"github.com/hookflow/hookflow/pkg/persistence"
	"github.com/hookflow/hookflow/pkg/protocol"
	"github.com/hookflow/hookflow/pkg/providers/restpush"
	"github.com/hookflow/hookflow/pkg/queue"
	"github.com/hookflow/hookflow/pkg/registry"
	"github.com/hookflow/hookflow/pkg/supervisor"
	"github.com/hookflow/hookflow/pkg/triggers/manual"
	"github.com/hookflow/hookflow/pkg/triggers/push"
	"github.com/hookflow/hookflow/pkg/triggers/schedule"
	"github.com/hookflow/hookflow/pkg/triggers/webhook"
	"github.com/hookflow/hookflow/pkg/web"
)

func orchestratorCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.IntFlag{
			Name:    "port",
			Usage:   "HTTP boundary port",
			Value:   8085,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL written into webhook trigger configs",
			Value:   "http://localhost:8085",
			Sources: cli.EnvVars("BASE_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis address for the durable push job queue",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "mail-provider-url",
			Usage:   "REST gateway URL of the mail push connector",
			Sources: cli.EnvVars("MAIL_PROVIDER_URL"),
		},
		&cli.StringFlag{
			Name:    "chat-provider-url",
			Usage:   "REST gateway URL of the chat push connector",
			Sources: cli.EnvVars("CHAT_PROVIDER_URL"),
		},
	)

	return &cli.Command{
		Name:  "orchestrator",
		Usage: "Run trigger registration, the supervisor and the HTTP boundary",
		Flags: flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("orchestrator")

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

			reg := cmd.NewRegistry(logger)
			callback := cmd.NewTriggerCallback(bus, persist.Workflows(), logger)

			manualHandler := manual.NewHandler(callback, logger)
			webhookHandler := webhook.NewHandler(persist.Workflows(), callback, command.String("base-url"), logger)
			scheduleHandler := schedule.NewHandler(persist.Workflows(), callback, logger)

			reg.RegisterTrigger(manualHandler)
			reg.RegisterTrigger(webhookHandler)
			reg.RegisterTrigger(scheduleHandler)

			pushHandlers, err := setupPush(ctx, command, persist, callback, reg, logger)
			if err != nil {
				return err
			}

			defer reg.Close(ctx)

			sup := supervisor.NewSupervisor(persist, reg, bus, logger)

			go func() {
				if err := sup.Start(ctx); err != nil && ctx.Err() == nil {
					logger.ErrorContext(ctx, "Supervisor stopped", "error", err)
				}
			}()

			app := web.NewApp(web.NewHandlers(persist, manualHandler, webhookHandler, pushHandlers, logger))

			go func() {
				<-ctx.Done()

				if err := app.Shutdown(); err != nil {
					logger.Error("Failed to shut down HTTP boundary", "error", err)
				}
			}()

			logger.InfoContext(ctx, "Starting HTTP boundary", "port", command.Int("port"))

			return app.Listen(fmt.Sprintf(":%d", command.Int("port")))
		},
	}
}

// setupPush wires the push trigger stack: Redis-backed durable queue,
// credential store refreshing through each connector gateway, one handler
// per configured provider. Without a Redis URL the push trigger types stay
// unregistered and the rest of the orchestrator runs normally.
func setupPush(
	ctx context.Context,
	command *cli.Command,
	persist persistence.Persistence,
	callback protocol.TriggerCallback,
	reg *registry.Registry,
	logger *slog.Logger,
) (map[string]*push.Handler, error) {
	redisURL := command.String("redis-url")
	if redisURL == "" {
		logger.InfoContext(ctx, "No Redis URL configured, push triggers disabled")
		return nil, nil
	}

	jobs, err := queue.NewRedisQueue(ctx, redisURL, "", 0, queue.DefaultConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect push job queue: %w", err)
	}

	go func() {
		<-ctx.Done()

		if err := jobs.Close(); err != nil {
			logger.Error("Failed to close push job queue", "error", err)
		}
	}()

	specs := []struct {
		name        string
		triggerType models.TriggerType
		gatewayURL  string
	}{
		{"mail", models.TriggerTypePushMail, command.String("mail-provider-url")},
		{"chat", models.TriggerTypePushChat, command.String("chat-provider-url")},
	}

	handlers := make(map[string]*push.Handler)

	for _, spec := range specs {
		if spec.gatewayURL == "" {
			continue
		}

		gateway := restpush.NewProvider(spec.gatewayURL)

		creds := credentials.NewMemoryStore(
			func(ctx context.Context, userID, _ string, current protocol.Token) (protocol.Token, error) {
				return gateway.RefreshToken(ctx, userID, current)
			})

		handler := push.NewHandler(
			spec.triggerType,
			spec.name,
			gateway,
			creds,
			persist.Workflows(),
			jobs,
			callback,
			logger,
		)

		reg.RegisterTrigger(handler)

		if err := handler.StartConsumer(ctx); err != nil {
			return nil, fmt.Errorf("failed to start %s push consumer: %w", spec.name, err)
		}

		handler.StartRenewalSweep(ctx)
		handlers[spec.name] = handler

		logger.InfoContext(ctx, "Push provider wired", "provider", spec.name)
	}

	return handlers, nil
}
