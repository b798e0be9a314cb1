package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caretrail/journey/pkg/cmd"
	"github.com/caretrail/journey/pkg/delivery"
	"github.com/caretrail/journey/pkg/engine"
	"github.com/caretrail/journey/pkg/log"
	"github.com/caretrail/journey/pkg/otelhelper"
	"github.com/caretrail/journey/pkg/worker"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "journey-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker to resume due journey runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "dispatcher",
				Usage:   "Message dispatcher provider (eventbus, redis, log)",
				Value:   "eventbus",
				Sources: cli.EnvVars("DISPATCHER"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often to poll for due runs",
				Value:   5 * time.Second,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Maximum number of runs claimed per poll",
				Value:   worker.DefaultBatchSize,
				Sources: cli.EnvVars("BATCH_SIZE"),
			},
			&cli.DurationFlag{
				Name:    "stale-after",
				Usage:   "Age after which an in-progress delayed run is considered stuck",
				Value:   worker.DefaultStaleTimeout,
				Sources: cli.EnvVars("STALE_AFTER"),
			},
			&cli.StringFlag{
				Name:    "recovery-schedule",
				Usage:   "Cron schedule for the stuck-run recovery sweep",
				Value:   "@every 1m",
				Sources: cli.EnvVars("RECOVERY_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("journey-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing Journey Worker")

			if _, err := otelhelper.NewTracer(ctx, "journey-worker"); err != nil {
				logger.WarnContext(ctx, "Failed to initialize tracer", "error", err)
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			dispatcherProvider := command.String("dispatcher")
			dispatcher := cmd.NewDispatcher(ctx, dispatcherProvider, eventBus, logger)
			executionEngine := engine.New(persistence, dispatcher, eventBus, logger)

			// The eventbus dispatcher only queues messages; the worker owns
			// the consuming side that performs the delivery.
			if dispatcherProvider == "eventbus" {
				consumer := delivery.NewConsumer(eventBus, logger)
				if err := consumer.Start(ctx); err != nil {
					return err
				}
			}

			resumeWorker := worker.New(persistence, executionEngine, logger).
				WithBatchSize(command.Int("batch-size"))
			resumeWorker.Start(ctx, command.Duration("poll-interval"))

			sweeper := worker.NewSweeper(persistence, logger)
			staleAfter := command.Duration("stale-after")

			recovery := cron.New()

			_, err := recovery.AddFunc(command.String("recovery-schedule"), func() {
				if _, err := sweeper.Recover(ctx, staleAfter); err != nil {
					logger.ErrorContext(ctx, "Recovery sweep failed", "error", err)
				}
			})
			if err != nil {
				return err
			}

			recovery.Start()

			<-ctx.Done()

			logger.Info("Shutting down")
			recovery.Stop()
			resumeWorker.Stop()

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
