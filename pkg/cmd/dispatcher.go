package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/caretrail/journey/pkg/dispatch"
	"github.com/caretrail/journey/pkg/eventbus"
)

// NewDispatcher creates a message dispatcher based on the provider. The
// eventbus provider publishes queued-message events on the shared bus, redis
// pushes onto a notification queue, and log writes to the service logger.
func NewDispatcher(ctx context.Context, provider string, eventBus eventbus.EventBus, logger *slog.Logger) dispatch.Dispatcher {
	switch provider {
	case "eventbus":
		return dispatch.NewEventBusDispatcher(eventBus)
	case "redis":
		dispatcher, err := dispatch.NewRedisDispatcher(
			ctx,
			logger,
			os.Getenv("REDIS_URL"),
			os.Getenv("REDIS_PASSWORD"),
			os.Getenv("REDIS_NOTIFICATION_QUEUE"),
		)
		if err != nil {
			panic(fmt.Errorf("failed to create Redis dispatcher: %w", err))
		}

		return dispatcher
	case "log":
		return dispatch.NewLogDispatcher(logger)
	default:
		panic("Unsupported dispatcher provider: " + provider)
	}
}
