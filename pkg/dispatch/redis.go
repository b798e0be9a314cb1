package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultQueue = "caretrail:notifications"

// RedisDispatcher pushes messages onto a Redis list consumed by the
// notification delivery fleet.
type RedisDispatcher struct {
	client redis.UniversalClient
	queue  string
	logger *slog.Logger
}

func NewRedisDispatcher(ctx context.Context, logger *slog.Logger, addr, password, queue string) (*RedisDispatcher, error) {
	if queue == "" {
		queue = defaultQueue
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "queue", queue)

	return &RedisDispatcher{
		client: client,
		queue:  queue,
		logger: logger.With("module", "redis_dispatcher", "queue", queue),
	}, nil
}

func (d *RedisDispatcher) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message for run %s: %w", msg.RunID, err)
	}

	err = d.client.LPush(ctx, d.queue, payload).Err()
	if err != nil {
		return fmt.Errorf("failed to push message to queue %s: %w", d.queue, err)
	}

	d.logger.DebugContext(ctx, "Message queued for delivery",
		"run_id", msg.RunID,
		"node_id", msg.NodeID,
		"patient_id", msg.PatientID())

	return nil
}

func (d *RedisDispatcher) Close() error {
	return d.client.Close()
}
