// Package delivery consumes queued message events from the event bus and
// performs the final hand-off to the patient notification channel.
package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/caretrail/journey/pkg/eventbus"
	"github.com/caretrail/journey/pkg/events"
)

// Consumer subscribes to message.queued events and delivers them. Delivery
// writes to the structured log; a real outbound channel (SMS, push, email
// gateway) plugs in here without touching the engine.
type Consumer struct {
	eventBus eventbus.EventBus
	logger   *slog.Logger
}

func NewConsumer(bus eventbus.EventBus, logger *slog.Logger) *Consumer {
	return &Consumer{
		eventBus: bus,
		logger:   logger.With("module", "delivery_consumer"),
	}
}

// Start registers the message handler and begins consuming. It returns once
// the subscription is established; handling runs on the bus's goroutine until
// the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	err := c.eventBus.Handle(events.MessageQueuedEvent, c.handleMessageQueued)
	if err != nil {
		return fmt.Errorf("failed to register message handler: %w", err)
	}

	err = c.eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	c.logger.InfoContext(ctx, "Delivery consumer started")

	return nil
}

func (c *Consumer) handleMessageQueued(ctx context.Context, event any) error {
	queued, ok := event.(*events.MessageQueued)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	c.logger.InfoContext(ctx, "Sent message to patient",
		"run_id", queued.RunID,
		"journey_id", queued.JourneyID,
		"node_id", queued.NodeID,
		"patient_id", queued.PatientID,
		"message", queued.Message)

	return nil
}
