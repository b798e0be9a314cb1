package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/caretrail/journey/pkg/eventbus"
	"github.com/caretrail/journey/pkg/events"
)

// EventBusDispatcher hands messages to downstream delivery consumers via the
// event bus.
type EventBusDispatcher struct {
	eventBus eventbus.EventBus
}

func NewEventBusDispatcher(eventBus eventbus.EventBus) *EventBusDispatcher {
	return &EventBusDispatcher{eventBus: eventBus}
}

func (d *EventBusDispatcher) Send(ctx context.Context, msg Message) error {
	event := events.MessageQueued{
		BaseEvent: events.BaseEvent{
			ID:        d.eventBus.GenerateID(),
			Type:      events.MessageQueuedEvent,
			Timestamp: time.Now().UTC(),
			JourneyID: msg.JourneyID,
			RunID:     msg.RunID,
		},
		NodeID:    msg.NodeID,
		PatientID: msg.PatientID(),
		Message:   msg.Body,
	}

	err := d.eventBus.Publish(ctx, msg.RunID, event)
	if err != nil {
		return fmt.Errorf("failed to publish message event for run %s: %w", msg.RunID, err)
	}

	return nil
}
