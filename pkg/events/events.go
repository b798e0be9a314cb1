// Package events defines event types for journey run lifecycle notifications.
package events

import (
	"time"

	"github.com/caretrail/journey/pkg/models"
)

type EventType string

// Topic carries all journey lifecycle and notification events.
const Topic = "caretrail.journey.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunTriggeredEvent EventType = "run.triggered"
	RunPausedEvent    EventType = "run.paused"
	RunResumedEvent   EventType = "run.resumed"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"

	// Message node delivery.
	MessageQueuedEvent EventType = "message.queued"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	JourneyID string    `json:"journey_id"`
	RunID     string    `json:"run_id"`
}

type RunTriggered struct {
	BaseEvent

	StartNodeID    *string               `json:"start_node_id"`
	PatientContext models.PatientContext `json:"patient_context,omitempty"`
}

func (e RunTriggered) GetType() EventType {
	return RunTriggeredEvent
}

type RunPaused struct {
	BaseEvent

	NodeID   string    `json:"node_id"`
	ResumeAt time.Time `json:"resume_at"`
}

func (e RunPaused) GetType() EventType {
	return RunPausedEvent
}

type RunResumed struct {
	BaseEvent

	NodeID *string `json:"node_id"`
}

func (e RunResumed) GetType() EventType {
	return RunResumedEvent
}

type RunCompleted struct {
	BaseEvent
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	Reason string `json:"reason"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

// MessageQueued is emitted when a MESSAGE node hands its payload to the
// delivery channel.
type MessageQueued struct {
	BaseEvent

	NodeID    string `json:"node_id"`
	PatientID string `json:"patient_id,omitempty"`
	Message   string `json:"message"`
}

func (e MessageQueued) GetType() EventType {
	return MessageQueuedEvent
}
