// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/caretrail/journey/pkg/models"
	"github.com/google/uuid"
)

// MessageNode creates a MESSAGE node with the given id, text, and next node.
func MessageNode(id, message string, next *string) *models.JourneyNode {
	return &models.JourneyNode{
		ID:      id,
		Type:    models.NodeTypeMessage,
		Message: message,
		Next:    next,
	}
}

// DelayNode creates a DELAY node with the given id, duration, and next node.
func DelayNode(id string, durationSeconds int64, next *string) *models.JourneyNode {
	return &models.JourneyNode{
		ID:              id,
		Type:            models.NodeTypeDelay,
		DurationSeconds: durationSeconds,
		Next:            next,
	}
}

// ConditionalNode creates a CONDITIONAL node with the given comparison and branches.
func ConditionalNode(id, field, operator string, value any, onTrue, onFalse *string) *models.JourneyNode {
	return &models.JourneyNode{
		ID:   id,
		Type: models.NodeTypeConditional,
		Condition: &models.Condition{
			Field:    field,
			Operator: operator,
			Value:    value,
		},
		OnTrue:  onTrue,
		OnFalse: onFalse,
	}
}

// CreateTestJourney creates a journey with the given nodes, starting at the
// first node. Overrides can adjust any field.
func CreateTestJourney(nodes []*models.JourneyNode, overrides ...func(*models.Journey)) *models.Journey {
	journey := &models.Journey{
		ID:    uuid.New().String(),
		Name:  "Test Journey",
		Nodes: nodes,
	}

	if len(nodes) > 0 {
		journey.StartNodeID = &nodes[0].ID
	}

	for _, override := range overrides {
		override(journey)
	}

	return journey
}

// WithStartNode sets the journey start node.
func WithStartNode(id *string) func(*models.Journey) {
	return func(j *models.Journey) {
		j.StartNodeID = id
	}
}

// WithName sets the journey name.
func WithName(name string) func(*models.Journey) {
	return func(j *models.Journey) {
		j.Name = name
	}
}

// Ptr returns a pointer to the given value.
func Ptr[T any](v T) *T {
	return &v
}
