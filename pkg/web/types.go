// Package web provides HTTP request and response types for the journey API.
package web

import (
	"github.com/caretrail/journey/pkg/models"
)

// ConditionRequest represents a conditional node's comparison in a request body.
type ConditionRequest struct {
	Field    string `json:"field"    validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Value    any    `json:"value"`
}

// NodeRequest represents a single node in a journey definition request.
type NodeRequest struct {
	ID              string            `json:"id"                             validate:"required,min=1"`
	Type            string            `json:"type"                           validate:"required,oneof=MESSAGE DELAY CONDITIONAL"`
	Message         string            `json:"message,omitempty"`
	DurationSeconds int64             `json:"duration_seconds,omitempty"     validate:"min=0"`
	Condition       *ConditionRequest `json:"condition,omitempty"`
	Next            *string           `json:"next_node_id,omitempty"`
	OnTrue          *string           `json:"on_true_next_node_id,omitempty"`
	OnFalse         *string           `json:"on_false_next_node_id,omitempty"`
}

// CreateJourneyRequest represents the request body for creating a new journey.
type CreateJourneyRequest struct {
	Name        string        `json:"name"          validate:"required,min=3"`
	StartNodeID *string       `json:"start_node_id"`
	Nodes       []NodeRequest `json:"nodes"         validate:"required,min=1,dive"`
}

// ToModel converts the request into a journey model.
func (r *CreateJourneyRequest) ToModel() *models.Journey {
	nodes := make([]*models.JourneyNode, 0, len(r.Nodes))

	for _, n := range r.Nodes {
		node := &models.JourneyNode{
			ID:              n.ID,
			Type:            models.NodeType(n.Type),
			Message:         n.Message,
			DurationSeconds: n.DurationSeconds,
			Next:            n.Next,
			OnTrue:          n.OnTrue,
			OnFalse:         n.OnFalse,
		}

		if n.Condition != nil {
			node.Condition = &models.Condition{
				Field:    n.Condition.Field,
				Operator: n.Condition.Operator,
				Value:    n.Condition.Value,
			}
		}

		nodes = append(nodes, node)
	}

	return &models.Journey{
		Name:        r.Name,
		StartNodeID: r.StartNodeID,
		Nodes:       nodes,
	}
}

// TriggerRunRequest represents the request body for starting a journey run.
type TriggerRunRequest struct {
	PatientContext map[string]any `json:"patient_context" validate:"required"`
}

// TriggerRunResponse is returned when a run has been accepted for execution.
type TriggerRunResponse struct {
	RunID string `json:"run_id"`
}
