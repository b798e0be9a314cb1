// Package models defines the core domain models for journey execution.
package models

import "time"

// NodeType discriminates the journey node variants.
type NodeType string

const (
	NodeTypeMessage     NodeType = "MESSAGE"     // Deliver a message to the patient
	NodeTypeDelay       NodeType = "DELAY"       // Wait at least duration_seconds before continuing
	NodeTypeConditional NodeType = "CONDITIONAL" // Branch on patient context data
)

// Condition is the predicate evaluated by a CONDITIONAL node against the
// patient context. Field supports dot notation ("demographics.age").
type Condition struct {
	Field    string `json:"field"    validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Value    any    `json:"value"`
}

// JourneyNode is one step in a journey. The Type field selects which of the
// variant fields are meaningful:
//   - MESSAGE:     Message, Next
//   - DELAY:       DurationSeconds, Next
//   - CONDITIONAL: Condition, OnTrue, OnFalse
//
// A nil next pointer terminates the journey at that branch.
type JourneyNode struct {
	ID              string     `json:"id"   validate:"required"`
	Type            NodeType   `json:"type" validate:"required"`
	Message         string     `json:"message,omitempty"`
	DurationSeconds int64      `json:"duration_seconds,omitempty"`
	Condition       *Condition `json:"condition,omitempty"`
	Next            *string    `json:"next_node_id,omitempty"`
	OnTrue          *string    `json:"on_true_next_node_id,omitempty"`
	OnFalse         *string    `json:"on_false_next_node_id,omitempty"`
}

// Journey is an immutable template graph of nodes plus a start pointer.
// The model itself does not validate the graph; a dangling next pointer is
// a runtime fault when traversal reaches it.
type Journey struct {
	ID          string         `json:"id"`
	Name        string         `json:"name" validate:"required,min=3"`
	StartNodeID *string        `json:"start_node_id"`
	Nodes       []*JourneyNode `json:"nodes"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// FindNode returns the node with the given id, or nil when absent.
func (j *Journey) FindNode(nodeID string) *JourneyNode {
	for _, node := range j.Nodes {
		if node.ID == nodeID {
			return node
		}
	}

	return nil
}
