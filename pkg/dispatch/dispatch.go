// Package dispatch delivers MESSAGE node payloads to patients. The engine
// treats delivery as all-or-nothing: a returned error fails the run.
package dispatch

import (
	"context"

	"github.com/caretrail/journey/pkg/models"
)

// Message is one delivery request produced by a MESSAGE node.
type Message struct {
	RunID     string                `json:"run_id"`
	JourneyID string                `json:"journey_id"`
	NodeID    string                `json:"node_id"`
	Body      string                `json:"body"`
	Patient   models.PatientContext `json:"patient"`
}

// PatientID extracts the subject identifier used for addressing, when present.
func (m Message) PatientID() string {
	id, _ := m.Patient["id"].(string)

	return id
}

type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}
