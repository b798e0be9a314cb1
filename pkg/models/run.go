package models

import "time"

// RunStatus represents the lifecycle state of a journey run.
type RunStatus string

const (
	RunStatusInProgress   RunStatus = "IN_PROGRESS"   // Actively advancing through nodes
	RunStatusWaitingDelay RunStatus = "WAITING_DELAY" // Paused on a DELAY node until ResumeAt
	RunStatusCompleted    RunStatus = "COMPLETED"     // Terminal, reached a nil next pointer
	RunStatusFailed       RunStatus = "FAILED"        // Terminal, aborted with a failure reason
)

// IsTerminal reports whether the status is final. Terminal runs are never
// mutated again.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// PatientContext carries the subject data a run was triggered with. It is
// captured at trigger time, immutable for the run's lifetime, and opaque to
// the engine except for dot-path lookups in conditional nodes.
type PatientContext map[string]any

// JourneyRun is the durable state of one journey execution for one patient.
//
// Invariants:
//   - ResumeAt is non-nil iff Status == WAITING_DELAY.
//   - A terminal status implies CurrentNodeID == nil.
type JourneyRun struct {
	ID             string         `json:"run_id"`
	JourneyID      string         `json:"journey_id"`
	Status         RunStatus      `json:"status"`
	CurrentNodeID  *string        `json:"current_node_id"`
	PatientContext PatientContext `json:"patient_context"`
	ResumeAt       *time.Time     `json:"resume_at,omitempty"`
	FailureReason  *string        `json:"failure_reason,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
