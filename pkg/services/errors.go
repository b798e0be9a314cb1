// Package services provides journey and run management for the API layer.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrJourneyNameRequired = errors.New("journey name is required")
	ErrNodesRequired       = errors.New("journey must have at least one node")
	ErrStartNodeMissing    = errors.New("start_node_id does not reference a node in the journey")
	ErrDuplicateNodeID     = errors.New("journey contains duplicate node ids")
	ErrDanglingNodeRef     = errors.New("node references a node id that does not exist")
	ErrJourneyNil          = errors.New("journey cannot be nil")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrJourneyNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrStartNodeMissing) ||
		errors.Is(err, ErrDuplicateNodeID) ||
		errors.Is(err, ErrDanglingNodeRef) ||
		errors.Is(err, ErrJourneyNil)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Message: message,
		Err:     err,
	}
}
