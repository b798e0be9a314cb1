package services

import (
	"context"
	"fmt"

	"github.com/caretrail/journey/pkg/models"
	"github.com/caretrail/journey/pkg/persistence"
)

var (
	// ErrJourneyNotFound is returned when a journey is not found.
	ErrJourneyNotFound = persistence.ErrJourneyNotFound
	// ErrRunNotFound is returned when a journey run is not found.
	ErrRunNotFound = persistence.ErrRunNotFound
)

// Journey handles journey-related business operations.
type Journey struct {
	persistence persistence.Persistence
}

// NewJourney creates a new journey service.
func NewJourney(persistence persistence.Persistence) *Journey {
	return &Journey{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (j *Journey) HealthCheck(ctx context.Context) (string, bool) {
	if j.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := j.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates and persists a new journey definition.
func (j *Journey) Create(ctx context.Context, journey *models.Journey) (*models.Journey, error) {
	if err := ValidateJourney(journey); err != nil {
		return nil, err
	}

	err := j.persistence.JourneyRepository().Save(ctx, journey)
	if err != nil {
		return nil, fmt.Errorf("failed to save journey: %w", err)
	}

	return journey, nil
}

// FetchByID retrieves a single journey by its ID.
func (j *Journey) FetchByID(ctx context.Context, journeyID string) (*models.Journey, error) {
	journey, err := j.persistence.JourneyRepository().GetByID(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch journey %s: %w", journeyID, err)
	}

	if journey == nil {
		return nil, ErrJourneyNotFound
	}

	return journey, nil
}

// GetAll retrieves all journey definitions.
func (j *Journey) GetAll(ctx context.Context) ([]*models.Journey, error) {
	journeys, err := j.persistence.JourneyRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list journeys: %w", err)
	}

	return journeys, nil
}

// GetRun retrieves a single journey run by its ID.
func (j *Journey) GetRun(ctx context.Context, runID string) (*models.JourneyRun, error) {
	run, err := j.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch run %s: %w", runID, err)
	}

	if run == nil {
		return nil, ErrRunNotFound
	}

	return run, nil
}

// ValidateJourney checks the structural integrity of a journey definition:
// node ids are unique, the start node exists, and every next-node reference
// points at a node in the same journey.
func ValidateJourney(journey *models.Journey) error {
	if journey == nil {
		return ErrJourneyNil
	}

	if journey.Name == "" {
		return ErrJourneyNameRequired
	}

	if len(journey.Nodes) == 0 {
		return ErrNodesRequired
	}

	seen := make(map[string]bool, len(journey.Nodes))

	for _, node := range journey.Nodes {
		if seen[node.ID] {
			return NewValidationError("ValidateJourney", "duplicate node id "+node.ID, ErrDuplicateNodeID)
		}

		seen[node.ID] = true
	}

	if journey.StartNodeID != nil && !seen[*journey.StartNodeID] {
		return NewValidationError("ValidateJourney", "unknown start node "+*journey.StartNodeID, ErrStartNodeMissing)
	}

	for _, node := range journey.Nodes {
		for _, ref := range []*string{node.Next, node.OnTrue, node.OnFalse} {
			if ref != nil && !seen[*ref] {
				return NewValidationError("ValidateJourney",
					fmt.Sprintf("node %s references unknown node %s", node.ID, *ref), ErrDanglingNodeRef)
			}
		}
	}

	return nil
}
