package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caretrail/journey/pkg/models"
	"github.com/google/uuid"
)

// JourneyRepository handles journey-related database operations.
type JourneyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewJourneyRepository creates a new journey repository.
func NewJourneyRepository(db *sql.DB, logger *slog.Logger) *JourneyRepository {
	return &JourneyRepository{db: db, logger: logger}
}

// Save stores a journey, generating an id when absent. Journey definitions
// are immutable in practice but Save is an upsert for operational repair.
func (r *JourneyRepository) Save(ctx context.Context, journey *models.Journey) error {
	now := time.Now().UTC()

	if journey.CreatedAt.IsZero() {
		journey.CreatedAt = now
	}

	journey.UpdatedAt = now

	if journey.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate journey ID: %w", err)
		}

		journey.ID = id.String()
	}

	nodesJSON, err := json.Marshal(journey.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal journey nodes: %w", err)
	}

	query := `
		INSERT INTO journeys (
			id, name, start_node_id, nodes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			start_node_id = EXCLUDED.start_node_id,
			nodes = EXCLUDED.nodes,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		journey.ID,
		journey.Name,
		journey.StartNodeID,
		nodesJSON,
		journey.CreatedAt,
		journey.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save journey: %w", err)
	}

	r.logger.DebugContext(ctx, "Journey saved", "journey_id", journey.ID)

	return nil
}

// GetByID returns the journey with the given id, or nil when absent.
func (r *JourneyRepository) GetByID(ctx context.Context, id string) (*models.Journey, error) {
	query := `
		SELECT
			id
		  , name
		  , start_node_id
		  , nodes
		  , created_at
		  , updated_at
		FROM journeys
		WHERE id = $1
	`

	journey, err := scanJourney(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan journey: %w", err)
	}

	return journey, nil
}

// GetAll returns all journeys, newest first.
func (r *JourneyRepository) GetAll(ctx context.Context) ([]*models.Journey, error) {
	query := `
		SELECT
			id
		  , name
		  , start_node_id
		  , nodes
		  , created_at
		  , updated_at
		FROM journeys
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query journeys: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	journeys := make([]*models.Journey, 0)

	for rows.Next() {
		journey, err := scanJourney(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journey: %w", err)
		}

		journeys = append(journeys, journey)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journeys: %w", err)
	}

	return journeys, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJourney(row rowScanner) (*models.Journey, error) {
	journey := &models.Journey{}

	var nodesJSON []byte

	err := row.Scan(
		&journey.ID,
		&journey.Name,
		&journey.StartNodeID,
		&nodesJSON,
		&journey.CreatedAt,
		&journey.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(nodesJSON, &journey.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal journey nodes: %w", err)
	}

	return journey, nil
}
