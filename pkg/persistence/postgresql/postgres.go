// Package postgresql provides the PostgreSQL persistence implementation for
// journeys and journey runs.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/caretrail/journey/pkg/persistence"
	"github.com/caretrail/journey/pkg/persistence/sqlbase"

	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	journeyRepo *JourneyRepository
	runRepo     *RunRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs
// migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		journeyRepo: NewJourneyRepository(database, logger),
		runRepo:     NewRunRepository(database, logger),
	}, nil
}

func (p *Persistence) JourneyRepository() persistence.JourneyRepository {
	return p.journeyRepo
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runRepo
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// migrations returns the schema migration scripts keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE journeys (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				start_node_id VARCHAR(255),
				nodes JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE journey_runs (
				run_id VARCHAR(255) PRIMARY KEY,
				journey_id VARCHAR(255) NOT NULL REFERENCES journeys(id),
				status VARCHAR(32) NOT NULL,
				current_node_id VARCHAR(255),
				patient_context JSONB NOT NULL DEFAULT '{}',
				resume_at TIMESTAMP WITH TIME ZONE,
				failure_reason TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_journey_runs_journey_id ON journey_runs(journey_id);
			CREATE INDEX idx_journey_runs_status ON journey_runs(status);

			-- Index for the claim query (most important query)
			CREATE INDEX idx_journey_runs_due ON journey_runs(status, resume_at)
				WHERE status = 'WAITING_DELAY';

			-- Index for the recovery sweep
			CREATE INDEX idx_journey_runs_updated_at ON journey_runs(updated_at);
		`,
	}
}
