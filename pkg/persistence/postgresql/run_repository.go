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
	"github.com/caretrail/journey/pkg/persistence"
	"github.com/lib/pq"
)

// RunRepository handles journey run database operations, including the
// transactional claim protocol used by the resume worker.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// Save upserts a full run row.
func (r *RunRepository) Save(ctx context.Context, run *models.JourneyRun) error {
	now := time.Now().UTC()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	contextJSON, err := json.Marshal(run.PatientContext)
	if err != nil {
		return fmt.Errorf("failed to marshal patient context: %w", err)
	}

	query := `
		INSERT INTO journey_runs (
			run_id, journey_id, status, current_node_id, patient_context,
			resume_at, failure_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id)
		DO UPDATE SET
			status = EXCLUDED.status,
			current_node_id = EXCLUDED.current_node_id,
			resume_at = EXCLUDED.resume_at,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.JourneyID,
		run.Status,
		run.CurrentNodeID,
		contextJSON,
		run.ResumeAt,
		run.FailureReason,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save journey run: %w", err)
	}

	return nil
}

// GetByID returns the run with the given id, or nil when absent.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.JourneyRun, error) {
	query := `
		SELECT
			run_id
		  , journey_id
		  , status
		  , current_node_id
		  , patient_context
		  , resume_at
		  , failure_reason
		  , created_at
		  , updated_at
		FROM journey_runs
		WHERE run_id = $1
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan journey run: %w", err)
	}

	return run, nil
}

// UpdateStatus transitions a run's status and position. Terminal rows are
// left untouched and reported as ErrRunTerminal; terminal states are final.
func (r *RunRepository) UpdateStatus(ctx context.Context, runID string, status models.RunStatus, nodeID *string) error {
	query := `
		UPDATE journey_runs
		SET status = $2, current_node_id = $3, resume_at = NULL, updated_at = $4
		WHERE run_id = $1 AND status NOT IN ('COMPLETED', 'FAILED')
	`

	return r.exec(ctx, "UpdateStatus", runID, query, runID, status, nodeID, time.Now().UTC())
}

// MarkWaiting pauses a run on a delay node until resumeAt.
func (r *RunRepository) MarkWaiting(ctx context.Context, runID string, nodeID string, resumeAt time.Time) error {
	query := `
		UPDATE journey_runs
		SET status = $2, current_node_id = $3, resume_at = $4, updated_at = $5
		WHERE run_id = $1 AND status NOT IN ('COMPLETED', 'FAILED')
	`

	return r.exec(ctx, "MarkWaiting", runID, query,
		runID, models.RunStatusWaitingDelay, nodeID, resumeAt, time.Now().UTC())
}

// MarkFailed moves a run to FAILED, clearing its position.
func (r *RunRepository) MarkFailed(ctx context.Context, runID string, reason string) error {
	query := `
		UPDATE journey_runs
		SET status = $2, current_node_id = NULL, resume_at = NULL, failure_reason = $3, updated_at = $4
		WHERE run_id = $1 AND status NOT IN ('COMPLETED', 'FAILED')
	`

	return r.exec(ctx, "MarkFailed", runID, query,
		runID, models.RunStatusFailed, reason, time.Now().UTC())
}

// ClaimDue selects due WAITING_DELAY runs oldest first under FOR UPDATE row
// locks, flips them to IN_PROGRESS with resume_at cleared, and commits. The
// locks are held only for the duration of the claim transaction; processing
// happens afterwards with no lock at all. Concurrent claimers therefore see
// disjoint batches.
func (r *RunRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	selectQuery := `
		SELECT run_id
		FROM journey_runs
		WHERE status = $1 AND resume_at <= $2
		ORDER BY resume_at ASC
		LIMIT $3
		FOR UPDATE
	`

	rows, err := tx.QueryContext(ctx, selectQuery, models.RunStatusWaitingDelay, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select due runs: %w", err)
	}

	claimed := make([]string, 0)

	for rows.Next() {
		var runID string

		if err := rows.Scan(&runID); err != nil {
			_ = rows.Close()

			return nil, fmt.Errorf("failed to scan due run: %w", err)
		}

		claimed = append(claimed, runID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due runs: %w", err)
	}

	_ = rows.Close()

	if len(claimed) == 0 {
		return nil, nil
	}

	updateQuery := `
		UPDATE journey_runs
		SET status = $1, resume_at = NULL, updated_at = $2
		WHERE run_id = ANY($3)
	`

	_, err = tx.ExecContext(ctx, updateQuery,
		models.RunStatusInProgress, time.Now().UTC(), pq.Array(claimed))
	if err != nil {
		return nil, fmt.Errorf("failed to claim due runs: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}

	r.logger.DebugContext(ctx, "Due runs claimed", "count", len(claimed))

	return claimed, nil
}

// RecoverStale resets claimed runs whose processing never completed back to
// WAITING_DELAY. Guarded only by the staleness predicate; double recovery is
// harmless.
func (r *RunRepository) RecoverStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE journey_runs
		SET status = $1, updated_at = $2
		WHERE status = $3 AND resume_at IS NOT NULL AND updated_at < $4
	`

	result, err := r.db.ExecContext(ctx, query,
		models.RunStatusWaitingDelay, time.Now().UTC(), models.RunStatusInProgress, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale runs: %w", err)
	}

	recovered, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return recovered, nil
}

func (r *RunRepository) exec(ctx context.Context, op, runID, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s failed for run %s: %w", op, runID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		var status models.RunStatus

		err := r.db.QueryRowContext(ctx,
			`SELECT status FROM journey_runs WHERE run_id = $1`, runID).Scan(&status)
		if err == nil && status.IsTerminal() {
			return persistence.NewRunError(op, runID, persistence.ErrRunTerminal)
		}

		r.logger.DebugContext(ctx, "Run update touched no rows", "op", op, "run_id", runID)
	}

	return nil
}

func scanRun(row rowScanner) (*models.JourneyRun, error) {
	run := &models.JourneyRun{}

	var contextJSON []byte

	err := row.Scan(
		&run.ID,
		&run.JourneyID,
		&run.Status,
		&run.CurrentNodeID,
		&contextJSON,
		&run.ResumeAt,
		&run.FailureReason,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(contextJSON, &run.PatientContext)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal patient context: %w", err)
	}

	return run, nil
}
