// Package persistence provides the data storage abstraction for journeys and runs.
package persistence

import (
	"context"
	"time"

	"github.com/caretrail/journey/pkg/models"
)

type Persistence interface {
	JourneyRepository() JourneyRepository
	RunRepository() RunRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// JourneyRepository stores immutable journey definitions.
type JourneyRepository interface {
	Save(ctx context.Context, journey *models.Journey) error
	// GetByID returns (nil, nil) when no journey with the given id exists.
	GetByID(ctx context.Context, id string) (*models.Journey, error)
	GetAll(ctx context.Context) ([]*models.Journey, error)
}

// RunRepository stores journey runs, the only mutable entity in the system.
// All cross-worker coordination happens through this interface; there is no
// in-process shared state between engine instances.
type RunRepository interface {
	Save(ctx context.Context, run *models.JourneyRun) error
	// GetByID returns (nil, nil) when no run with the given id exists.
	GetByID(ctx context.Context, id string) (*models.JourneyRun, error)

	// UpdateStatus transitions a run's status and position. A nil nodeID
	// clears the position (required for terminal states). ResumeAt is
	// cleared unless the status is WAITING_DELAY. A run already in a
	// terminal state is left untouched and reported as ErrRunTerminal.
	UpdateStatus(ctx context.Context, runID string, status models.RunStatus, nodeID *string) error

	// MarkWaiting pauses a run on a delay node: status WAITING_DELAY,
	// position at the delay node itself, resume_at set to the given time.
	// Returns ErrRunTerminal for runs that already reached a terminal state.
	MarkWaiting(ctx context.Context, runID string, nodeID string, resumeAt time.Time) error

	// MarkFailed transitions a run to FAILED with a reason and clears its
	// position. Returns ErrRunTerminal for runs already terminal; terminal
	// states are final.
	MarkFailed(ctx context.Context, runID string, reason string) error

	// ClaimDue atomically claims up to limit runs whose delay has expired
	// (status WAITING_DELAY and resume_at <= now), oldest due first. Claimed
	// runs are flipped to IN_PROGRESS with resume_at cleared before the
	// claim transaction commits, so no concurrent caller can claim the same
	// run. Returns the claimed run ids.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error)

	// RecoverStale resets IN_PROGRESS runs that still carry a resume_at and
	// have not been touched since the cutoff back to WAITING_DELAY, making
	// them claimable again. Returns the number of recovered runs. Safe to
	// run repeatedly; double recovery is harmless.
	RecoverStale(ctx context.Context, cutoff time.Time) (int64, error)
}
