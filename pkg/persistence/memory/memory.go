// Package memory provides an in-memory persistence implementation for tests
// and single-process local development. The claim protocol is serialized by
// a mutex, mirroring the row-lock exclusivity of the SQL implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/caretrail/journey/pkg/models"
	"github.com/caretrail/journey/pkg/persistence"
	"github.com/google/uuid"
)

type Persistence struct {
	journeyRepo *JourneyRepository
	runRepo     *RunRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		journeyRepo: &JourneyRepository{journeys: make(map[string]*models.Journey)},
		runRepo:     &RunRepository{runs: make(map[string]*models.JourneyRun)},
	}
}

func (p *Persistence) JourneyRepository() persistence.JourneyRepository {
	return p.journeyRepo
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runRepo
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// JourneyRepository stores journeys in a map.
type JourneyRepository struct {
	mu       sync.RWMutex
	journeys map[string]*models.Journey
}

func (r *JourneyRepository) Save(_ context.Context, journey *models.Journey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if journey.CreatedAt.IsZero() {
		journey.CreatedAt = now
	}

	journey.UpdatedAt = now

	if journey.ID == "" {
		journey.ID = uuid.New().String()
	}

	r.journeys[journey.ID] = cloneJourney(journey)

	return nil
}

func (r *JourneyRepository) GetByID(_ context.Context, id string) (*models.Journey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	journey, ok := r.journeys[id]
	if !ok {
		return nil, nil
	}

	return cloneJourney(journey), nil
}

func (r *JourneyRepository) GetAll(_ context.Context) ([]*models.Journey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	journeys := make([]*models.Journey, 0, len(r.journeys))
	for _, journey := range r.journeys {
		journeys = append(journeys, cloneJourney(journey))
	}

	sort.Slice(journeys, func(i, j int) bool {
		return journeys[i].CreatedAt.After(journeys[j].CreatedAt)
	})

	return journeys, nil
}

// RunRepository stores runs in a map. All mutations take the write lock, so
// a claim is atomic with respect to concurrent claims and status writes.
type RunRepository struct {
	mu   sync.Mutex
	runs map[string]*models.JourneyRun
}

func (r *RunRepository) Save(_ context.Context, run *models.JourneyRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now
	r.runs[run.ID] = cloneRun(run)

	return nil
}

func (r *RunRepository) GetByID(_ context.Context, id string) (*models.JourneyRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, nil
	}

	return cloneRun(run), nil
}

func (r *RunRepository) UpdateStatus(_ context.Context, runID string, status models.RunStatus, nodeID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil
	}

	if run.Status.IsTerminal() {
		return persistence.NewRunError("UpdateStatus", runID, persistence.ErrRunTerminal)
	}

	run.Status = status
	run.CurrentNodeID = nodeID
	run.ResumeAt = nil
	run.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *RunRepository) MarkWaiting(_ context.Context, runID string, nodeID string, resumeAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil
	}

	if run.Status.IsTerminal() {
		return persistence.NewRunError("MarkWaiting", runID, persistence.ErrRunTerminal)
	}

	run.Status = models.RunStatusWaitingDelay
	run.CurrentNodeID = &nodeID
	run.ResumeAt = &resumeAt
	run.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *RunRepository) MarkFailed(_ context.Context, runID string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil
	}

	if run.Status.IsTerminal() {
		return persistence.NewRunError("MarkFailed", runID, persistence.ErrRunTerminal)
	}

	run.Status = models.RunStatusFailed
	run.CurrentNodeID = nil
	run.ResumeAt = nil
	run.FailureReason = &reason
	run.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *RunRepository) ClaimDue(_ context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]*models.JourneyRun, 0)

	for _, run := range r.runs {
		if run.Status == models.RunStatusWaitingDelay && run.ResumeAt != nil && !run.ResumeAt.After(now) {
			due = append(due, run)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ResumeAt.Before(*due[j].ResumeAt)
	})

	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]string, 0, len(due))

	for _, run := range due {
		run.Status = models.RunStatusInProgress
		run.ResumeAt = nil
		run.UpdatedAt = time.Now().UTC()
		claimed = append(claimed, run.ID)
	}

	return claimed, nil
}

func (r *RunRepository) RecoverStale(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var recovered int64

	for _, run := range r.runs {
		if run.Status == models.RunStatusInProgress && run.ResumeAt != nil && run.UpdatedAt.Before(cutoff) {
			run.Status = models.RunStatusWaitingDelay
			run.UpdatedAt = time.Now().UTC()
			recovered++
		}
	}

	return recovered, nil
}

func cloneJourney(journey *models.Journey) *models.Journey {
	copied := *journey
	copied.Nodes = make([]*models.JourneyNode, len(journey.Nodes))

	for i, node := range journey.Nodes {
		nodeCopy := *node
		copied.Nodes[i] = &nodeCopy
	}

	return &copied
}

func cloneRun(run *models.JourneyRun) *models.JourneyRun {
	copied := *run

	if run.PatientContext != nil {
		copied.PatientContext = make(models.PatientContext, len(run.PatientContext))
		for k, v := range run.PatientContext {
			copied.PatientContext[k] = v
		}
	}

	return &copied
}
