package worker_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/caretrail/journey/pkg/models"
	"github.com/caretrail/journey/pkg/persistence/memory"
	"github.com/caretrail/journey/pkg/testutil"
	"github.com/caretrail/journey/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveRun(t *testing.T, store *memory.Persistence, run *models.JourneyRun) {
	t.Helper()
	require.NoError(t, store.RunRepository().Save(t.Context(), run))
}

func TestSweeper_RecoversStuckRuns(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	sweeper := worker.NewSweeper(store, slog.Default())

	resumeAt := time.Now().UTC().Add(-time.Hour)

	stuck := &models.JourneyRun{
		ID:            "stuck",
		JourneyID:     "j1",
		Status:        models.RunStatusInProgress,
		CurrentNodeID: testutil.Ptr("wait"),
		ResumeAt:      &resumeAt,
	}
	saveRun(t, store, stuck)

	// Save refreshes updated_at, so a negative timeout pushes the cutoff past
	// it and the fresh row still counts as stale.
	recovered, err := sweeper.Recover(t.Context(), -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	after, err := store.RunRepository().GetByID(t.Context(), "stuck")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingDelay, after.Status)
	require.NotNil(t, after.ResumeAt)
}

func TestSweeper_LeavesHealthyRunsAlone(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	sweeper := worker.NewSweeper(store, slog.Default())

	resumeAt := time.Now().UTC().Add(time.Hour)

	// Freshly updated, inside the stale window.
	active := &models.JourneyRun{
		ID:            "active",
		JourneyID:     "j1",
		Status:        models.RunStatusInProgress,
		CurrentNodeID: testutil.Ptr("wait"),
		ResumeAt:      &resumeAt,
	}
	saveRun(t, store, active)

	// In progress but with no pending delay: not a worker casualty.
	executing := &models.JourneyRun{
		ID:            "executing",
		JourneyID:     "j1",
		Status:        models.RunStatusInProgress,
		CurrentNodeID: testutil.Ptr("m1"),
	}
	saveRun(t, store, executing)

	recovered, err := sweeper.Recover(t.Context(), worker.DefaultStaleTimeout)
	require.NoError(t, err)
	assert.Equal(t, int64(0), recovered)

	for _, id := range []string{"active", "executing"} {
		run, err := store.RunRepository().GetByID(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusInProgress, run.Status, id)
	}
}
