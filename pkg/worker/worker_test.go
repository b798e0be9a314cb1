package worker_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/caretrail/journey/pkg/dispatch"
	"github.com/caretrail/journey/pkg/engine"
	"github.com/caretrail/journey/pkg/models"
	"github.com/caretrail/journey/pkg/persistence/memory"
	"github.com/caretrail/journey/pkg/testutil"
	"github.com/caretrail/journey/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDispatcher struct {
	mu    sync.Mutex
	count int
}

func (d *countingDispatcher) Send(_ context.Context, _ dispatch.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++

	return nil
}

func (d *countingDispatcher) sent() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.count
}

func setupWorker(t *testing.T) (*worker.Worker, *memory.Persistence, *countingDispatcher) {
	t.Helper()

	store := memory.NewPersistence()
	dispatcher := &countingDispatcher{}
	eng := engine.New(store, dispatcher, nil, slog.Default())

	return worker.New(store, eng, slog.Default()), store, dispatcher
}

func saveWaitingRun(t *testing.T, store *memory.Persistence, runID, journeyID, nodeID string, resumeAt time.Time) {
	t.Helper()

	run := &models.JourneyRun{
		ID:             runID,
		JourneyID:      journeyID,
		Status:         models.RunStatusWaitingDelay,
		CurrentNodeID:  &nodeID,
		PatientContext: models.PatientContext{"id": "p-" + runID},
		ResumeAt:       &resumeAt,
	}
	require.NoError(t, store.RunRepository().Save(t.Context(), run))
}

func delayJourney(t *testing.T, store *memory.Persistence) *models.Journey {
	t.Helper()

	journey := testutil.CreateTestJourney([]*models.JourneyNode{
		testutil.DelayNode("wait", 60, testutil.Ptr("m1")),
		testutil.MessageNode("m1", "Delay is over", nil),
	})
	require.NoError(t, store.JourneyRepository().Save(t.Context(), journey))

	return journey
}

func TestProcessDueRuns_ResumesDueRuns(t *testing.T) {
	t.Parallel()

	w, store, dispatcher := setupWorker(t)
	journey := delayJourney(t, store)

	saveWaitingRun(t, store, "due-1", journey.ID, "wait", time.Now().UTC().Add(-time.Minute))
	saveWaitingRun(t, store, "due-2", journey.ID, "wait", time.Now().UTC().Add(-time.Second))

	w.ProcessDueRuns(t.Context())

	for _, runID := range []string{"due-1", "due-2"} {
		run, err := store.RunRepository().GetByID(t.Context(), runID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusCompleted, run.Status, runID)
		assert.Nil(t, run.ResumeAt)
	}

	assert.Equal(t, 2, dispatcher.sent())
}

func TestProcessDueRuns_IgnoresFutureRuns(t *testing.T) {
	t.Parallel()

	w, store, dispatcher := setupWorker(t)
	journey := delayJourney(t, store)

	saveWaitingRun(t, store, "future", journey.ID, "wait", time.Now().UTC().Add(time.Hour))

	w.ProcessDueRuns(t.Context())

	run, err := store.RunRepository().GetByID(t.Context(), "future")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingDelay, run.Status)
	require.NotNil(t, run.ResumeAt)
	assert.Equal(t, 0, dispatcher.sent())
}

func TestProcessDueRuns_RespectsBatchSize(t *testing.T) {
	t.Parallel()

	w, store, _ := setupWorker(t)
	w.WithBatchSize(1)

	journey := delayJourney(t, store)

	saveWaitingRun(t, store, "older", journey.ID, "wait", time.Now().UTC().Add(-2*time.Minute))
	saveWaitingRun(t, store, "newer", journey.ID, "wait", time.Now().UTC().Add(-time.Minute))

	w.ProcessDueRuns(t.Context())

	// The earlier resumeAt wins the single claim slot.
	older, err := store.RunRepository().GetByID(t.Context(), "older")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, older.Status)

	newer, err := store.RunRepository().GetByID(t.Context(), "newer")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingDelay, newer.Status)
}

func TestProcessDueRuns_FailureDoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	w, store, _ := setupWorker(t)
	journey := delayJourney(t, store)

	// This run points at a node the journey does not contain, so resuming it
	// fails while the rest of the batch still completes.
	saveWaitingRun(t, store, "broken", journey.ID, "missing-node", time.Now().UTC().Add(-2*time.Minute))
	saveWaitingRun(t, store, "healthy", journey.ID, "wait", time.Now().UTC().Add(-time.Minute))

	w.ProcessDueRuns(t.Context())

	broken, err := store.RunRepository().GetByID(t.Context(), "broken")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, broken.Status)
	require.NotNil(t, broken.FailureReason)

	healthy, err := store.RunRepository().GetByID(t.Context(), "healthy")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, healthy.Status)
}

func TestProcessDueRuns_ConcurrentWorkersClaimExclusively(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	dispatcher := &countingDispatcher{}
	eng := engine.New(store, dispatcher, nil, slog.Default())

	journey := delayJourney(t, store)

	const runCount = 20
	for i := 0; i < runCount; i++ {
		saveWaitingRun(t, store, "run-"+string(rune('a'+i)), journey.ID, "wait",
			time.Now().UTC().Add(-time.Minute))
	}

	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		w := worker.New(store, eng, slog.Default())

		wg.Add(1)

		go func() {
			defer wg.Done()
			w.ProcessDueRuns(context.Background())
		}()
	}

	wg.Wait()

	// Each run was resumed by exactly one worker, so exactly one message per
	// run was dispatched.
	assert.Equal(t, runCount, dispatcher.sent())
}

func TestWorker_StartAndStopAreIdempotent(t *testing.T) {
	t.Parallel()

	w, _, _ := setupWorker(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	w.Start(ctx, 10*time.Millisecond)
	w.Start(ctx, 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	w.Stop()
	w.Stop()
}
