package services

import (
	"testing"

	"github.com/caretrail/journey/pkg/models"
	"github.com/caretrail/journey/pkg/persistence/memory"
	"github.com/caretrail/journey/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJourney_Create(t *testing.T) {
	t.Parallel()

	service := NewJourney(memory.NewPersistence())

	journey := testutil.CreateTestJourney([]*models.JourneyNode{
		testutil.MessageNode("m1", "Hello", nil),
	}, func(j *models.Journey) { j.ID = "" })

	created, err := service.Create(t.Context(), journey)
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.UpdatedAt.IsZero())
}

func TestJourney_CreateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		journey *models.Journey
		wantErr error
	}{
		{
			name:    "nil journey",
			journey: nil,
			wantErr: ErrJourneyNil,
		},
		{
			name:    "missing name",
			journey: &models.Journey{Nodes: []*models.JourneyNode{testutil.MessageNode("m1", "x", nil)}},
			wantErr: ErrJourneyNameRequired,
		},
		{
			name:    "no nodes",
			journey: &models.Journey{Name: "Empty"},
			wantErr: ErrNodesRequired,
		},
		{
			name: "duplicate node ids",
			journey: &models.Journey{
				Name: "Dup",
				Nodes: []*models.JourneyNode{
					testutil.MessageNode("m1", "a", nil),
					testutil.MessageNode("m1", "b", nil),
				},
			},
			wantErr: ErrDuplicateNodeID,
		},
		{
			name: "unknown start node",
			journey: &models.Journey{
				Name:        "Bad start",
				StartNodeID: testutil.Ptr("missing"),
				Nodes:       []*models.JourneyNode{testutil.MessageNode("m1", "a", nil)},
			},
			wantErr: ErrStartNodeMissing,
		},
		{
			name: "dangling next reference",
			journey: &models.Journey{
				Name:  "Dangling",
				Nodes: []*models.JourneyNode{testutil.MessageNode("m1", "a", testutil.Ptr("gone"))},
			},
			wantErr: ErrDanglingNodeRef,
		},
		{
			name: "dangling branch reference",
			journey: &models.Journey{
				Name: "Dangling branch",
				Nodes: []*models.JourneyNode{
					testutil.ConditionalNode("c1", "risk", "=", "high", testutil.Ptr("gone"), nil),
				},
			},
			wantErr: ErrDanglingNodeRef,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			service := NewJourney(memory.NewPersistence())

			_, err := service.Create(t.Context(), tt.journey)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestJourney_FetchByID(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	service := NewJourney(store)

	journey := testutil.CreateTestJourney([]*models.JourneyNode{
		testutil.MessageNode("m1", "Hello", nil),
	})
	require.NoError(t, store.JourneyRepository().Save(t.Context(), journey))

	found, err := service.FetchByID(t.Context(), journey.ID)
	require.NoError(t, err)
	assert.Equal(t, journey.ID, found.ID)

	_, err = service.FetchByID(t.Context(), "missing")
	require.ErrorIs(t, err, ErrJourneyNotFound)
}

func TestJourney_GetRun(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	service := NewJourney(store)

	run := &models.JourneyRun{
		ID:        "r1",
		JourneyID: "j1",
		Status:    models.RunStatusInProgress,
	}
	require.NoError(t, store.RunRepository().Save(t.Context(), run))

	found, err := service.GetRun(t.Context(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusInProgress, found.Status)

	_, err = service.GetRun(t.Context(), "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestJourney_HealthCheck(t *testing.T) {
	t.Parallel()

	service := NewJourney(memory.NewPersistence())

	message, healthy := service.HealthCheck(t.Context())
	assert.True(t, healthy)
	assert.NotEmpty(t, message)
}
