package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJourney_FindNode(t *testing.T) {
	t.Parallel()

	journey := &Journey{
		ID: "j1",
		Nodes: []*JourneyNode{
			{ID: "a", Type: NodeTypeMessage},
			{ID: "b", Type: NodeTypeDelay},
		},
	}

	node := journey.FindNode("b")
	require.NotNil(t, node)
	assert.Equal(t, NodeTypeDelay, node.Type)

	assert.Nil(t, journey.FindNode("missing"))
}

func TestRunStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, RunStatusInProgress.IsTerminal())
	assert.False(t, RunStatusWaitingDelay.IsTerminal())
	assert.True(t, RunStatusCompleted.IsTerminal())
	assert.True(t, RunStatusFailed.IsTerminal())
}
