package interpreter

import (
	"log/slog"
	"testing"
	"time"

	"github.com/caretrail/journey/pkg/models"
	"github.com/caretrail/journey/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_MessageNode(t *testing.T) {
	t.Parallel()

	interp := New(slog.Default())
	node := testutil.MessageNode("welcome", "Welcome aboard", testutil.Ptr("next"))

	decision, err := interp.Evaluate(node, models.PatientContext{"id": "p1"})
	require.NoError(t, err)

	assert.Equal(t, DecisionContinue, decision.Kind)
	require.NotNil(t, decision.Next)
	assert.Equal(t, "next", *decision.Next)
}

func TestEvaluate_MessageNodeTerminal(t *testing.T) {
	t.Parallel()

	interp := New(slog.Default())
	node := testutil.MessageNode("bye", "Goodbye", nil)

	decision, err := interp.Evaluate(node, models.PatientContext{})
	require.NoError(t, err)

	assert.Equal(t, DecisionContinue, decision.Kind)
	assert.Nil(t, decision.Next)
}

func TestEvaluate_DelayNode(t *testing.T) {
	t.Parallel()

	interp := New(slog.Default())
	node := testutil.DelayNode("wait", 300, testutil.Ptr("after"))

	decision, err := interp.Evaluate(node, models.PatientContext{})
	require.NoError(t, err)

	assert.Equal(t, DecisionPause, decision.Kind)
	assert.Equal(t, 300*time.Second, decision.Delay)
	require.NotNil(t, decision.Next)
	assert.Equal(t, "after", *decision.Next)
}

func TestEvaluate_UnknownNodeType(t *testing.T) {
	t.Parallel()

	interp := New(slog.Default())
	node := &models.JourneyNode{ID: "oops", Type: "WEBHOOK"}

	_, err := interp.Evaluate(node, models.PatientContext{})
	require.ErrorIs(t, err, ErrUnknownNodeType)
}

func TestEvaluate_ConditionalBranches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		operator string
		value    any
		patient  models.PatientContext
		wantNext string
	}{
		{
			name:     "equality match takes true branch",
			operator: "=",
			value:    "high",
			patient:  models.PatientContext{"risk": "high"},
			wantNext: "true-branch",
		},
		{
			name:     "equality mismatch takes false branch",
			operator: "=",
			value:    "high",
			patient:  models.PatientContext{"risk": "low"},
			wantNext: "false-branch",
		},
		{
			name:     "double equals is accepted",
			operator: "==",
			value:    "high",
			patient:  models.PatientContext{"risk": "high"},
			wantNext: "true-branch",
		},
		{
			name:     "absent field never equals",
			operator: "=",
			value:    "high",
			patient:  models.PatientContext{},
			wantNext: "false-branch",
		},
		{
			name:     "absent field satisfies not-equals",
			operator: "!=",
			value:    "high",
			patient:  models.PatientContext{},
			wantNext: "true-branch",
		},
		{
			name:     "unknown operator evaluates to false",
			operator: "~=",
			value:    "high",
			patient:  models.PatientContext{"risk": "high"},
			wantNext: "false-branch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			interp := New(slog.Default())
			node := testutil.ConditionalNode("check", "risk", tt.operator, tt.value,
				testutil.Ptr("true-branch"), testutil.Ptr("false-branch"))

			decision, err := interp.Evaluate(node, tt.patient)
			require.NoError(t, err)

			assert.Equal(t, DecisionContinue, decision.Kind)
			require.NotNil(t, decision.Next)
			assert.Equal(t, tt.wantNext, *decision.Next)
		})
	}
}

// Patient contexts are arbitrary JSON, so condition values and fields can
// hold objects and arrays. Equality on those must not crash the run.
func TestEvaluate_ConditionalStructuredValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		operator string
		value    any
		patient  models.PatientContext
		wantNext string
	}{
		{
			name:     "matching object takes true branch",
			operator: "=",
			value:    map[string]any{"lang": "en"},
			patient:  models.PatientContext{"prefs": map[string]any{"lang": "en"}},
			wantNext: "true-branch",
		},
		{
			name:     "mismatched object takes false branch",
			operator: "=",
			value:    map[string]any{"lang": "en"},
			patient:  models.PatientContext{"prefs": map[string]any{"lang": "fr"}},
			wantNext: "false-branch",
		},
		{
			name:     "mismatched object satisfies not-equals",
			operator: "!=",
			value:    map[string]any{"lang": "en"},
			patient:  models.PatientContext{"prefs": map[string]any{"lang": "fr"}},
			wantNext: "true-branch",
		},
		{
			name:     "matching array takes true branch",
			operator: "=",
			value:    []any{"a", "b"},
			patient:  models.PatientContext{"prefs": []any{"a", "b"}},
			wantNext: "true-branch",
		},
		{
			name:     "object against scalar takes false branch",
			operator: "=",
			value:    map[string]any{"lang": "en"},
			patient:  models.PatientContext{"prefs": "en"},
			wantNext: "false-branch",
		},
		{
			name:     "ordering on objects is false",
			operator: ">",
			value:    map[string]any{"lang": "en"},
			patient:  models.PatientContext{"prefs": map[string]any{"lang": "en"}},
			wantNext: "false-branch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			interp := New(slog.Default())
			node := testutil.ConditionalNode("check", "prefs", tt.operator, tt.value,
				testutil.Ptr("true-branch"), testutil.Ptr("false-branch"))

			decision, err := interp.Evaluate(node, tt.patient)
			require.NoError(t, err)

			assert.Equal(t, DecisionContinue, decision.Kind)
			require.NotNil(t, decision.Next)
			assert.Equal(t, tt.wantNext, *decision.Next)
		})
	}
}

func TestEvaluate_ConditionalNumericComparison(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		operator string
		value    any
		patient  models.PatientContext
		want     bool
	}{
		{"greater than true", ">", 65, models.PatientContext{"age": 70}, true},
		{"greater than false", ">", 65, models.PatientContext{"age": 60}, false},
		{"greater than equal boundary", ">", 65, models.PatientContext{"age": 65}, false},
		{"less than true", "<", 65, models.PatientContext{"age": 60}, true},
		{"gte boundary", ">=", 65, models.PatientContext{"age": 65}, true},
		{"lte boundary", "<=", 65, models.PatientContext{"age": 65}, true},
		{"json float against int", ">", 65, models.PatientContext{"age": float64(70)}, true},
		{"absent field ordering is false", ">", 65, models.PatientContext{}, false},
		{"non numeric value ordering is false", ">", 65, models.PatientContext{"age": "old"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			interp := New(slog.Default())
			node := testutil.ConditionalNode("check", "age", tt.operator, tt.value,
				testutil.Ptr("yes"), testutil.Ptr("no"))

			decision, err := interp.Evaluate(node, tt.patient)
			require.NoError(t, err)

			if tt.want {
				assert.Equal(t, "yes", *decision.Next)
			} else {
				assert.Equal(t, "no", *decision.Next)
			}
		})
	}
}

func TestEvaluate_ConditionalStringOrdering(t *testing.T) {
	t.Parallel()

	interp := New(slog.Default())
	node := testutil.ConditionalNode("check", "tier", ">", "bronze",
		testutil.Ptr("yes"), testutil.Ptr("no"))

	decision, err := interp.Evaluate(node, models.PatientContext{"tier": "silver"})
	require.NoError(t, err)
	assert.Equal(t, "yes", *decision.Next)
}

func TestEvaluate_ConditionalWithoutCondition(t *testing.T) {
	t.Parallel()

	interp := New(slog.Default())
	node := &models.JourneyNode{
		ID:      "broken",
		Type:    models.NodeTypeConditional,
		OnTrue:  testutil.Ptr("yes"),
		OnFalse: testutil.Ptr("no"),
	}

	decision, err := interp.Evaluate(node, models.PatientContext{})
	require.NoError(t, err)
	assert.Equal(t, "no", *decision.Next)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	patient := models.PatientContext{
		"id":  "p1",
		"age": 70,
		"vitals": map[string]any{
			"blood_pressure": map[string]any{
				"systolic": 140,
			},
		},
		"notes": nil,
	}

	tests := []struct {
		name        string
		field       string
		wantValue   any
		wantPresent bool
	}{
		{"top level", "age", 70, true},
		{"nested", "vitals.blood_pressure.systolic", 140, true},
		{"missing top level", "name", nil, false},
		{"missing nested", "vitals.heart_rate", nil, false},
		{"traversal through scalar", "age.years", nil, false},
		{"explicit null is absent", "notes", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			value, present := Lookup(patient, tt.field)
			assert.Equal(t, tt.wantPresent, present)
			assert.Equal(t, tt.wantValue, value)
		})
	}
}
