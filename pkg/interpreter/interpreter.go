// Package interpreter evaluates a single journey node against a patient
// context and decides how the run proceeds. It is side-effect free: delay
// nodes produce a Pause decision instead of sleeping, and message delivery is
// the engine's responsibility.
package interpreter

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/caretrail/journey/pkg/models"
)

// DecisionKind discriminates the interpreter's verdicts.
type DecisionKind int

const (
	// DecisionContinue moves the run to Next (nil Next terminates it).
	DecisionContinue DecisionKind = iota
	// DecisionPause suspends the run for Delay, then resumes at Next.
	DecisionPause
)

// Decision is the outcome of evaluating one node.
type Decision struct {
	Kind  DecisionKind
	Next  *string
	Delay time.Duration
}

// ErrUnknownNodeType is returned for node types outside the MESSAGE / DELAY /
// CONDITIONAL union. The engine fails the run when it sees this.
var ErrUnknownNodeType = fmt.Errorf("unknown node type")

type Interpreter struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Interpreter {
	return &Interpreter{
		logger: logger.With("module", "interpreter"),
	}
}

// Evaluate decides the next step for a run positioned on the given node.
func (i *Interpreter) Evaluate(node *models.JourneyNode, patient models.PatientContext) (Decision, error) {
	switch node.Type {
	case models.NodeTypeMessage:
		return Decision{Kind: DecisionContinue, Next: node.Next}, nil
	case models.NodeTypeDelay:
		return Decision{
			Kind:  DecisionPause,
			Next:  node.Next,
			Delay: time.Duration(node.DurationSeconds) * time.Second,
		}, nil
	case models.NodeTypeConditional:
		if i.evaluateCondition(node, patient) {
			return Decision{Kind: DecisionContinue, Next: node.OnTrue}, nil
		}

		return Decision{Kind: DecisionContinue, Next: node.OnFalse}, nil
	default:
		return Decision{}, fmt.Errorf("%w: %q on node %s", ErrUnknownNodeType, node.Type, node.ID)
	}
}

func (i *Interpreter) evaluateCondition(node *models.JourneyNode, patient models.PatientContext) bool {
	if node.Condition == nil {
		i.logger.Warn("Conditional node has no condition, evaluating to false", "node_id", node.ID)

		return false
	}

	cond := node.Condition
	fieldValue, present := Lookup(patient, cond.Field)
	result := i.compare(node.ID, fieldValue, present, cond.Operator, cond.Value)

	i.logger.Debug("Evaluated condition",
		"node_id", node.ID,
		"field", cond.Field,
		"operator", cond.Operator,
		"value", cond.Value,
		"result", result)

	return result
}

// Lookup resolves a dot-separated path against the patient context. Missing
// keys and non-object intermediates yield (nil, false) rather than an error.
func Lookup(patient models.PatientContext, field string) (any, bool) {
	var current any = map[string]any(patient)

	for _, part := range strings.Split(field, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		value, exists := object[part]
		if !exists {
			return nil, false
		}

		current = value
	}

	if current == nil {
		return nil, false
	}

	return current, true
}

// compare applies the condition operator. An absent field value never matches
// except under "!=". An unrecognized operator is a warning, not a fault, and
// evaluates to false.
func (i *Interpreter) compare(nodeID string, fieldValue any, present bool, operator string, want any) bool {
	switch operator {
	case "=", "==":
		return present && equal(fieldValue, want)
	case "!=":
		return !present || !equal(fieldValue, want)
	case ">", "<", ">=", "<=":
		if !present {
			return false
		}

		return ordered(fieldValue, want, operator)
	default:
		i.logger.Warn("Unknown condition operator, evaluating to false",
			"node_id", nodeID,
			"operator", operator)

		return false
	}
}

func equal(a, b any) bool {
	if fa, ok := asNumber(a); ok {
		fb, ok := asNumber(b)

		return ok && fa == fb
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta == nil || tb == nil {
		return ta == tb
	}

	// Interface comparison panics when both sides hold the same uncomparable
	// type. JSON objects and arrays from patient contexts land here.
	if !ta.Comparable() || !tb.Comparable() {
		return reflect.DeepEqual(a, b)
	}

	return a == b
}

func ordered(a, b any, operator string) bool {
	fa, aNum := asNumber(a)
	fb, bNum := asNumber(b)

	if aNum && bNum {
		switch operator {
		case ">":
			return fa > fb
		case "<":
			return fa < fb
		case ">=":
			return fa >= fb
		case "<=":
			return fa <= fb
		}
	}

	sa, aStr := a.(string)
	sb, bStr := b.(string)

	if aStr && bStr {
		switch operator {
		case ">":
			return sa > sb
		case "<":
			return sa < sb
		case ">=":
			return sa >= sb
		case "<=":
			return sa <= sb
		}
	}

	// Incomparable types never satisfy an ordering operator.
	return false
}

// asNumber normalizes the numeric types that reach the interpreter: float64
// from JSON-decoded documents, plus the Go integer types used in tests and
// fixtures.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
