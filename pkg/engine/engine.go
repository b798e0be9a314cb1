// Package engine drives journey runs through their node graphs. Triggering
// and resuming both converge on the same advance loop; a run only leaves it
// when it pauses on a delay or reaches a terminal state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/caretrail/journey/pkg/dispatch"
	"github.com/caretrail/journey/pkg/eventbus"
	"github.com/caretrail/journey/pkg/events"
	"github.com/caretrail/journey/pkg/interpreter"
	"github.com/caretrail/journey/pkg/models"
	"github.com/caretrail/journey/pkg/otelhelper"
	"github.com/caretrail/journey/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Engine struct {
	persistence persistence.Persistence
	interpreter *interpreter.Interpreter
	dispatcher  dispatch.Dispatcher
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	logger      *slog.Logger
}

func New(
	store persistence.Persistence,
	dispatcher dispatch.Dispatcher,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		persistence: store,
		interpreter: interpreter.New(logger),
		dispatcher:  dispatcher,
		eventBus:    eventBus,
		tracer:      otel.Tracer("journey-engine"),
		logger:      logger.With("module", "engine"),
	}
}

// Trigger creates a new run for the journey positioned at its start node and
// kicks off processing in the background. It returns the run id as soon as
// the run row is durably persisted; failures during the continuation are
// logged and surface only through the run's status.
func (e *Engine) Trigger(ctx context.Context, journeyID string, patient models.PatientContext) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.trigger",
		attribute.String(otelhelper.JourneyIDKey, journeyID))
	defer span.End()

	journey, err := e.persistence.JourneyRepository().GetByID(ctx, journeyID)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", fmt.Errorf("failed to fetch journey %s: %w", journeyID, err)
	}

	if journey == nil {
		return "", fmt.Errorf("journey %s: %w", journeyID, persistence.ErrJourneyNotFound)
	}

	now := time.Now().UTC()
	run := &models.JourneyRun{
		ID:             uuid.New().String(),
		JourneyID:      journeyID,
		Status:         models.RunStatusInProgress,
		CurrentNodeID:  journey.StartNodeID,
		PatientContext: patient,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = e.persistence.RunRepository().Save(ctx, run)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", fmt.Errorf("failed to save run for journey %s: %w", journeyID, err)
	}

	logger := e.logger.With("run_id", run.ID, "journey_id", journeyID)
	logger.InfoContext(ctx, "Started journey run")

	e.publish(ctx, run.ID, events.RunTriggered{
		BaseEvent:      e.baseEvent(events.RunTriggeredEvent, journeyID, run.ID),
		StartNodeID:    journey.StartNodeID,
		PatientContext: patient,
	})

	// The continuation outlives the triggering request. Its failures are
	// persisted as a FAILED run status, never propagated to the caller.
	continuationCtx := context.WithoutCancel(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(continuationCtx, "Panic while processing journey run", "panic", r)

				e.failRun(continuationCtx, run.ID, journeyID, fmt.Sprintf("panic: %v", r))
			}
		}()

		err := e.processFromNode(continuationCtx, run.ID, journey.StartNodeID)
		if err != nil {
			logger.ErrorContext(continuationCtx, "Error processing journey run", "error", err)

			e.failRun(continuationCtx, run.ID, journeyID, err.Error())
		}
	}()

	return run.ID, nil
}

// Resume re-enters the advance loop for a run claimed by the resume worker.
// The run is expected to sit on a DELAY node whose wait has expired; any
// other node type is a recoverable inconsistency and processing continues at
// that node instead of failing.
func (e *Engine) Resume(ctx context.Context, runID string) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.resume",
		attribute.String(otelhelper.RunIDKey, runID))
	defer span.End()

	logger := e.logger.With("run_id", runID)
	logger.InfoContext(ctx, "Resuming journey run")

	run, journey, err := e.loadRunContext(ctx, runID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	if journey == nil {
		e.failRun(ctx, runID, run.JourneyID, fmt.Sprintf("journey %s not found", run.JourneyID))

		return nil
	}

	if run.Status.IsTerminal() {
		logger.WarnContext(ctx, "Run is already terminal, nothing to resume", "status", run.Status)

		return nil
	}

	if run.CurrentNodeID == nil {
		e.failRun(ctx, runID, run.JourneyID, "no current node id on resumed run")

		return nil
	}

	currentNode := journey.FindNode(*run.CurrentNodeID)
	if currentNode == nil {
		e.failRun(ctx, runID, run.JourneyID,
			fmt.Sprintf("current node %s not found in journey %s", *run.CurrentNodeID, journey.ID))

		return nil
	}

	if currentNode.Type == models.NodeTypeDelay {
		logger.InfoContext(ctx, "Delay completed, moving to next node",
			"node_id", currentNode.ID, "next_node_id", deref(currentNode.Next))

		err := e.persistence.RunRepository().UpdateStatus(ctx, runID, models.RunStatusInProgress, currentNode.Next)
		if err != nil {
			if persistence.IsRunTerminal(err) {
				logger.WarnContext(ctx, "Run reached a terminal state during resume")

				return nil
			}

			otelhelper.SetError(span, err)

			return fmt.Errorf("failed to advance run %s past delay: %w", runID, err)
		}

		e.publish(ctx, runID, events.RunResumed{
			BaseEvent: e.baseEvent(events.RunResumedEvent, run.JourneyID, runID),
			NodeID:    currentNode.Next,
		})

		return e.processFromNode(ctx, runID, currentNode.Next)
	}

	logger.WarnContext(ctx, "Expected delay node on resume, continuing processing",
		"node_id", currentNode.ID, "node_type", currentNode.Type)

	return e.processFromNode(ctx, runID, run.CurrentNodeID)
}

// processFromNode is the advance loop: evaluate the current node, persist the
// transition, repeat until the run pauses or terminates. A nil start node is
// immediate completion.
func (e *Engine) processFromNode(ctx context.Context, runID string, startNodeID *string) error {
	run, journey, err := e.loadRunContext(ctx, runID)
	if err != nil {
		return err
	}

	if startNodeID == nil {
		return e.completeRun(ctx, runID, run.JourneyID)
	}

	if journey == nil {
		e.failRun(ctx, runID, run.JourneyID, fmt.Sprintf("journey %s not found", run.JourneyID))

		return nil
	}

	runs := e.persistence.RunRepository()
	currentNodeID := *startNodeID

	for {
		node := journey.FindNode(currentNodeID)
		if node == nil {
			e.failRun(ctx, runID, journey.ID,
				fmt.Sprintf("node %s not found in journey %s", currentNodeID, journey.ID))

			return nil
		}

		decision, err := e.interpreter.Evaluate(node, run.PatientContext)
		if err != nil {
			e.failRun(ctx, runID, journey.ID, err.Error())

			return nil
		}

		if decision.Kind == interpreter.DecisionPause {
			resumeAt := time.Now().UTC().Add(decision.Delay)

			err := runs.MarkWaiting(ctx, runID, node.ID, resumeAt)
			if err != nil {
				if persistence.IsRunTerminal(err) {
					return nil
				}

				return fmt.Errorf("failed to pause run %s on node %s: %w", runID, node.ID, err)
			}

			e.logger.InfoContext(ctx, "Run paused on delay node",
				"run_id", runID, "node_id", node.ID, "resume_at", resumeAt)

			e.publish(ctx, runID, events.RunPaused{
				BaseEvent: e.baseEvent(events.RunPausedEvent, journey.ID, runID),
				NodeID:    node.ID,
				ResumeAt:  resumeAt,
			})

			// The worker re-enters via Resume once the delay expires.
			return nil
		}

		// Delivery happens before the position advances, so a failed send
		// fails the run instead of silently continuing.
		if node.Type == models.NodeTypeMessage {
			err := e.dispatcher.Send(ctx, dispatch.Message{
				RunID:     runID,
				JourneyID: journey.ID,
				NodeID:    node.ID,
				Body:      node.Message,
				Patient:   run.PatientContext,
			})
			if err != nil {
				e.failRun(ctx, runID, journey.ID,
					fmt.Sprintf("message dispatch failed on node %s: %v", node.ID, err))

				return nil
			}
		}

		err = runs.UpdateStatus(ctx, runID, models.RunStatusInProgress, decision.Next)
		if err != nil {
			if persistence.IsRunTerminal(err) {
				return nil
			}

			return fmt.Errorf("failed to advance run %s: %w", runID, err)
		}

		if decision.Next == nil {
			return e.completeRun(ctx, runID, journey.ID)
		}

		currentNodeID = *decision.Next
	}
}

// loadRunContext fetches the run and its journey. A missing run is an error;
// a missing journey is reported as (run, nil, nil) so callers can fail the
// run with a descriptive reason.
func (e *Engine) loadRunContext(ctx context.Context, runID string) (*models.JourneyRun, *models.Journey, error) {
	run, err := e.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch run %s: %w", runID, err)
	}

	if run == nil {
		return nil, nil, fmt.Errorf("run %s: %w", runID, persistence.ErrRunNotFound)
	}

	journey, err := e.persistence.JourneyRepository().GetByID(ctx, run.JourneyID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch journey %s: %w", run.JourneyID, err)
	}

	return run, journey, nil
}

func (e *Engine) completeRun(ctx context.Context, runID, journeyID string) error {
	err := e.persistence.RunRepository().UpdateStatus(ctx, runID, models.RunStatusCompleted, nil)
	if err != nil {
		if persistence.IsRunTerminal(err) {
			e.logger.WarnContext(ctx, "Run already terminal, completion not recorded", "run_id", runID)

			return nil
		}

		return fmt.Errorf("failed to complete run %s: %w", runID, err)
	}

	e.logger.InfoContext(ctx, "Journey run completed", "run_id", runID)

	e.publish(ctx, runID, events.RunCompleted{
		BaseEvent: e.baseEvent(events.RunCompletedEvent, journeyID, runID),
	})

	return nil
}

// failRun is best-effort: the run may already be gone or the store
// unreachable, in which case the recovery sweeper is the backstop.
func (e *Engine) failRun(ctx context.Context, runID, journeyID, reason string) {
	e.logger.ErrorContext(ctx, "Journey run failed", "run_id", runID, "reason", reason)

	err := e.persistence.RunRepository().MarkFailed(ctx, runID, reason)
	if err != nil {
		if persistence.IsRunTerminal(err) {
			e.logger.WarnContext(ctx, "Run already terminal, failure not recorded", "run_id", runID)
		} else {
			e.logger.ErrorContext(ctx, "Failed to persist run failure", "run_id", runID, "error", err)
		}

		return
	}

	e.publish(ctx, runID, events.RunFailed{
		BaseEvent: e.baseEvent(events.RunFailedEvent, journeyID, runID),
		Reason:    reason,
	})
}

func (e *Engine) baseEvent(eventType events.EventType, journeyID, runID string) events.BaseEvent {
	id := ""
	if e.eventBus != nil {
		id = e.eventBus.GenerateID()
	}

	return events.BaseEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		JourneyID: journeyID,
		RunID:     runID,
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	err := e.eventBus.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "key", key, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
