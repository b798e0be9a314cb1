// Package web provides HTTP handlers and REST API endpoints for journey management.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/caretrail/journey/pkg/models"
	"github.com/caretrail/journey/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Triggerer starts a new journey run for a patient and returns the run ID.
type Triggerer interface {
	Trigger(ctx context.Context, journeyID string, patient models.PatientContext) (string, error)
}

type APIHandlers struct {
	journeyService *services.Journey
	triggerer      Triggerer
	validator      *validator.Validate
}

func NewAPIHandlers(
	journeyService *services.Journey,
	triggerer Triggerer,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		journeyService: journeyService,
		triggerer:      triggerer,
		validator:      validator,
	}
}

func (h *APIHandlers) GetJourneys(c fiber.Ctx) error {
	journeys, err := h.journeyService.GetAll(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"journeys":    journeys,
		"total_count": len(journeys),
	})
}

func (h *APIHandlers) GetJourney(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	journey, err := h.journeyService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(journey)
}

func (h *APIHandlers) CreateJourney(c fiber.Ctx) error {
	var raw map[string]any
	if err := json.Unmarshal(c.Body(), &raw); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := validateJourneySchema(raw); err != nil {
		return badRequest(c, err.Error())
	}

	var req CreateJourneyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.journeyService.Create(c.Context(), req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// TriggerJourney accepts a patient context and starts a new run of the
// journey. The run is executed asynchronously, so the response is 202 with a
// Location header pointing at the run resource.
func (h *APIHandlers) TriggerJourney(c fiber.Ctx) error {
	journeyID := c.Params("journeyId")
	if journeyID == "" {
		return badRequest(c, "Journey ID is required")
	}

	var req TriggerRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	runID, err := h.triggerer.Trigger(c.Context(), journeyID, req.PatientContext)
	if err != nil {
		return handleServiceError(c, err)
	}

	c.Set("Location", "/journeys/runs/"+runID)

	return c.Status(fiber.StatusAccepted).JSON(TriggerRunResponse{RunID: runID})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	runID := c.Params("runId")
	if runID == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.journeyService.GetRun(c.Context(), runID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.journeyService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Journey API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Journey API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
