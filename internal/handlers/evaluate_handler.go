package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentgate/cv-evaluator/internal/models"
	"github.com/talentgate/cv-evaluator/internal/repositories"
	"github.com/talentgate/cv-evaluator/internal/services"
)

type EvaluationHandler struct {
	evalRepo   repositories.EvaluationRepository
	docRepo    repositories.DocumentRepository
	worker     services.WorkerService
	evaluator  services.EvaluatorService
	inlineMode bool
	logger     *zap.Logger
}

func NewEvaluationHandler(
	evalRepo repositories.EvaluationRepository,
	docRepo repositories.DocumentRepository,
	worker services.WorkerService,
	evaluator services.EvaluatorService,
	inlineMode bool,
	logger *zap.Logger,
) *EvaluationHandler {
	return &EvaluationHandler{
		evalRepo:   evalRepo,
		docRepo:    docRepo,
		worker:     worker,
		evaluator:  evaluator,
		inlineMode: inlineMode,
		logger:     logger,
	}
}

// HandleEvaluate handles POST /evaluate. Creates a queued job and returns
// its id immediately; the pipeline runs on the worker pool unless inline
// mode runs it on the request goroutine for local testing.
func (h *EvaluationHandler) HandleEvaluate(c *fiber.Ctx) error {
	var req models.EvaluateRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}

	if req.JobTitle == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "job_title is required",
		})
	}

	if req.CVDocumentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cv_document_id is required",
		})
	}

	if req.ProjectDocumentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "project_document_id is required",
		})
	}

	cvDocID, err := uuid.Parse(req.CVDocumentID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid cv_document_id format",
		})
	}

	projectDocID, err := uuid.Parse(req.ProjectDocumentID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid project_document_id format",
		})
	}

	if _, err := h.docRepo.FindByID(cvDocID); err != nil {
		if errors.Is(err, repositories.ErrDocumentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "CV document not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to look up CV document",
		})
	}

	if _, err := h.docRepo.FindByID(projectDocID); err != nil {
		if errors.Is(err, repositories.ErrDocumentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Project document not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to look up project document",
		})
	}

	evaluation := &models.Evaluation{
		ID:                uuid.New(),
		JobTitle:          req.JobTitle,
		CVDocumentID:      cvDocID,
		ProjectDocumentID: projectDocID,
		Status:            models.StatusQueued,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}

	if err := h.evalRepo.Create(evaluation); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create evaluation job",
		})
	}

	if h.inlineMode {
		if err := h.evaluator.EvaluateCandidate(context.Background(), evaluation.ID); err != nil {
			h.logger.Error("inline evaluation failed",
				zap.String("job_id", evaluation.ID.String()), zap.Error(err))
		}
	} else {
		h.worker.EnqueueJob(evaluation.ID)
	}

	return c.Status(fiber.StatusAccepted).JSON(models.EvaluateResponse{
		ID:     evaluation.ID.String(),
		Status: string(models.StatusQueued),
	})
}
