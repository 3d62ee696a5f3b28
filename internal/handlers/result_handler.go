package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/talentgate/cv-evaluator/internal/models"
	"github.com/talentgate/cv-evaluator/internal/repositories"
)

type ResultHandler struct {
	evalRepo repositories.EvaluationRepository
}

func NewResultHandler(evalRepo repositories.EvaluationRepository) *ResultHandler {
	return &ResultHandler{
		evalRepo: evalRepo,
	}
}

// HandleGetResult handles GET /result/:id. The result field is always
// present and null until the job completes; the failure log surfaces only
// at the top level of a failed job, never inside the result.
func (h *ResultHandler) HandleGetResult(c *fiber.Ctx) error {
	idParam := c.Params("id")
	evalID, err := uuid.Parse(idParam)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid evaluation ID format",
		})
	}

	evaluation, err := h.evalRepo.FindByID(evalID)
	if err != nil {
		if errors.Is(err, repositories.ErrEvaluationNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Evaluation not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to look up evaluation",
		})
	}

	response := models.ResultResponse{
		ID:     evaluation.ID.String(),
		Status: string(evaluation.Status),
	}

	if evaluation.Status == models.StatusCompleted {
		response.Result = &models.EvaluationData{
			CVMatchRate:     derefFloat(evaluation.CVMatchRate),
			CVFeedback:      derefString(evaluation.CVFeedback),
			ProjectScore:    derefFloat(evaluation.ProjectScore),
			ProjectFeedback: derefString(evaluation.ProjectFeedback),
			OverallSummary:  derefString(evaluation.OverallSummary),
		}
	}

	if evaluation.Status == models.StatusFailed {
		response.FailureLog = evaluation.FailureLog
	}

	return c.JSON(response)
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
