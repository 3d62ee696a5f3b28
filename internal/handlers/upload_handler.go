package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentgate/cv-evaluator/internal/models"
	"github.com/talentgate/cv-evaluator/internal/repositories"
	"github.com/talentgate/cv-evaluator/internal/services"
)

type UploadHandler struct {
	docRepo     repositories.DocumentRepository
	storage     services.StorageService
	maxFileSize int64
	logger      *zap.Logger
}

func NewUploadHandler(
	docRepo repositories.DocumentRepository,
	storage services.StorageService,
	maxFileSize int64,
	logger *zap.Logger,
) *UploadHandler {
	return &UploadHandler{
		docRepo:     docRepo,
		storage:     storage,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// HandleUpload handles POST /upload. Accepts multipart fields "cv" and
// "project_report", saves each file and records a document row per file.
func (h *UploadHandler) HandleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to parse multipart form",
		})
	}

	files := form.File

	var responses []models.UploadResponse

	for _, part := range []struct {
		field   string
		docType string
	}{
		{"cv", models.DocumentTypeCV},
		{"project_report", models.DocumentTypeProject},
	} {
		field, docType := part.field, part.docType
		headers, exists := files[field]
		if !exists || len(headers) == 0 {
			continue
		}
		file := headers[0]

		if file.Size > h.maxFileSize {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("%s file too large. Max size: %d bytes", field, h.maxFileSize),
			})
		}

		filename, filePath, err := h.storage.SaveFile(file, docType)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("failed to save %s file: %v", field, err),
			})
		}

		doc := models.Document{
			ID:               uuid.New(),
			Filename:         filename,
			OriginalFileName: file.Filename,
			FileType:         docType,
			FilePath:         filePath,
			CreatedAt:        time.Now(),
			UpdatedAt:        time.Now(),
		}

		if err := h.docRepo.Create(&doc); err != nil {
			// Cleanup uploaded file if database insert fails
			if delErr := h.storage.DeleteFile(filename); delErr != nil {
				h.logger.Warn("failed to clean up orphaned upload",
					zap.String("filename", filename), zap.Error(delErr))
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": fmt.Sprintf("failed to save %s document record", field),
			})
		}

		responses = append(responses, models.UploadResponse{
			ID:           doc.ID.String(),
			Filename:     doc.Filename,
			OriginalName: doc.OriginalFileName,
			FileType:     doc.FileType,
		})
	}

	if len(responses) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No valid files uploaded. Please upload 'cv' and/or 'project_report' as PDF or text files.",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "Files uploaded successfully",
		"documents": responses,
	})
}
