package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talentgate/cv-evaluator/internal/models"
)

var ErrEvaluationNotFound = errors.New("evaluation not found")

type EvaluationRepository interface {
	Create(eval *models.Evaluation) error
	FindByID(id uuid.UUID) (*models.Evaluation, error)
	SetStatus(id uuid.UUID, status models.EvaluationStatus) error
	SetResult(id uuid.UUID, result *EvaluationResultData) error
	SetFailure(id uuid.UUID, failureLog string) error
	FindPendingJobs(limit int) ([]models.Evaluation, error)
	ReclaimStale(olderThan time.Duration) ([]models.Evaluation, error)
}

type EvaluationResultData struct {
	CVMatchRate     float64
	CVFeedback      string
	ProjectScore    float64
	ProjectFeedback string
	OverallSummary  string
}

type evaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) Create(eval *models.Evaluation) error {
	if err := r.db.Create(eval).Error; err != nil {
		return fmt.Errorf("failed to create evaluation: %w", err)
	}
	return nil
}

func (r *evaluationRepository) FindByID(id uuid.UUID) (*models.Evaluation, error) {
	var eval models.Evaluation
	if err := r.db.Where("id = ?", id).First(&eval).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEvaluationNotFound
		}
		return nil, fmt.Errorf("failed to find evaluation: %w", err)
	}
	return &eval, nil
}

// SetStatus moves a job to a non-terminal status. The WHERE clause excludes
// terminal rows so completed/failed are never reversed, even by a racing
// writer.
func (r *evaluationRepository) SetStatus(id uuid.UUID, status models.EvaluationStatus) error {
	result := r.db.Model(&models.Evaluation{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses()).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update status: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrEvaluationNotFound
	}

	return nil
}

// SetResult marks the job completed and populates the result columns in a
// single row write.
func (r *evaluationRepository) SetResult(id uuid.UUID, data *EvaluationResultData) error {
	result := r.db.Model(&models.Evaluation{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses()).
		Updates(map[string]interface{}{
			"status":           models.StatusCompleted,
			"cv_match_rate":    data.CVMatchRate,
			"cv_feedback":      data.CVFeedback,
			"project_score":    data.ProjectScore,
			"project_feedback": data.ProjectFeedback,
			"overall_summary":  data.OverallSummary,
			"updated_at":       time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update result: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrEvaluationNotFound
	}

	return nil
}

// SetFailure marks the job failed with the causal error message and stack.
func (r *evaluationRepository) SetFailure(id uuid.UUID, failureLog string) error {
	result := r.db.Model(&models.Evaluation{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses()).
		Updates(map[string]interface{}{
			"status":      models.StatusFailed,
			"failure_log": failureLog,
			"updated_at":  time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update failure: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrEvaluationNotFound
	}

	return nil
}

func (r *evaluationRepository) FindPendingJobs(limit int) ([]models.Evaluation, error) {
	var evals []models.Evaluation
	err := r.db.
		Where("status = ?", models.StatusQueued).
		Order("created_at ASC").
		Limit(limit).
		Find(&evals).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find pending jobs: %w", err)
	}

	return evals, nil
}

// ReclaimStale re-queues jobs stuck in processing longer than olderThan,
// typically after a worker crash. Terminal rows are untouched.
func (r *evaluationRepository) ReclaimStale(olderThan time.Duration) ([]models.Evaluation, error) {
	cutoff := time.Now().Add(-olderThan)

	var stale []models.Evaluation
	err := r.db.
		Where("status = ? AND updated_at < ?", models.StatusProcessing, cutoff).
		Find(&stale).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stale jobs: %w", err)
	}

	if len(stale) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(stale))
	for _, eval := range stale {
		ids = append(ids, eval.ID)
	}

	result := r.db.Model(&models.Evaluation{}).
		Where("id IN ? AND status = ?", ids, models.StatusProcessing).
		Updates(map[string]interface{}{
			"status":     models.StatusQueued,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to reclaim stale jobs: %w", result.Error)
	}

	return stale, nil
}

func terminalStatuses() []models.EvaluationStatus {
	return []models.EvaluationStatus{models.StatusCompleted, models.StatusFailed}
}
