package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talentgate/cv-evaluator/internal/models"
	"github.com/talentgate/cv-evaluator/internal/repositories"
)

// fakeEvaluationRepo keeps jobs in memory and records every status the job
// passes through, so tests can assert on the whole transition history. It
// enforces the same terminal-state monotonicity as the real repository.
type fakeEvaluationRepo struct {
	mu            sync.Mutex
	evaluations   map[uuid.UUID]*models.Evaluation
	statusHistory map[uuid.UUID][]models.EvaluationStatus
}

func newFakeEvaluationRepo() *fakeEvaluationRepo {
	return &fakeEvaluationRepo{
		evaluations:   make(map[uuid.UUID]*models.Evaluation),
		statusHistory: make(map[uuid.UUID][]models.EvaluationStatus),
	}
}

func (f *fakeEvaluationRepo) Create(eval *models.Evaluation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *eval
	f.evaluations[eval.ID] = &copied
	f.statusHistory[eval.ID] = append(f.statusHistory[eval.ID], eval.Status)
	return nil
}

func (f *fakeEvaluationRepo) FindByID(id uuid.UUID) (*models.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	eval, ok := f.evaluations[id]
	if !ok {
		return nil, repositories.ErrEvaluationNotFound
	}
	copied := *eval
	return &copied, nil
}

func (f *fakeEvaluationRepo) SetStatus(id uuid.UUID, status models.EvaluationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	eval, ok := f.evaluations[id]
	if !ok || eval.Status.Terminal() {
		return repositories.ErrEvaluationNotFound
	}
	eval.Status = status
	f.statusHistory[id] = append(f.statusHistory[id], status)
	return nil
}

func (f *fakeEvaluationRepo) SetResult(id uuid.UUID, result *repositories.EvaluationResultData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	eval, ok := f.evaluations[id]
	if !ok || eval.Status.Terminal() {
		return repositories.ErrEvaluationNotFound
	}
	eval.Status = models.StatusCompleted
	eval.CVMatchRate = &result.CVMatchRate
	eval.CVFeedback = &result.CVFeedback
	eval.ProjectScore = &result.ProjectScore
	eval.ProjectFeedback = &result.ProjectFeedback
	eval.OverallSummary = &result.OverallSummary
	f.statusHistory[id] = append(f.statusHistory[id], models.StatusCompleted)
	return nil
}

func (f *fakeEvaluationRepo) SetFailure(id uuid.UUID, failureLog string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	eval, ok := f.evaluations[id]
	if !ok || eval.Status.Terminal() {
		return repositories.ErrEvaluationNotFound
	}
	eval.Status = models.StatusFailed
	eval.FailureLog = &failureLog
	f.statusHistory[id] = append(f.statusHistory[id], models.StatusFailed)
	return nil
}

func (f *fakeEvaluationRepo) FindPendingJobs(limit int) ([]models.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var jobs []models.Evaluation
	for _, eval := range f.evaluations {
		if eval.Status == models.StatusQueued && len(jobs) < limit {
			jobs = append(jobs, *eval)
		}
	}
	return jobs, nil
}

func (f *fakeEvaluationRepo) ReclaimStale(olderThan time.Duration) ([]models.Evaluation, error) {
	return nil, nil
}

func (f *fakeEvaluationRepo) history(id uuid.UUID) []models.EvaluationStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.EvaluationStatus(nil), f.statusHistory[id]...)
}

type fakeDocumentRepo struct {
	mu        sync.Mutex
	documents map[uuid.UUID]*models.Document
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{documents: make(map[uuid.UUID]*models.Document)}
}

func (f *fakeDocumentRepo) Create(document *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *document
	f.documents[document.ID] = &copied
	return nil
}

func (f *fakeDocumentRepo) FindByID(id uuid.UUID) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok {
		return nil, repositories.ErrDocumentNotFound
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocumentRepo) FindByIDs(ids []uuid.UUID) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var docs []models.Document
	for _, id := range ids {
		if doc, ok := f.documents[id]; ok {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

// fakeProvider scripts GenerateText responses and embeds with fixed-size
// zero vectors.
type fakeProvider struct {
	generateFunc func(prompt string) (string, error)
	embedErr     error
	vectorSize   int
}

func (f *fakeProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	if f.generateFunc != nil {
		return f.generateFunc(prompt)
	}
	return "", ErrDemoMode
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	size := f.vectorSize
	if size == 0 {
		size = 8
	}
	return make([]float32, size), nil
}

// fakeVectorIndex records upserts and serves scripted hits.
type fakeVectorIndex struct {
	mu       sync.Mutex
	upserted [][]IndexPoint
	hits     []SearchHit
}

func (f *fakeVectorIndex) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeVectorIndex) UpsertPoints(ctx context.Context, points []IndexPoint) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, points)
	ids := make([]string, 0, len(points))
	for _, p := range points {
		ids = append(ids, p.ID)
	}
	return ids
}

func (f *fakeVectorIndex) Search(ctx context.Context, vector []float32, limit int) []SearchHit {
	return f.hits
}
