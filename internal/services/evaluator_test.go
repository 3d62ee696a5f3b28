package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/talentgate/cv-evaluator/internal/config"
	"github.com/talentgate/cv-evaluator/internal/models"
)

type evaluatorFixture struct {
	evalRepo *fakeEvaluationRepo
	docRepo  *fakeDocumentRepo
	index    *fakeVectorIndex
	service  EvaluatorService
	dir      string
}

func newEvaluatorFixture(t *testing.T) *evaluatorFixture {
	t.Helper()

	evalRepo := newFakeEvaluationRepo()
	docRepo := newFakeDocumentRepo()
	index := &fakeVectorIndex{}
	provider := NewDemoProvider(8)
	logger := zap.NewNop()

	service := NewEvaluatorService(
		evalRepo,
		docRepo,
		provider,
		index,
		NewTextExtractor(),
		NewTextChunker(),
		NewScoringGenerator(provider, logger),
		config.RetrievalConfig{ChunkSize: 200, ChunkOverlap: 50, TopK: 3},
		logger,
	)

	return &evaluatorFixture{
		evalRepo: evalRepo,
		docRepo:  docRepo,
		index:    index,
		service:  service,
		dir:      t.TempDir(),
	}
}

func (f *evaluatorFixture) addDocument(t *testing.T, docType, content string) uuid.UUID {
	t.Helper()

	path := filepath.Join(f.dir, docType+".txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	doc := &models.Document{
		ID:       uuid.New(),
		Filename: docType + ".txt",
		FileType: docType,
		FilePath: path,
	}
	require.NoError(t, f.docRepo.Create(doc))
	return doc.ID
}

func (f *evaluatorFixture) addJob(t *testing.T, cvID, projectID uuid.UUID) uuid.UUID {
	t.Helper()

	eval := &models.Evaluation{
		ID:                uuid.New(),
		JobTitle:          "Backend Engineer",
		CVDocumentID:      cvID,
		ProjectDocumentID: projectID,
		Status:            models.StatusQueued,
	}
	require.NoError(t, f.evalRepo.Create(eval))
	return eval.ID
}

func TestEvaluateCandidateCompletes(t *testing.T) {
	f := newEvaluatorFixture(t)
	cvID := f.addDocument(t, models.DocumentTypeCV,
		"Experienced Node developer with 5 years experience, reduced latency by 30%.")
	projectID := f.addDocument(t, models.DocumentTypeProject,
		"Project includes unit tests and retry/backoff logic and a README.")
	jobID := f.addJob(t, cvID, projectID)

	require.NoError(t, f.service.EvaluateCandidate(context.Background(), jobID))

	eval, err := f.evalRepo.FindByID(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, eval.Status)

	require.NotNil(t, eval.CVMatchRate)
	assert.GreaterOrEqual(t, *eval.CVMatchRate, 0.0)
	assert.LessOrEqual(t, *eval.CVMatchRate, 1.0)

	require.NotNil(t, eval.ProjectScore)
	assert.GreaterOrEqual(t, *eval.ProjectScore, 1.0)
	assert.LessOrEqual(t, *eval.ProjectScore, 5.0)

	require.NotNil(t, eval.CVFeedback)
	assert.Contains(t, *eval.CVFeedback, "5 years")
	require.NotNil(t, eval.OverallSummary)
	assert.Nil(t, eval.FailureLog)

	assert.Equal(t,
		[]models.EvaluationStatus{models.StatusQueued, models.StatusProcessing, models.StatusCompleted},
		f.evalRepo.history(jobID),
	)
}

func TestEvaluateCandidateMissingDocumentFailsJob(t *testing.T) {
	f := newEvaluatorFixture(t)
	cvID := f.addDocument(t, models.DocumentTypeCV, "cv text")
	jobID := f.addJob(t, cvID, uuid.New())

	err := f.service.EvaluateCandidate(context.Background(), jobID)
	require.Error(t, err)

	eval, findErr := f.evalRepo.FindByID(jobID)
	require.NoError(t, findErr)
	assert.Equal(t, models.StatusFailed, eval.Status)
	assert.NotContains(t, f.evalRepo.history(jobID), models.StatusCompleted)

	require.NotNil(t, eval.FailureLog)
	var failure map[string]string
	require.NoError(t, json.Unmarshal([]byte(*eval.FailureLog), &failure))
	assert.Contains(t, failure["error"], "document not found")
	assert.NotEmpty(t, failure["stack"])
}

func TestEvaluateCandidateMissingFileFailsJob(t *testing.T) {
	f := newEvaluatorFixture(t)
	cvID := f.addDocument(t, models.DocumentTypeCV, "cv text")

	projectDoc := &models.Document{
		ID:       uuid.New(),
		FileType: models.DocumentTypeProject,
		FilePath: filepath.Join(f.dir, "deleted.pdf"),
	}
	require.NoError(t, f.docRepo.Create(projectDoc))
	jobID := f.addJob(t, cvID, projectDoc.ID)

	err := f.service.EvaluateCandidate(context.Background(), jobID)
	require.Error(t, err)

	eval, findErr := f.evalRepo.FindByID(jobID)
	require.NoError(t, findErr)
	assert.Equal(t, models.StatusFailed, eval.Status)

	require.NotNil(t, eval.FailureLog)
	assert.Contains(t, *eval.FailureLog, "document file missing")
}

func TestEvaluateCandidateIndexesChunksWithDualIdentities(t *testing.T) {
	f := newEvaluatorFixture(t)
	cvID := f.addDocument(t, models.DocumentTypeCV, strings.Repeat("cv content ", 50))
	projectID := f.addDocument(t, models.DocumentTypeProject, strings.Repeat("project content ", 50))
	jobID := f.addJob(t, cvID, projectID)

	require.NoError(t, f.service.EvaluateCandidate(context.Background(), jobID))

	require.Len(t, f.index.upserted, 2)

	for i, prefix := range []string{"cv_", "proj_"} {
		points := f.index.upserted[i]
		require.NotEmpty(t, points)
		for n, p := range points {
			// The point id is a plain UUID; the readable chunk id
			// rides in the payload.
			_, err := uuid.Parse(p.ID)
			assert.NoError(t, err)

			chunkID, _ := p.Payload["chunk_id"].(string)
			assert.True(t, strings.HasPrefix(chunkID, prefix),
				"chunk %d id %q should start with %q", n, chunkID, prefix)
			assert.NotEmpty(t, p.Payload["text"])
			assert.NotEmpty(t, p.Payload["document_id"])
		}
	}
}

func TestEvaluateCandidateTerminalStateIsMonotonic(t *testing.T) {
	f := newEvaluatorFixture(t)
	cvID := f.addDocument(t, models.DocumentTypeCV, "cv text")
	jobID := f.addJob(t, cvID, uuid.New())

	require.Error(t, f.service.EvaluateCandidate(context.Background(), jobID))

	// A second run against the failed job must not resurrect it.
	err := f.service.EvaluateCandidate(context.Background(), jobID)
	require.Error(t, err)

	eval, findErr := f.evalRepo.FindByID(jobID)
	require.NoError(t, findErr)
	assert.Equal(t, models.StatusFailed, eval.Status)

	history := f.evalRepo.history(jobID)
	assert.Equal(t, models.StatusFailed, history[len(history)-1])
	assert.NotContains(t, history, models.StatusCompleted)
}
