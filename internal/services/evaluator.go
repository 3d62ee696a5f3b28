package services

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentgate/cv-evaluator/internal/config"
	"github.com/talentgate/cv-evaluator/internal/models"
	"github.com/talentgate/cv-evaluator/internal/repositories"
)

// maxArtifactInputRunes bounds the raw text handed to the scoring generator.
const maxArtifactInputRunes = 5000

// retrievalQueryPrefixRunes bounds the artifact text mixed into the
// retrieval query alongside the job title.
const retrievalQueryPrefixRunes = 1000

// EvaluatorService drives one job through the full pipeline and owns its
// terminal state transition.
type EvaluatorService interface {
	EvaluateCandidate(ctx context.Context, evalID uuid.UUID) error
}

type evaluatorService struct {
	evalRepo  repositories.EvaluationRepository
	docRepo   repositories.DocumentRepository
	provider  Provider
	index     VectorIndexService
	extractor TextExtractor
	chunker   TextChunker
	scoring   ScoringGenerator
	retrieval config.RetrievalConfig
	logger    *zap.Logger
}

func NewEvaluatorService(
	evalRepo repositories.EvaluationRepository,
	docRepo repositories.DocumentRepository,
	provider Provider,
	index VectorIndexService,
	extractor TextExtractor,
	chunker TextChunker,
	scoring ScoringGenerator,
	retrieval config.RetrievalConfig,
	logger *zap.Logger,
) EvaluatorService {
	return &evaluatorService{
		evalRepo:  evalRepo,
		docRepo:   docRepo,
		provider:  provider,
		index:     index,
		extractor: extractor,
		chunker:   chunker,
		scoring:   scoring,
		retrieval: retrieval,
		logger:    logger,
	}
}

// chunkRef carries both identities of one chunk: the human-readable id kept
// in the index payload and the UUID point id the index requires.
type chunkRef struct {
	ChunkID string
	PointID string
	Text    string
}

// EvaluateCandidate runs the pipeline: extract -> chunk -> embed/index ->
// retrieve -> score -> persist. Every abort path moves the job to failed
// with the causal error and stack in the failure log; completed and failed
// are never revisited.
func (e *evaluatorService) EvaluateCandidate(ctx context.Context, evalID uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during evaluation: %v", r)
			e.fail(evalID, err)
		}
	}()

	if err := e.evalRepo.SetStatus(evalID, models.StatusProcessing); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	log := e.logger.With(zap.String("job_id", evalID.String()))
	log.Info("starting evaluation")

	evaluation, err := e.evalRepo.FindByID(evalID)
	if err != nil {
		e.fail(evalID, err)
		return fmt.Errorf("failed to load evaluation: %w", err)
	}

	cvDoc, err := e.docRepo.FindByID(evaluation.CVDocumentID)
	if err != nil {
		e.fail(evalID, fmt.Errorf("cv document: %w", err))
		return fmt.Errorf("failed to resolve cv document: %w", err)
	}

	projectDoc, err := e.docRepo.FindByID(evaluation.ProjectDocumentID)
	if err != nil {
		e.fail(evalID, fmt.Errorf("project document: %w", err))
		return fmt.Errorf("failed to resolve project document: %w", err)
	}

	cvText, err := e.extractor.ExtractText(cvDoc.FilePath)
	if err != nil {
		e.fail(evalID, err)
		return fmt.Errorf("failed to extract cv text: %w", err)
	}

	projectText, err := e.extractor.ExtractText(projectDoc.FilePath)
	if err != nil {
		e.fail(evalID, err)
		return fmt.Errorf("failed to extract project text: %w", err)
	}

	cvChunks, err := e.buildChunks(cvText, "cv")
	if err != nil {
		e.fail(evalID, err)
		return fmt.Errorf("failed to chunk cv text: %w", err)
	}

	projectChunks, err := e.buildChunks(projectText, "proj")
	if err != nil {
		e.fail(evalID, err)
		return fmt.Errorf("failed to chunk project text: %w", err)
	}

	log.Info("chunked documents",
		zap.Int("cv_chunks", len(cvChunks)),
		zap.Int("project_chunks", len(projectChunks)),
	)

	// Indexing is best-effort; embed or upsert failures never abort the job.
	e.indexChunks(ctx, evaluation.CVDocumentID.String(), cvChunks)
	e.indexChunks(ctx, evaluation.ProjectDocumentID.String(), projectChunks)

	cvHits := e.retrieveContext(ctx, evaluation.JobTitle, cvText)
	projectHits := e.retrieveContext(ctx, evaluation.JobTitle, projectText)

	cvInput := ArtifactInput{
		RawText: truncateRunes(cvText, maxArtifactInputRunes),
		Hits:    cvHits,
	}
	projectInput := ArtifactInput{
		RawText: truncateRunes(projectText, maxArtifactInputRunes),
		Hits:    projectHits,
	}

	report := e.scoring.Score(ctx, cvInput, projectInput, evaluation.JobTitle)

	result := &repositories.EvaluationResultData{
		CVMatchRate:     report.CVMatchRate,
		CVFeedback:      report.CVFeedback,
		ProjectScore:    report.ProjectScore,
		ProjectFeedback: report.ProjectFeedback,
		OverallSummary:  report.OverallSummary,
	}

	if err := e.evalRepo.SetResult(evalID, result); err != nil {
		// Distinguished from mid-pipeline failures: scoring succeeded but
		// the terminal write was lost.
		log.Error("failed to persist completed result", zap.Error(err))
		e.fail(evalID, fmt.Errorf("result persistence failed: %w", err))
		return fmt.Errorf("failed to persist result: %w", err)
	}

	log.Info("evaluation completed",
		zap.Float64("cv_match_rate", report.CVMatchRate),
		zap.Float64("project_score", report.ProjectScore),
	)
	return nil
}

func (e *evaluatorService) buildChunks(text, prefix string) ([]chunkRef, error) {
	raw, err := e.chunker.ChunkText(text, e.retrieval.ChunkSize, e.retrieval.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	chunks := make([]chunkRef, 0, len(raw))
	for i, t := range raw {
		chunks = append(chunks, chunkRef{
			ChunkID: fmt.Sprintf("%s_%d_%s", prefix, i, uuid.NewString()),
			PointID: uuid.NewString(),
			Text:    t,
		})
	}
	return chunks, nil
}

// indexChunks embeds and upserts one chunk set. Failures are logged and
// swallowed; the index is retrieval context only.
func (e *evaluatorService) indexChunks(ctx context.Context, docID string, chunks []chunkRef) {
	if len(chunks) == 0 {
		return
	}

	points := make([]IndexPoint, 0, len(chunks))
	for _, c := range chunks {
		vector, err := e.provider.Embed(ctx, c.Text)
		if err != nil {
			e.logger.Warn("chunk embedding failed, skipping indexing for document",
				zap.String("document_id", docID),
				zap.Error(err),
			)
			return
		}
		points = append(points, IndexPoint{
			ID:     c.PointID,
			Vector: vector,
			Payload: map[string]interface{}{
				"text":        c.Text,
				"document_id": docID,
				"chunk_id":    c.ChunkID,
			},
		})
	}

	e.index.UpsertPoints(ctx, points)
}

// retrieveContext searches the index with a query built from the job title
// and a text prefix. Any failure yields no context rather than an error.
func (e *evaluatorService) retrieveContext(ctx context.Context, jobTitle, text string) []SearchHit {
	query := jobTitle + " " + truncateRunes(text, retrievalQueryPrefixRunes)

	vector, err := e.provider.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding failed, continuing without context", zap.Error(err))
		return nil
	}

	return e.index.Search(ctx, vector, e.retrieval.TopK)
}

// fail moves the job to failed with a JSON failure log carrying the error
// message and stack. A failing SetFailure is logged but can do no more.
func (e *evaluatorService) fail(evalID uuid.UUID, cause error) {
	payload, _ := json.Marshal(map[string]string{
		"error": cause.Error(),
		"stack": string(debug.Stack()),
	})

	if err := e.evalRepo.SetFailure(evalID, string(payload)); err != nil {
		e.logger.Error("failed to record job failure",
			zap.String("job_id", evalID.String()),
			zap.Error(err),
		)
	}
}
