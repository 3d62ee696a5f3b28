package main

import (
	"context"
	"log"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentgate/cv-evaluator/internal/config"
	appLogger "github.com/talentgate/cv-evaluator/internal/logger"
	"github.com/talentgate/cv-evaluator/internal/services"
)

// Seeds the vector index with shared reference material (job descriptions,
// rubrics) so evaluations retrieve context beyond the candidate's own
// documents.
func main() {
	cfg := config.Load()

	zlog, err := appLogger.New(cfg.Server.Env)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	provider, err := services.NewProvider(cfg.Provider, cfg.Qdrant.VectorSize, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize provider", zap.Error(err))
	}

	vectorIndex := services.NewVectorIndexService(cfg.Qdrant, cfg.Provider.DemoMode, zlog)
	if err := vectorIndex.EnsureCollection(context.Background()); err != nil {
		zlog.Fatal("failed to initialize vector index", zap.Error(err))
	}

	extractor := services.NewTextExtractor()
	chunker := services.NewTextChunker()

	documents := []struct {
		Path    string
		DocType string
		Name    string
	}{
		{
			Path:    "./reference_docs/job_description.pdf",
			DocType: "job_description",
			Name:    "Job Description",
		},
		{
			Path:    "./reference_docs/case_study_brief.pdf",
			DocType: "case_study",
			Name:    "Case Study Brief",
		},
		{
			Path:    "./reference_docs/scoring_rubric.pdf",
			DocType: "scoring_rubric",
			Name:    "Scoring Rubric",
		},
	}

	ctx := context.Background()
	successCount := 0
	failCount := 0

	for _, doc := range documents {
		dlog := zlog.With(zap.String("name", doc.Name), zap.String("path", doc.Path))

		if _, err := os.Stat(doc.Path); os.IsNotExist(err) {
			dlog.Warn("file not found, skipping")
			failCount++
			continue
		}

		text, err := extractor.ExtractText(doc.Path)
		if err != nil {
			dlog.Error("text extraction failed", zap.Error(err))
			failCount++
			continue
		}

		chunks, err := chunker.ChunkText(text, cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
		if err != nil {
			dlog.Error("chunking failed", zap.Error(err))
			failCount++
			continue
		}

		points := make([]services.IndexPoint, 0, len(chunks))
		indexed := true
		for i, chunk := range chunks {
			vector, err := provider.Embed(ctx, chunk)
			if err != nil {
				dlog.Error("embedding failed", zap.Int("chunk", i), zap.Error(err))
				indexed = false
				break
			}
			points = append(points, services.IndexPoint{
				ID:     uuid.NewString(),
				Vector: vector,
				Payload: map[string]interface{}{
					"text":     chunk,
					"doc_type": doc.DocType,
					"name":     doc.Name,
				},
			})
		}
		if !indexed {
			failCount++
			continue
		}

		vectorIndex.UpsertPoints(ctx, points)
		dlog.Info("document ingested", zap.Int("chunks", len(points)))
		successCount++
	}

	zlog.Info("ingestion finished",
		zap.Int("succeeded", successCount),
		zap.Int("failed", failCount),
	)
}
