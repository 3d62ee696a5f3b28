package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ArtifactInput is the structured material scored for one artifact: a
// bounded slice of raw text plus retrieved context hits.
type ArtifactInput struct {
	RawText string
	Hits    []SearchHit
}

// ScoreReport is the combined evaluation result produced exactly once per
// completed job.
type ScoreReport struct {
	CVMatchRate     float64
	CVFeedback      string
	ProjectScore    float64
	ProjectFeedback string
	OverallSummary  string
}

// ScoringGenerator turns candidate material into a ScoreReport through the
// generative backend, with a deterministic heuristic fallback per artifact.
type ScoringGenerator interface {
	Score(ctx context.Context, cv, project ArtifactInput, jobTitle string) ScoreReport
}

type scoringGenerator struct {
	provider      Provider
	promptBuilder *PromptBuilder
	logger        *zap.Logger
}

func NewScoringGenerator(provider Provider, logger *zap.Logger) ScoringGenerator {
	return &scoringGenerator{
		provider:      provider,
		promptBuilder: NewPromptBuilder(),
		logger:        logger,
	}
}

// Score never fails: provider errors and schema-invalid output are caught
// here and downgraded to the heuristic scorer, independently per artifact.
func (s *scoringGenerator) Score(ctx context.Context, cv, project ArtifactInput, jobTitle string) ScoreReport {
	cvPrompt := s.promptBuilder.BuildCVPrompt(cv, jobTitle)
	projectPrompt := s.promptBuilder.BuildProjectPrompt(project, jobTitle)

	// The two artifacts are independent; their backend calls run
	// concurrently and fail independently.
	var (
		wg               sync.WaitGroup
		cvText, projText string
		cvErr, projErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		cvText, cvErr = s.provider.GenerateText(ctx, cvPrompt)
	}()
	go func() {
		defer wg.Done()
		projText, projErr = s.provider.GenerateText(ctx, projectPrompt)
	}()
	wg.Wait()

	cvScores := s.resolveCVScores(cvText, cvErr, cv.RawText)
	projectScores := s.resolveProjectScores(projText, projErr, project.RawText)

	return composeReport(cvScores, projectScores)
}

func (s *scoringGenerator) resolveCVScores(response string, err error, rawText string) CVScores {
	if err != nil || strings.TrimSpace(response) == "" {
		s.logger.Warn("cv scoring call failed, using heuristic fallback", zap.Error(err))
		scores := ScoreCVHeuristic(rawText)
		scores.CVFeedback = annotateFallback(scores.CVFeedback, "generative backend unavailable")
		return scores
	}

	var scores CVScores
	if parseErr := decodeScoreJSON(response, &scores); parseErr != nil {
		s.logger.Warn("cv scoring output unparseable, using heuristic fallback", zap.Error(parseErr))
		scores = ScoreCVHeuristic(rawText)
		scores.CVFeedback = annotateFallback(scores.CVFeedback, "model output was not valid JSON")
		return scores
	}

	if validErr := scores.Validate(); validErr != nil {
		s.logger.Warn("cv scoring output failed schema validation, using heuristic fallback", zap.Error(validErr))
		scores = ScoreCVHeuristic(rawText)
		scores.CVFeedback = annotateFallback(scores.CVFeedback, "model output failed validation")
		return scores
	}

	return scores
}

func (s *scoringGenerator) resolveProjectScores(response string, err error, rawText string) ProjectScores {
	if err != nil || strings.TrimSpace(response) == "" {
		s.logger.Warn("project scoring call failed, using heuristic fallback", zap.Error(err))
		scores := ScoreProjectHeuristic(rawText)
		scores.ProjectFeedback = annotateFallback(scores.ProjectFeedback, "generative backend unavailable")
		return scores
	}

	var scores ProjectScores
	if parseErr := decodeScoreJSON(response, &scores); parseErr != nil {
		s.logger.Warn("project scoring output unparseable, using heuristic fallback", zap.Error(parseErr))
		scores = ScoreProjectHeuristic(rawText)
		scores.ProjectFeedback = annotateFallback(scores.ProjectFeedback, "model output was not valid JSON")
		return scores
	}

	if validErr := scores.Validate(); validErr != nil {
		s.logger.Warn("project scoring output failed schema validation, using heuristic fallback", zap.Error(validErr))
		scores = ScoreProjectHeuristic(rawText)
		scores.ProjectFeedback = annotateFallback(scores.ProjectFeedback, "model output failed validation")
		return scores
	}

	return scores
}

// composeReport reduces both score blocks to the persisted figures and
// builds the overall summary.
func composeReport(cv CVScores, project ProjectScores) ScoreReport {
	cvWeighted := cv.TechnicalSkills*0.4 +
		cv.ExperienceLevel*0.25 +
		cv.RelevantAchievements*0.2 +
		cv.CulturalFit*0.15
	cvMatchRate := round2(clamp(cvWeighted, 0, 5) / 5.0)

	projectWeighted := project.Correctness*0.3 +
		project.CodeQuality*0.25 +
		project.Resilience*0.2 +
		project.Documentation*0.15 +
		project.Creativity*0.1
	projectScore := round2(clamp(projectWeighted, 1, 5))

	return ScoreReport{
		CVMatchRate:     cvMatchRate,
		CVFeedback:      cv.CVFeedback,
		ProjectScore:    projectScore,
		ProjectFeedback: project.ProjectFeedback,
		OverallSummary:  composeSummary(cvMatchRate, projectScore, cv.CVFeedback, project.ProjectFeedback),
	}
}

func composeSummary(cvMatchRate, projectScore float64, cvFeedback, projectFeedback string) string {
	projectNorm := (projectScore - 1) / 4
	combined := round2(cvMatchRate*0.6 + projectNorm*0.4)

	var summary string
	switch {
	case combined >= 0.8 && projectScore >= 4:
		summary = "Strong candidate fit. Good technical match and project quality."
	case combined >= 0.6:
		summary = "Good candidate fit with some areas to improve; consider for interview with targeted questions."
	case combined >= 0.45:
		summary = "Potential fit but needs improvement on either background or project robustness."
	default:
		summary = "Weak match to the role based on current CV and project report."
	}

	return fmt.Sprintf("%s CV note: %s. Project note: %s.",
		summary,
		firstSentences(cvFeedback, 2),
		truncateRunes(projectFeedback, 120),
	)
}

// firstSentences keeps the first n period-separated sentences.
func firstSentences(text string, n int) string {
	parts := strings.Split(text, ".")
	if len(parts) > n {
		parts = parts[:n]
	}
	return strings.TrimSuffix(strings.Join(parts, "."), ".")
}

func annotateFallback(feedback, reason string) string {
	return fmt.Sprintf("%s (heuristic fallback: %s)", feedback, reason)
}

// decodeScoreJSON extracts and decodes a JSON object from model output that
// may be wrapped in markdown or surrounding prose.
func decodeScoreJSON(response string, target interface{}) error {
	jsonStr := extractJSON(response)
	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

// extractJSON pulls the outermost JSON object or array out of text that may
// contain markdown fences or prose around it.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	startObj := strings.Index(text, "{")
	startArr := strings.Index(text, "[")
	endObj := strings.LastIndex(text, "}")
	endArr := strings.LastIndex(text, "]")

	if startObj != -1 && endObj != -1 && endObj > startObj {
		return text[startObj : endObj+1]
	} else if startArr != -1 && endArr != -1 && endArr > startArr {
		return text[startArr : endArr+1]
	}

	return text
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
