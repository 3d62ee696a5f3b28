package services

import (
	"fmt"
	"strings"
)

// maxPromptTextRunes bounds the artifact text slice embedded in a prompt.
const maxPromptTextRunes = 4000

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildCVPrompt asks for the CV score block as strict JSON.
func (pb *PromptBuilder) BuildCVPrompt(input ArtifactInput, jobTitle string) string {
	return fmt.Sprintf(`Evaluate the candidate's CV for job title: %s.

CANDIDATE CV (truncated):
%s

RETRIEVED CONTEXT:
%s

Return a JSON object with integer scores 1-5 for: technical_skills, experience_level, relevant_achievements, cultural_fit. Also include cv_feedback (1-3 sentences).`,
		jobTitle,
		truncateRunes(input.RawText, maxPromptTextRunes),
		FormatRetrievedContext(input.Hits),
	)
}

// BuildProjectPrompt asks for the project score block as strict JSON.
func (pb *PromptBuilder) BuildProjectPrompt(input ArtifactInput, jobTitle string) string {
	return fmt.Sprintf(`Evaluate the project report for job title: %s.

PROJECT REPORT (truncated):
%s

RETRIEVED CONTEXT:
%s

Return a JSON object with integer scores 1-5 for: correctness, code_quality, resilience, documentation, creativity. Also include project_feedback (2-4 sentences).`,
		jobTitle,
		truncateRunes(input.RawText, maxPromptTextRunes),
		FormatRetrievedContext(input.Hits),
	)
}

// FormatRetrievedContext renders search hits for prompt injection.
func FormatRetrievedContext(hits []SearchHit) string {
	if len(hits) == 0 {
		return "No relevant context found."
	}

	var parts []string
	for i, hit := range hits {
		parts = append(parts, fmt.Sprintf("--- Context %d (Score: %.2f) ---\n%s",
			i+1, hit.Score, strings.TrimSpace(hit.Text())))
	}

	return strings.Join(parts, "\n\n")
}
