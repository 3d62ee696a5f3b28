package services

import (
	"fmt"
	"math"
)

// CVScores is the CV score block: four 1-5 integer ratings plus feedback.
// Intermediate only; never persisted directly. Fields are float64 so model
// output can be decoded before validation, which then enforces integrality.
type CVScores struct {
	TechnicalSkills      float64 `json:"technical_skills"`
	ExperienceLevel      float64 `json:"experience_level"`
	RelevantAchievements float64 `json:"relevant_achievements"`
	CulturalFit          float64 `json:"cultural_fit"`
	CVFeedback           string  `json:"cv_feedback"`
}

// ProjectScores is the project score block: five 1-5 integer ratings plus
// feedback.
type ProjectScores struct {
	Correctness     float64 `json:"correctness"`
	CodeQuality     float64 `json:"code_quality"`
	Resilience      float64 `json:"resilience"`
	Documentation   float64 `json:"documentation"`
	Creativity      float64 `json:"creativity"`
	ProjectFeedback string  `json:"project_feedback"`
}

// Validate enforces the strict schema: every rating must be an integer in
// 1..5. Anything else is treated like a provider failure upstream.
func (s *CVScores) Validate() error {
	fields := map[string]float64{
		"technical_skills":      s.TechnicalSkills,
		"experience_level":      s.ExperienceLevel,
		"relevant_achievements": s.RelevantAchievements,
		"cultural_fit":          s.CulturalFit,
	}
	return validateRatings(fields)
}

func (s *ProjectScores) Validate() error {
	fields := map[string]float64{
		"correctness":   s.Correctness,
		"code_quality":  s.CodeQuality,
		"resilience":    s.Resilience,
		"documentation": s.Documentation,
		"creativity":    s.Creativity,
	}
	return validateRatings(fields)
}

func validateRatings(fields map[string]float64) error {
	for name, v := range fields {
		if v != math.Trunc(v) {
			return fmt.Errorf("field %s must be an integer, got %v", name, v)
		}
		if v < 1 || v > 5 {
			return fmt.Errorf("field %s must be between 1 and 5, got %v", name, v)
		}
	}
	return nil
}
