package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Heuristic fallback scorer: deterministic, no external calls. Counts
// word-boundary keyword occurrences per category, maps counts to 1-5 scores
// through category-specific ascending thresholds, and scans for a
// years-of-experience figure. Used whenever the generative backend fails or
// returns schema-invalid output.

type keywordCategory struct {
	patterns   []*regexp.Regexp
	thresholds [5]int
}

func compileKeywords(keywords ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(keywords))
	for _, k := range keywords {
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(k)+`\b`))
	}
	return patterns
}

var (
	percentRe = regexp.MustCompile(`\d+%`)
	yearsRe   = regexp.MustCompile(`(?i)(\d{1,2})\s+(?:years|yrs|year)`)

	cvTechCategory = keywordCategory{
		patterns: compileKeywords(
			"node", "express", "fastify", "rust", "actix", "go", "golang",
			"python", "django", "flask", "java", "spring", "postgres",
			"postgresql", "mysql", "mongodb", "redis", "kafka", "grpc",
			"rest", "graphql", "aws", "gcp", "azure", "docker",
			"kubernetes", "lambda", "s3",
		),
		thresholds: [5]int{0, 1, 2, 4, 6},
	}

	cvAchievementsCategory = keywordCategory{
		patterns: append(compileKeywords(
			"increase", "increased", "decrease", "decreased", "reduced",
			"improved", "scaled", "performance", "latency", "throughput",
			"million", "billion", "users", "kpi", "metric", "metrics",
			"saved", "cost",
		), percentRe),
		thresholds: [5]int{0, 1, 2, 4, 6},
	}

	cvCultureCategory = keywordCategory{
		patterns: compileKeywords(
			"team", "teamwork", "collaboration", "collaborative",
			"collaborated", "agile", "scrum", "peer", "communication",
			"communicate", "ownership", "initiative", "mentor", "mentored",
			"diversity", "inclusive",
		),
		thresholds: [5]int{0, 1, 2, 3, 5},
	}

	projectCorrectnessCategory = keywordCategory{
		patterns: compileKeywords(
			"correct", "passed", "test", "tests", "testing", "unit test",
			"unit tests", "integration test", "integration tests",
			"verified", "validated", "assert",
		),
		thresholds: [5]int{0, 1, 2, 3, 5},
	}

	projectQualityCategory = keywordCategory{
		patterns: compileKeywords(
			"clean", "readable", "well-structured", "modular", "refactor",
			"refactored", "lint", "linted", "typed", "types",
			"static analysis",
		),
		thresholds: [5]int{0, 1, 2, 3, 5},
	}

	projectResilienceCategory = keywordCategory{
		patterns: compileKeywords(
			"retry", "retries", "backoff", "idempotent", "rate limit",
			"circuit breaker", "timeout", "timeouts", "failover",
			"monitoring", "observability",
		),
		thresholds: [5]int{0, 1, 2, 3, 4},
	}

	projectDocumentationCategory = keywordCategory{
		patterns: compileKeywords(
			"readme", "documentation", "documented", "how to", "usage",
			"setup", "architecture", "diagram", "design",
		),
		thresholds: [5]int{0, 1, 1, 2, 4},
	}

	projectCreativityCategory = keywordCategory{
		patterns: compileKeywords(
			"novel", "innovative", "creative", "unique", "heuristic",
			"uncommon", "first",
		),
		thresholds: [5]int{0, 1, 1, 2, 3},
	}
)

func (c keywordCategory) count(text string) int {
	count := 0
	for _, re := range c.patterns {
		count += len(re.FindAllStringIndex(text, -1))
	}
	return count
}

func (c keywordCategory) score(text string) int {
	return mapCountToScore(c.count(text), c.thresholds)
}

func mapCountToScore(count int, thresholds [5]int) int {
	switch {
	case count >= thresholds[4]:
		return 5
	case count >= thresholds[3]:
		return 4
	case count >= thresholds[2]:
		return 3
	case count >= thresholds[1]:
		return 2
	default:
		return 1
	}
}

// parseYearsFromText sums every "N years" figure found in the text.
func parseYearsFromText(text string) int {
	total := 0
	for _, m := range yearsRe.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.Atoi(m[1]); err == nil {
			total += v
		}
	}
	return total
}

// ScoreCVHeuristic produces a CV score block from keyword signals alone.
func ScoreCVHeuristic(cvText string) CVScores {
	techScore := cvTechCategory.score(cvText)
	achScore := cvAchievementsCategory.score(cvText)
	cultScore := cvCultureCategory.score(cvText)

	years := parseYearsFromText(cvText)
	expScore := 1
	switch {
	case years >= 8:
		expScore = 5
	case years >= 5:
		expScore = 4
	case years >= 3:
		expScore = 3
	case years >= 1:
		expScore = 2
	}

	var feedbackParts []string
	switch {
	case techScore >= 4:
		feedbackParts = append(feedbackParts, "Strong backend tech footprint")
	case techScore == 3:
		feedbackParts = append(feedbackParts, "Moderate backend skills")
	default:
		feedbackParts = append(feedbackParts, "Limited explicit backend keywords")
	}

	if years > 0 {
		feedbackParts = append(feedbackParts, fmt.Sprintf("%d years experience detected", years))
	}
	if achScore >= 3 {
		feedbackParts = append(feedbackParts, "Has measurable achievements")
	}
	if cultScore >= 3 {
		feedbackParts = append(feedbackParts, "Mentions collaboration/culture keywords")
	}

	return CVScores{
		TechnicalSkills:      float64(techScore),
		ExperienceLevel:      float64(expScore),
		RelevantAchievements: float64(achScore),
		CulturalFit:          float64(cultScore),
		CVFeedback:           strings.Join(feedbackParts, ". ") + ".",
	}
}

// ScoreProjectHeuristic produces a project score block from keyword signals
// alone.
func ScoreProjectHeuristic(projectText string) ProjectScores {
	corr := projectCorrectnessCategory.count(projectText)
	res := projectResilienceCategory.count(projectText)
	doc := projectDocumentationCategory.count(projectText)
	cre := projectCreativityCategory.count(projectText)

	var feedbackParts []string
	if corr >= 1 {
		feedbackParts = append(feedbackParts, "Includes testing or validation mentions")
	}
	if res >= 1 {
		feedbackParts = append(feedbackParts, "Addresses resilience or retries")
	}
	if doc >= 1 {
		feedbackParts = append(feedbackParts, "Contains documentation cues")
	}
	if cre >= 1 {
		feedbackParts = append(feedbackParts, "Shows creative elements")
	}

	feedback := strings.Join(feedbackParts, ". ")
	if feedback == "" {
		feedback = "No strong signals detected."
	}

	return ProjectScores{
		Correctness:     float64(mapCountToScore(corr, projectCorrectnessCategory.thresholds)),
		CodeQuality:     float64(projectQualityCategory.score(projectText)),
		Resilience:      float64(mapCountToScore(res, projectResilienceCategory.thresholds)),
		Documentation:   float64(mapCountToScore(doc, projectDocumentationCategory.thresholds)),
		Creativity:      float64(mapCountToScore(cre, projectCreativityCategory.thresholds)),
		ProjectFeedback: feedback,
	}
}
