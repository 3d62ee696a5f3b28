package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/talentgate/cv-evaluator/internal/config"
)

// maxEmbedInputRunes bounds embedding input to respect provider limits.
const maxEmbedInputRunes = 4000

// Provider is the capability surface the pipeline needs from a generative
// backend. One implementation per backend; the orchestrator and scoring
// generator depend only on this interface.
type Provider interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrDemoMode is returned by the demo provider's GenerateText so scoring
// deterministically takes the heuristic path when running offline.
var ErrDemoMode = errors.New("demo mode: generative backend disabled")

// NewProvider builds the configured backend. Demo mode wins over the
// provider name so offline runs never touch the network.
func NewProvider(cfg config.ProviderConfig, vectorSize int, logger *zap.Logger) (Provider, error) {
	if cfg.DemoMode {
		return NewDemoProvider(vectorSize), nil
	}

	switch cfg.Name {
	case "gemini":
		return NewGeminiRESTProvider(cfg, logger), nil
	case "gemini-sdk":
		return NewGeminiSDKProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Name)
	}
}

// demoProvider is a deterministic local stand-in for external providers.
type demoProvider struct {
	vectorSize int
}

func NewDemoProvider(vectorSize int) Provider {
	if vectorSize <= 0 {
		vectorSize = 1536
	}
	return &demoProvider{vectorSize: vectorSize}
}

func (d *demoProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "", ErrDemoMode
}

// Embed returns a pseudo-vector seeded from the input length. Not
// semantically meaningful, but stable across runs for reproducible tests.
func (d *demoProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	seed := len(text)
	if seed == 0 {
		seed = 1
	}

	vec := make([]float32, d.vectorSize)
	for i := range vec {
		vec[i] = float32((i+seed)%100) / 100
	}
	return vec, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
