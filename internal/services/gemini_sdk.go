package services

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/talentgate/cv-evaluator/internal/config"
)

// geminiSDKProvider is the official-SDK alternative to the REST provider,
// selected with PROVIDER=gemini-sdk. Useful where the SDK's transport
// (OAuth, Vertex backends) is preferred over raw key auth.
type geminiSDKProvider struct {
	client     *genai.Client
	model      string
	embedModel string
}

func NewGeminiSDKProvider(cfg config.ProviderConfig) (Provider, error) {
	ctx := context.Background()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &geminiSDKProvider{
		client:     client,
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
	}, nil
}

func (g *geminiSDKProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	temperature := float32(0)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: 1200,
		CandidateCount:  1,
	}

	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		genai.Text(systemPromptPreamble+"\n\n"+prompt),
		cfg,
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("no response generated")
	}

	return stripCodeFences(resp.Text()), nil
}

func (g *geminiSDKProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	input := truncateRunes(text, maxEmbedInputRunes)

	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(input), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if result == nil || len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}

	return result.Embeddings[0].Values, nil
}
