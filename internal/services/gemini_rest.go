package services

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/talentgate/cv-evaluator/internal/config"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const systemPromptPreamble = "You are an objective senior backend engineering evaluator. " +
	"When asked, produce JSON only as instructed by the user prompts. " +
	"Be concise, factual, and do not invent facts."

// embeddingMatcher names one known provider response envelope and the gjson
// path where the embedding array lives in it.
type embeddingMatcher struct {
	name string
	path string
}

// Ordered; first match wins. The provider has shipped several envelope
// shapes across model generations, so all of them are tried before the
// response is declared unparseable.
var embeddingMatchers = []embeddingMatcher{
	{name: "embedding.values", path: "embedding.values"},
	{name: "embedding array", path: "embedding"},
	{name: "embeddings[0].embedding", path: "embeddings.0.embedding"},
	{name: "embeddings[0].values", path: "embeddings.0.values"},
	{name: "results[0].embedding", path: "results.0.embedding"},
	{name: "data[0].embedding", path: "data.0.embedding"},
	{name: "data[0].values", path: "data.0.values"},
}

// geminiRESTProvider speaks the provider wire protocol directly: dual auth
// styles, multiple endpoint variants and response envelopes. The SDK hides
// all three, so the REST path is the default backend.
type geminiRESTProvider struct {
	http       *resty.Client
	logger     *zap.Logger
	baseURL    string
	apiKey     string
	model      string
	embedModel string

	maxAttempts  int
	initialDelay time.Duration
	maxTokens    int
}

func NewGeminiRESTProvider(cfg config.ProviderConfig, logger *zap.Logger) Provider {
	maxAttempts := cfg.RetryMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	initialDelay := cfg.RetryInitialDelay
	if initialDelay <= 0 {
		initialDelay = 500 * time.Millisecond
	}

	return &geminiRESTProvider{
		http:         resty.New().SetTimeout(90 * time.Second),
		logger:       logger,
		baseURL:      defaultGeminiBaseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		embedModel:   cfg.EmbedModel,
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		maxTokens:    1200,
	}
}

type restResponse struct {
	status int
	body   string
}

// doRequest posts the payload with header auth, retrying once with the query
// parameter key when the endpoint rejects the auth style.
func (g *geminiRESTProvider) doRequest(ctx context.Context, endpoint string, payload interface{}) (*restResponse, error) {
	send := func(useQueryKey bool) (*restResponse, error) {
		req := g.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(payload)

		target := endpoint
		if useQueryKey {
			target = endpoint + "?key=" + url.QueryEscape(g.apiKey)
		} else {
			req.SetHeader("x-goog-api-key", g.apiKey)
		}

		resp, err := req.Post(target)
		if err != nil {
			return nil, err
		}
		return &restResponse{status: resp.StatusCode(), body: string(resp.Body())}, nil
	}

	resp, err := send(false)
	if err != nil {
		return nil, err
	}

	switch resp.status {
	case 401, 403, 404:
		return send(true)
	}
	return resp, nil
}

func (g *geminiRESTProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("gemini api key not configured")
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": systemPromptPreamble + "\n\n" + prompt}}},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     0.0,
			"maxOutputTokens": g.maxTokens,
			"candidateCount":  1,
		},
	}

	var lastResp *restResponse
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		resp, err := g.doRequest(ctx, endpoint, payload)
		if err != nil {
			return "", fmt.Errorf("gemini request failed: %w", err)
		}
		lastResp = resp

		if resp.status >= 200 && resp.status < 300 {
			return extractGeneratedText(resp.body), nil
		}

		if resp.status >= 500 && resp.status < 600 && attempt < g.maxAttempts {
			g.logger.Warn("gemini server error, retrying",
				zap.Int("status", resp.status),
				zap.Int("attempt", attempt),
			)
			if err := sleepBackoff(ctx, g.initialDelay, attempt); err != nil {
				return "", err
			}
			continue
		}
		break
	}

	return "", fmt.Errorf("gemini api error: status %d: %s", lastResp.status, lastResp.body)
}

func (g *geminiRESTProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}

	input := truncateRunes(text, maxEmbedInputRunes)

	// Two endpoint variants: the older embedText shape and the newer
	// embedContent shape. Each gets its own retry budget.
	variants := []struct {
		endpoint string
		payload  interface{}
	}{
		{
			endpoint: fmt.Sprintf("%s/models/%s:embedText", g.baseURL, url.PathEscape(g.embedModel)),
			payload:  map[string]string{"text": input},
		},
		{
			endpoint: fmt.Sprintf("%s/models/%s:embedContent", g.baseURL, url.PathEscape(g.embedModel)),
			payload: map[string]interface{}{
				"content": map[string]interface{}{
					"parts": []map[string]string{{"text": input}},
				},
			},
		},
	}

	var lastResp *restResponse
	for _, variant := range variants {
		for attempt := 1; attempt <= g.maxAttempts; attempt++ {
			resp, err := g.doRequest(ctx, variant.endpoint, variant.payload)
			if err != nil {
				return nil, fmt.Errorf("gemini embedding request failed: %w", err)
			}
			lastResp = resp

			if resp.status >= 200 && resp.status < 300 {
				vec, matched := matchEmbedding(resp.body)
				if !matched {
					return nil, fmt.Errorf("unable to parse embedding array from response: %s", resp.body)
				}
				return vec, nil
			}

			if resp.status >= 500 && resp.status < 600 && attempt < g.maxAttempts {
				g.logger.Warn("gemini embedding server error, retrying",
					zap.Int("status", resp.status),
					zap.Int("attempt", attempt),
				)
				if err := sleepBackoff(ctx, g.initialDelay, attempt); err != nil {
					return nil, err
				}
				continue
			}
			// Endpoint rejected the call outright; try the next variant.
			break
		}
	}

	status := 0
	body := "no response body"
	if lastResp != nil {
		status = lastResp.status
		body = lastResp.body
	}
	return nil, fmt.Errorf("gemini embedding api error: status %d: %s", status, body)
}

// matchEmbedding tries each known envelope in order and reports whether any
// matched.
func matchEmbedding(body string) ([]float32, bool) {
	for _, matcher := range embeddingMatchers {
		result := gjson.Get(body, matcher.path)
		if !result.IsArray() {
			continue
		}

		values := result.Array()
		if len(values) == 0 {
			continue
		}

		vec := make([]float32, 0, len(values))
		numeric := true
		for _, v := range values {
			if v.Type != gjson.Number {
				numeric = false
				break
			}
			vec = append(vec, float32(v.Float()))
		}
		if numeric {
			return vec, true
		}
	}
	return nil, false
}

// extractGeneratedText pulls assistant text out of a generateContent
// response, falling back progressively for older envelope shapes.
func extractGeneratedText(body string) string {
	parts := gjson.Get(body, "candidates.0.content.parts.#.text")
	if parts.IsArray() && len(parts.Array()) > 0 {
		var sb strings.Builder
		for _, p := range parts.Array() {
			sb.WriteString(p.String())
		}
		return stripCodeFences(sb.String())
	}

	if alt := gjson.Get(body, "responseText"); alt.Exists() {
		return stripCodeFences(alt.String())
	}

	return stripCodeFences(body)
}

var (
	openFenceRe  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	closeFenceRe = regexp.MustCompile("\\s*```$")
)

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = openFenceRe.ReplaceAllString(s, "")
	s = closeFenceRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// sleepBackoff waits initial*2^(attempt-1), honoring context cancellation.
func sleepBackoff(ctx context.Context, initial time.Duration, attempt int) error {
	delay := initial << (attempt - 1)
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
