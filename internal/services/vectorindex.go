package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/talentgate/cv-evaluator/internal/config"
)

// IndexPoint is one chunk vector destined for the index. ID must satisfy the
// index's identifier format (a UUID), which is stricter than the
// human-readable chunk id carried in the payload.
type IndexPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// SearchHit is one nearest neighbor with its payload.
type SearchHit struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// Text returns the payload's text field when present.
func (h SearchHit) Text() string {
	if h.Payload == nil {
		return ""
	}
	if text, ok := h.Payload["text"].(string); ok {
		return text
	}
	return ""
}

// VectorIndexService wraps the Qdrant REST surface. The index is an
// optimization for retrieval context, not a correctness dependency: every
// operation degrades gracefully instead of failing the pipeline.
type VectorIndexService interface {
	EnsureCollection(ctx context.Context) error
	UpsertPoints(ctx context.Context, points []IndexPoint) []string
	Search(ctx context.Context, vector []float32, limit int) []SearchHit
}

type vectorIndexService struct {
	http       *resty.Client
	logger     *zap.Logger
	baseURL    string
	collection string
	vectorSize int
	demoMode   bool
}

func NewVectorIndexService(cfg config.QdrantConfig, demoMode bool, logger *zap.Logger) VectorIndexService {
	client := resty.New().SetTimeout(30 * time.Second)
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}

	return &vectorIndexService{
		http:       client,
		logger:     logger,
		baseURL:    cfg.URL,
		collection: cfg.Collection,
		vectorSize: cfg.VectorSize,
		demoMode:   demoMode,
	}
}

// EnsureCollection creates the collection if it does not exist. Idempotent;
// failures are logged and swallowed so index absence never aborts a job.
func (s *vectorIndexService) EnsureCollection(ctx context.Context) error {
	if s.demoMode {
		return nil
	}

	resp, err := s.http.R().SetContext(ctx).Get(s.baseURL + "/collections")
	if err != nil || resp.StatusCode() >= 400 {
		s.logger.Warn("vector index list collections failed, continuing",
			zap.Error(err),
			zap.Int("status", statusOf(resp)),
		)
		return nil
	}

	for _, c := range gjson.GetBytes(resp.Body(), "result.collections.#.name").Array() {
		if c.String() == s.collection {
			return nil
		}
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.vectorSize,
			"distance": "Cosine",
		},
	}

	resp, err = s.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Put(fmt.Sprintf("%s/collections/%s", s.baseURL, url.PathEscape(s.collection)))
	if err != nil || resp.StatusCode() >= 400 {
		s.logger.Warn("vector index create collection failed, continuing",
			zap.String("collection", s.collection),
			zap.Error(err),
			zap.Int("status", statusOf(resp)),
		)
	}

	return nil
}

// UpsertPoints writes points idempotently (keyed by point id) and returns
// the ids that were handed in. On any index failure the same ids come back
// so the pipeline proceeds without indexing. No-ops on empty input.
func (s *vectorIndexService) UpsertPoints(ctx context.Context, points []IndexPoint) []string {
	ids := make([]string, 0, len(points))
	for _, p := range points {
		ids = append(ids, p.ID)
	}

	if len(points) == 0 || s.demoMode {
		return ids
	}

	if err := s.EnsureCollection(ctx); err != nil {
		return ids
	}

	body := map[string]interface{}{"points": points}
	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Put(fmt.Sprintf("%s/collections/%s/points?wait=true", s.baseURL, url.PathEscape(s.collection)))
	if err != nil || resp.StatusCode() >= 400 {
		s.logger.Warn("vector index upsert failed, continuing without indexing",
			zap.Int("points", len(points)),
			zap.Error(err),
			zap.Int("status", statusOf(resp)),
		)
	}

	return ids
}

// Search returns up to limit nearest neighbors, or an empty slice on any
// index failure.
func (s *vectorIndexService) Search(ctx context.Context, vector []float32, limit int) []SearchHit {
	if s.demoMode {
		return nil
	}

	body := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(fmt.Sprintf("%s/collections/%s/points/search", s.baseURL, url.PathEscape(s.collection)))
	if err != nil || resp.StatusCode() >= 400 {
		s.logger.Warn("vector index search failed, continuing without context",
			zap.Error(err),
			zap.Int("status", statusOf(resp)),
		)
		return nil
	}

	var hits []SearchHit
	for _, r := range gjson.GetBytes(resp.Body(), "result").Array() {
		hit := SearchHit{
			ID:    r.Get("id").String(),
			Score: r.Get("score").Float(),
		}
		if payload := r.Get("payload"); payload.IsObject() {
			var decoded map[string]interface{}
			if err := json.Unmarshal([]byte(payload.Raw), &decoded); err == nil {
				hit.Payload = decoded
			}
		}
		hits = append(hits, hit)
	}

	return hits
}

func statusOf(resp *resty.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode()
}
