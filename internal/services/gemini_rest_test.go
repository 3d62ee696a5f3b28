package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGeminiProvider(baseURL string) *geminiRESTProvider {
	return &geminiRESTProvider{
		http:         resty.New(),
		logger:       zap.NewNop(),
		baseURL:      baseURL,
		apiKey:       "test-key",
		model:        "test-model",
		embedModel:   "test-embed-model",
		maxAttempts:  3,
		initialDelay: time.Millisecond,
		maxTokens:    100,
	}
}

func TestGenerateTextSuccess(t *testing.T) {
	var gotAuthHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuthHeader = r.Header.Get("x-goog-api-key")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"score\": 3}"}]}}]}`))
	}))
	defer srv.Close()

	g := newTestGeminiProvider(srv.URL)
	text, err := g.GenerateText(context.Background(), "evaluate this")

	require.NoError(t, err)
	assert.Equal(t, `{"score": 3}`, text)
	assert.Equal(t, "test-key", gotAuthHeader)
}

func TestGenerateTextFallsBackToQueryKeyAuth(t *testing.T) {
	var sawQueryKey bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		sawQueryKey = true
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	g := newTestGeminiProvider(srv.URL)
	text, err := g.GenerateText(context.Background(), "prompt")

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.True(t, sawQueryKey)
}

func TestGenerateTextRetriesServerErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"recovered"}]}}]}`))
	}))
	defer srv.Close()

	g := newTestGeminiProvider(srv.URL)
	text, err := g.GenerateText(context.Background(), "prompt")

	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 3, attempts)
}

func TestGenerateTextExhaustsRetryBudget(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := newTestGeminiProvider(srv.URL)
	_, err := g.GenerateText(context.Background(), "prompt")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, 3, attempts)
}

func TestGenerateTextRequiresAPIKey(t *testing.T) {
	g := newTestGeminiProvider("http://unused")
	g.apiKey = ""

	_, err := g.GenerateText(context.Background(), "prompt")
	assert.Error(t, err)
}

func TestEmbedAdvancesToSecondEndpointVariant(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.Contains(r.URL.Path, ":embedText") {
			// Both auth styles rejected; the client must move on to
			// the embedContent variant.
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"embedding":{"values":[0.1,0.2,0.3]}}`))
	}))
	defer srv.Close()

	g := newTestGeminiProvider(srv.URL)
	vec, err := g.Embed(context.Background(), "some chunk")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.True(t, strings.Contains(paths[0], ":embedText"))
	assert.True(t, strings.Contains(paths[len(paths)-1], ":embedContent"))
}

func TestEmbedParseErrorCarriesRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpected_envelope": true}`))
	}))
	defer srv.Close()

	g := newTestGeminiProvider(srv.URL)
	_, err := g.Embed(context.Background(), "some chunk")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected_envelope")
}

func TestEmbedTruncatesLongInput(t *testing.T) {
	var seenBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		seenBody = string(buf)
		w.Write([]byte(`{"embedding":{"values":[0.5]}}`))
	}))
	defer srv.Close()

	g := newTestGeminiProvider(srv.URL)
	_, err := g.Embed(context.Background(), strings.Repeat("a", 10000))

	require.NoError(t, err)
	assert.NotContains(t, seenBody, strings.Repeat("a", maxEmbedInputRunes+1))
}

func TestMatchEmbeddingEnvelopes(t *testing.T) {
	bodies := []string{
		`{"embedding":{"values":[1,2]}}`,
		`{"embedding":[1,2]}`,
		`{"embeddings":[{"embedding":[1,2]}]}`,
		`{"embeddings":[{"values":[1,2]}]}`,
		`{"results":[{"embedding":[1,2]}]}`,
		`{"data":[{"embedding":[1,2]}]}`,
		`{"data":[{"values":[1,2]}]}`,
	}

	for _, body := range bodies {
		vec, matched := matchEmbedding(body)
		assert.True(t, matched, "body: %s", body)
		assert.Equal(t, []float32{1, 2}, vec, "body: %s", body)
	}

	_, matched := matchEmbedding(`{"nothing": "here"}`)
	assert.False(t, matched)

	_, matched = matchEmbedding(`{"embedding":["a","b"]}`)
	assert.False(t, matched)
}

func TestExtractGeneratedTextFallbacks(t *testing.T) {
	multi := `{"candidates":[{"content":{"parts":[{"text":"part one "},{"text":"part two"}]}}]}`
	assert.Equal(t, "part one part two", extractGeneratedText(multi))

	legacy := `{"responseText":"legacy shape"}`
	assert.Equal(t, "legacy shape", extractGeneratedText(legacy))

	raw := `just plain text`
	assert.Equal(t, "just plain text", extractGeneratedText(raw))
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`{"a":1}`))
}
