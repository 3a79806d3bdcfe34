package embedder

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenAIEmbedder_OrdersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header: got %q", got)
		}
		var req openaiEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "text-embedding-3-small" || len(req.Input) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		_, _ = io.WriteString(w, `{"data":[{"embedding":[0,1],"index":1},{"embedding":[1,0],"index":0}]}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "text-embedding-3-small"})
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vectors not reordered by index: %v", vecs)
	}
}

func TestOpenAIEmbedder_AzureURLAndHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/embed-dep/embeddings" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != "2024-01-01" {
			t.Errorf("api-version: got %q", r.URL.Query().Get("api-version"))
		}
		if r.Header.Get("api-key") != "az-key" {
			t.Errorf("api-key header: got %q", r.Header.Get("api-key"))
		}
		_, _ = io.WriteString(w, `{"data":[{"embedding":[0.5],"index":0}]}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL: srv.URL + "/openai", APIKey: "az-key", Model: "embed-dep",
		Azure: true, APIVersion: "2024-01-01",
	})
	if _, err := e.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
}

func TestOpenAIEmbedder_ErrorMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "bad", Model: "m"})
	_, err := e.Embed(context.Background(), []string{"x"})
	if err == nil || !strings.Contains(err.Error(), "invalid api key") {
		t.Fatalf("expected API error message, got %v", err)
	}
}

func TestOllamaEmbedder_CountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"embeddings":[[1,2,3]]}`)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	if _, err := e.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("single text: %v", err)
	}
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

// countingEmbedder returns a vector derived from the text length and counts
// how many texts it was asked to embed.
type countingEmbedder struct {
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 0.25, -1}
	}
	return out, nil
}

func TestCache_HitsSkipBackend(t *testing.T) {
	t.Parallel()

	next := &countingEmbedder{}
	c, err := OpenCache(filepath.Join(t.TempDir(), "embed.db"), "m1", next, discardLogger())
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	first, err := c.Embed(ctx, []string{"tent", "water filter"})
	if err != nil {
		t.Fatalf("first embed: %v", err)
	}
	second, err := c.Embed(ctx, []string{"water filter", "blanket"})
	if err != nil {
		t.Fatalf("second embed: %v", err)
	}

	if got := next.calls.Load(); got != 3 {
		t.Errorf("backend texts embedded: want 3, got %d", got)
	}
	if second[0][0] != first[1][0] || second[0][2] != -1 {
		t.Errorf("cached vector not decoded faithfully: %v vs %v", second[0], first[1])
	}
	if c.Len() != 3 {
		t.Errorf("cache size: want 3, got %d", c.Len())
	}
}

func TestCache_ModelIsPartOfKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "embed.db")
	next := &countingEmbedder{}
	c1, err := OpenCache(path, "m1", next, discardLogger())
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	if _, err := c1.Embed(context.Background(), []string{"tent"}); err != nil {
		t.Fatalf("embed: %v", err)
	}
	_ = c1.Close()

	c2, err := OpenCache(path, "m2", next, discardLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()
	if _, err := c2.Embed(context.Background(), []string{"tent"}); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if got := next.calls.Load(); got != 2 {
		t.Errorf("different model must miss the cache: backend calls = %d", got)
	}
}

func TestNewFromEnv_Backends(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("RELIEF_EMBED_CACHE", "")
	if _, _, err := NewFromEnv(); err == nil {
		t.Error("openai without key: expected error")
	}

	t.Setenv("OPENAI_API_KEY", "sk-x")
	emb, closeFn, err := NewFromEnv()
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	_ = closeFn()
	oe, ok := emb.(*OpenAIEmbedder)
	if !ok {
		t.Fatalf("openai: got %T", emb)
	}
	if oe.Model() != defaultOpenAIModel {
		t.Errorf("default model: got %q", oe.Model())
	}

	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	emb, _, err = NewFromEnv()
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if _, ok := emb.(*OllamaEmbedder); !ok {
		t.Errorf("ollama: got %T", emb)
	}

	t.Setenv("RELIEF_EMBED_CACHE", filepath.Join(t.TempDir(), "c.db"))
	emb, closeFn, err = NewFromEnv()
	if err != nil {
		t.Fatalf("cached: %v", err)
	}
	defer closeFn()
	if _, ok := emb.(*Cache); !ok {
		t.Errorf("cache: got %T", emb)
	}

	t.Setenv("EMBEDDING_PROVIDER", "bedrock")
	if _, _, err := NewFromEnv(); err == nil {
		t.Error("unknown backend: expected error")
	}
}

func TestDefaultDimensions(t *testing.T) {
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	if got := DefaultDimensions("ollama"); got != 768 {
		t.Errorf("ollama: got %d", got)
	}
	if got := DefaultDimensions("openai"); got != 1536 {
		t.Errorf("openai: got %d", got)
	}
	t.Setenv("EMBEDDING_DIMENSIONS", "256")
	if got := DefaultDimensions("openai"); got != 256 {
		t.Errorf("override: got %d", got)
	}
}

func TestValidateForRAG(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "azure")
	t.Setenv("EMBEDDING_API_KEY", "k")
	t.Setenv("AZURE_OPENAI_API_KEY", "")
	t.Setenv("EMBEDDING_ENDPOINT", "")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "")
	if err := ValidateForRAG(discardLogger()); err == nil {
		t.Error("azure without endpoint: expected error")
	}

	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://x.openai.azure.com")
	if err := ValidateForRAG(discardLogger()); err != nil {
		t.Errorf("azure complete: %v", err)
	}

	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_MODEL", "llama3")
	if err := ValidateForRAG(discardLogger()); err != nil {
		t.Errorf("ollama with chat model should only warn: %v", err)
	}
	if !looksLikeChatModel("llama3") || looksLikeChatModel("nomic-embed-text") {
		t.Error("looksLikeChatModel misclassified")
	}
}
