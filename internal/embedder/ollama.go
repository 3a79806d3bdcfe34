package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// OllamaEmbedder implements rag.Embedder using the Ollama /api/embed
// endpoint. No API key is required.
type OllamaEmbedder struct {
	host   string
	model  string
	client *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "nomic-embed-text").
	Model string
	// HTTPClient overrides the default client (60s timeout).
	HTTPClient *http.Client
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &OllamaEmbedder{host: cfg.Host, model: cfg.Model, client: client}
}

// Model returns the configured embedding model name.
func (e *OllamaEmbedder) Model() string { return e.model }

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed converts texts into embeddings, parallel to the input slice.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var result ollamaEmbedResponse
	code, err := postJSON(ctx, e.client, e.host+"/api/embed", nil,
		ollamaEmbedRequest{Model: e.model, Input: texts}, &result)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	if !statusOK(code) {
		msg := fmt.Sprintf("HTTP %d", code)
		if result.Error != "" {
			msg = result.Error
		}
		return nil, fmt.Errorf("ollama embedder: %s", msg)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}
