package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// OpenAIEmbedder implements rag.Embedder against the OpenAI (or Azure
// OpenAI) embeddings REST API. It is safe for concurrent use.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	azure      bool
	apiVersion string
	client     *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com/openai".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name, or the deployment name on Azure.
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored when Azure is false.
	APIVersion string
	// HTTPClient overrides the default client (30s timeout). Used by tests.
	HTTPClient *http.Client
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OpenAIEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		azure:      cfg.Azure,
		apiVersion: cfg.APIVersion,
		client:     client,
	}
}

// Model returns the configured embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed converts texts into embeddings, parallel to the input slice.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	url := e.baseURL + "/embeddings"
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}
	if e.azure {
		url = e.baseURL + "/deployments/" + e.model + "/embeddings?api-version=" + e.apiVersion
		headers = map[string]string{"api-key": e.apiKey}
	}

	var result openaiEmbedResponse
	code, err := postJSON(ctx, e.client, url, headers,
		openaiEmbedRequest{Input: texts, Model: e.model, Dimensions: e.dimensions}, &result)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	if !statusOK(code) {
		msg := fmt.Sprintf("HTTP %d", code)
		if result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		return nil, fmt.Errorf("openai embedder: %s", msg)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	// Data may arrive out of order; place each vector by its index.
	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embedder: index %d out of range [0, %d)", d.Index, len(texts))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
