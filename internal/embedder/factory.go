package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/reliefconnect/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536

	defaultAzureAPIVersion = "2025-04-01-preview"
)

// Backend returns the effective embedding backend name: EMBEDDING_PROVIDER
// when set, otherwise "openai".
func Backend() string {
	return getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
}

// DefaultDimensions returns the embedding vector size for backend, used when
// creating vector collections. EMBEDDING_DIMENSIONS always takes precedence.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	if backend == "ollama" {
		return defaultOllamaDimensions
	}
	return defaultOpenAIDimensions
}

// NewFromEnv constructs a rag.Embedder from the environment.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER selects the backend (openai, azure, ollama; default openai)
//  2. EMBEDDING_MODEL overrides the backend's default model
//  3. EMBEDDING_API_KEY overrides OPENAI_API_KEY / AZURE_OPENAI_API_KEY
//  4. EMBEDDING_ENDPOINT overrides the backend's base URL
//  5. EMBEDDING_DIMENSIONS requests a reduced vector size (openai/azure only)
//
// When RELIEF_EMBED_CACHE names a file, the embedder is wrapped in a Cache
// backed by that file. The returned close func releases the cache and is
// never nil.
func NewFromEnv() (rag.Embedder, func() error, error) {
	noop := func() error { return nil }

	var (
		emb   rag.Embedder
		model string
	)
	switch backend := Backend(); backend {
	case "ollama":
		host := getEnv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		model = getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)
		emb = NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	case "openai":
		apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, noop, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		emb = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      model,
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		})

	case "azure":
		apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, noop, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, noop, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		emb = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      model,
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", defaultAzureAPIVersion),
		})

	default:
		return nil, noop, fmt.Errorf("embedder: unknown backend %q (valid: openai, azure, ollama)", backend)
	}

	path := getEnv("RELIEF_EMBED_CACHE")
	if path == "" {
		return emb, noop, nil
	}
	cache, err := OpenCache(path, model, emb, nil)
	if err != nil {
		return nil, noop, err
	}
	return cache, cache.Close, nil
}

func getEnv(key string) string {
	return os.Getenv(key)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
