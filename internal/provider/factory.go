package provider

import (
	"context"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
)

// NewFromEnv constructs a chat model from environment variables.
//
//	MODEL_PROVIDER = ollama | openai | azure | ark | gemini (unset: ErrNotConfigured)
//
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o-mini), OPENAI_BASE_URL
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Ark:     ARK_API_KEY, ARK_MODEL, ARK_BASE_URL
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-1.5-flash)
//
//	Shared:  MODEL_MAX_TOKENS (default: 1024), MODEL_TEMPERATURE (default: 0.2)
func NewFromEnv(ctx context.Context) (model.BaseChatModel, *Config, error) {
	cfg := ConfigFromEnv()
	if cfg.Backend == "" {
		return nil, cfg, ErrNotConfigured
	}
	m, err := New(ctx, cfg)
	return m, cfg, err
}

// ConfigFromEnv reads a Config from the environment without validating it.
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(os.Getenv("MODEL_PROVIDER")),
		Ollama: ProviderOllama{
			Host:  getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model: getEnvOrDefault("OLLAMA_MODEL", "llama3"),
		},
		OpenAI: ProviderOpenAI{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Ark: ProviderArk{
			APIKey:  os.Getenv("ARK_API_KEY"),
			Model:   os.Getenv("ARK_MODEL"),
			BaseURL: os.Getenv("ARK_BASE_URL"),
		},
		Gemini: ProviderGemini{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		Tuning: SharedTuning{
			MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", 1024),
			Temperature: getEnvFloat32("MODEL_TEMPERATURE", 0.2),
		},
	}
}

// New validates cfg and constructs the selected backend.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendArk:
		return newArk(ctx, cfg)
	default:
		return newGemini(ctx, cfg)
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
