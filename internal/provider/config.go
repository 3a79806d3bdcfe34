// Package provider builds the Eino chat model used by the recommendation
// assistant. MODEL_PROVIDER selects the backend and each backend reads its
// own native credential variables.
package provider

import (
	"errors"
	"fmt"
	"strings"
)

// Backend names a chat model backend.
type Backend string

const (
	BackendOllama Backend = "ollama"
	BackendOpenAI Backend = "openai"
	BackendAzure  Backend = "azure"
	BackendArk    Backend = "ark"
	BackendGemini Backend = "gemini"
)

// ErrNotConfigured is returned by NewFromEnv when MODEL_PROVIDER is unset.
// Callers run without a chat model and use deterministic answers instead.
var ErrNotConfigured = errors.New("provider: MODEL_PROVIDER not set")

// ProviderOllama configures a local Ollama server.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderOpenAI configures the OpenAI API or a compatible endpoint.
type ProviderOpenAI struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderAzureOpenAI configures Azure OpenAI Service.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderArk configures the Volcengine Ark runtime.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderGemini configures Google Gemini via the AI Studio API.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// SharedTuning holds generation parameters common to every backend.
type SharedTuning struct {
	MaxTokens   int
	Temperature float32
}

// Config selects a backend and carries the settings for each.
type Config struct {
	Backend     Backend
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Gemini      ProviderGemini
	Tuning      SharedTuning
}

// Validate reports the first missing setting for the selected backend,
// naming the environment variable that supplies it.
func (c *Config) Validate() error {
	missing := func(env string) error {
		return fmt.Errorf("provider: %s backend requires %s", c.Backend, env)
	}
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return missing("OLLAMA_MODEL")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return missing("OPENAI_API_KEY")
		}
		if c.OpenAI.Model == "" {
			return missing("OPENAI_MODEL")
		}
	case BackendAzure:
		switch {
		case c.AzureOpenAI.APIKey == "":
			return missing("AZURE_OPENAI_API_KEY")
		case c.AzureOpenAI.Endpoint == "":
			return missing("AZURE_OPENAI_ENDPOINT")
		case c.AzureOpenAI.Deployment == "":
			return missing("AZURE_OPENAI_DEPLOYMENT")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return missing("ARK_API_KEY")
		}
		if c.Ark.Model == "" {
			return missing("ARK_MODEL")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return missing("GOOGLE_API_KEY")
		}
		if c.Gemini.Model == "" {
			return missing("GEMINI_MODEL")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: ollama, openai, azure, ark, gemini)", c.Backend)
	}
	return nil
}

// ModelName returns the model or deployment the config resolves to.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	case BackendGemini:
		return c.Gemini.Model
	}
	return ""
}

// isAzureReasoningModel reports whether an Azure deployment name refers to
// an o-series or codex reasoning model, which reject temperature and
// max_tokens.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, p := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, p) {
			return true
		}
	}
	return false
}
