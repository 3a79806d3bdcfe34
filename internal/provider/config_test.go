package provider

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		// ── Ollama ────────────────────────────────────────────────────────────
		{
			name: "ollama/valid",
			cfg: Config{
				Backend: BackendOllama,
				Ollama:  ProviderOllama{Host: "http://localhost:11434", Model: "llama3"},
			},
		},
		{
			name:    "ollama/missing model",
			cfg:     Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434"}},
			wantErr: "OLLAMA_MODEL",
		},

		// ── OpenAI ────────────────────────────────────────────────────────────
		{
			name: "openai/valid",
			cfg: Config{
				Backend: BackendOpenAI,
				OpenAI:  ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"},
			},
		},
		{
			name:    "openai/missing api key",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "gpt-4o"}},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "openai/missing model",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test"}},
			wantErr: "OPENAI_MODEL",
		},

		// ── Azure ─────────────────────────────────────────────────────────────
		{
			name: "azure/valid",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					APIKey:     "key",
					Endpoint:   "https://my.openai.azure.com",
					Deployment: "gpt-4o",
					APIVersion: "2024-02-01",
				},
			},
		},
		{
			name: "azure/missing api key",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					Endpoint:   "https://my.openai.azure.com",
					Deployment: "gpt-4o",
				},
			},
			wantErr: "AZURE_OPENAI_API_KEY",
		},
		{
			name: "azure/missing endpoint",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					APIKey:     "key",
					Deployment: "gpt-4o",
				},
			},
			wantErr: "AZURE_OPENAI_ENDPOINT",
		},
		{
			name: "azure/missing deployment",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					APIKey:   "key",
					Endpoint: "https://my.openai.azure.com",
				},
			},
			wantErr: "AZURE_OPENAI_DEPLOYMENT",
		},

		// ── Ark ───────────────────────────────────────────────────────────────
		{
			name: "ark/valid",
			cfg: Config{
				Backend: BackendArk,
				Ark:     ProviderArk{APIKey: "ark-key", Model: "doubao-pro-32k"},
			},
		},
		{
			name:    "ark/missing model",
			cfg:     Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-key"}},
			wantErr: "ARK_MODEL",
		},
		{
			name:    "ark/missing api key",
			cfg:     Config{Backend: BackendArk, Ark: ProviderArk{Model: "doubao-pro-32k"}},
			wantErr: "ARK_API_KEY",
		},

		// ── Gemini ────────────────────────────────────────────────────────────
		{
			name: "gemini/valid",
			cfg: Config{
				Backend: BackendGemini,
				Gemini:  ProviderGemini{APIKey: "AIza-test", Model: "gemini-1.5-pro"},
			},
		},
		{
			name:    "gemini/missing api key",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{Model: "gemini-1.5-pro"}},
			wantErr: "GOOGLE_API_KEY",
		},
		{
			name:    "gemini/missing model",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test"}},
			wantErr: "GEMINI_MODEL",
		},

		// ── Unknown backend ───────────────────────────────────────────────────
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "bedrock"},
			wantErr: "unknown backend",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		deployment string
		want       bool
	}{
		// o-series
		{"o1", true},
		{"o1-preview", true},
		{"o1-mini", true},
		{"o3", true},
		{"o3-mini", true},
		{"o3-pro", true},
		{"o4-mini", true},
		{"O1-PREVIEW", true}, // case-insensitive
		{"O3-Mini", true},    // case-insensitive
		// codex-class
		{"codex-mini", true},
		{"codex", true},
		{"gpt-5.2-codex", false}, // prefix rule only
		// standard models
		{"gpt-4o", false},
		{"gpt-4o-mini", false},
		{"gpt-4", false},
		{"gpt-4.1", false},
		{"gpt-35-turbo", false},
		{"my-custom-deployment", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.deployment, func(t *testing.T) {
			t.Parallel()
			got := isAzureReasoningModel(tc.deployment)
			if got != tc.want {
				t.Errorf("isAzureReasoningModel(%q) = %v, want %v", tc.deployment, got, tc.want)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "")
	if _, _, err := NewFromEnv(t.Context()); err != ErrNotConfigured {
		t.Fatalf("unset provider: want ErrNotConfigured, got %v", err)
	}

	t.Setenv("MODEL_PROVIDER", "azure")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT", "gpt-4.1")
	t.Setenv("MODEL_MAX_TOKENS", "256")
	t.Setenv("MODEL_TEMPERATURE", "not-a-number")
	cfg := ConfigFromEnv()
	if cfg.Backend != BackendAzure {
		t.Errorf("backend: got %q", cfg.Backend)
	}
	if cfg.ModelName() != "gpt-4.1" {
		t.Errorf("model name: got %q", cfg.ModelName())
	}
	if cfg.Tuning.MaxTokens != 256 {
		t.Errorf("max tokens: got %d", cfg.Tuning.MaxTokens)
	}
	if cfg.Tuning.Temperature != 0.2 {
		t.Errorf("unparseable temperature should fall back to 0.2, got %v", cfg.Tuning.Temperature)
	}
	if cfg.AzureOpenAI.APIVersion != "2024-02-01" {
		t.Errorf("api version default: got %q", cfg.AzureOpenAI.APIVersion)
	}
}
