package provider

import (
	"context"
	"fmt"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

func newOllama(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	m, err := einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: cfg.Ollama.Host,
		Model:   cfg.Ollama.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: ollama: %w", err)
	}
	return m, nil
}

func newOpenAI(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens, temp := cfg.Tuning.MaxTokens, cfg.Tuning.Temperature
	m, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.OpenAI.Model,
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: openai: %w", err)
	}
	return m, nil
}

func newAzure(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	az := cfg.AzureOpenAI
	mc := &einoopenai.ChatModelConfig{
		Model:      az.Deployment,
		APIKey:     az.APIKey,
		BaseURL:    az.Endpoint,
		ByAzure:    true,
		APIVersion: az.APIVersion,
		// Keep the deployment name verbatim; the default mapper strips dots,
		// which breaks names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	}
	if !isAzureReasoningModel(az.Deployment) {
		maxTokens, temp := cfg.Tuning.MaxTokens, cfg.Tuning.Temperature
		mc.MaxTokens = &maxTokens
		mc.Temperature = &temp
	}
	m, err := einoopenai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("provider: azure: %w", err)
	}
	return m, nil
}

func newArk(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens, temp := cfg.Tuning.MaxTokens, cfg.Tuning.Temperature
	m, err := einoark.NewChatModel(ctx, &einoark.ChatModelConfig{
		Model:       cfg.Ark.Model,
		APIKey:      cfg.Ark.APIKey,
		BaseURL:     cfg.Ark.BaseURL,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: ark: %w", err)
	}
	return m, nil
}

func newGemini(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: gemini client: %w", err)
	}
	m, err := einogemini.NewChatModel(ctx, &einogemini.Config{
		Client: client,
		Model:  cfg.Gemini.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: gemini: %w", err)
	}
	return m, nil
}
