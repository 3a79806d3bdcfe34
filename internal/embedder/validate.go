package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// chatModelFragments are name fragments of chat/completion models that
// produce poor or no embeddings.
var chatModelFragments = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen",
}

func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, frag := range chatModelFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// ValidateForRAG is the startup pre-flight for the embedding pipeline. It
// fails when the selected backend is missing credentials and warns when
// EMBEDDING_MODEL looks like a chat model. Call it before NewFromEnv so
// operators see a clear message instead of a failed first sync.
func ValidateForRAG(log *slog.Logger) error {
	backend := Backend()
	switch backend {
	case "openai":
		if firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: no OpenAI API key found; set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: no Azure API key found; set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT") == "" {
			return fmt.Errorf("embedder: no Azure endpoint found; set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "ollama":
	default:
		return fmt.Errorf("embedder: unknown EMBEDDING_PROVIDER %q (valid: openai, azure, ollama)", backend)
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. text-embedding-3-small, nomic-embed-text"),
		)
	}
	return nil
}
