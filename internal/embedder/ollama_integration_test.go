//go:build integration

package embedder

import (
	"context"
	"os"
	"slices"
	"testing"
	"time"
)

// TestOllamaEmbedder_Integration calls a locally running Ollama instance.
//
//	ollama pull nomic-embed-text
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
//
// Set OLLAMA_HOST if Ollama is not on localhost:11434.
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}

	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"Water Filter: Portable gravity filter removing 99.9% of bacteria. Category: Water.",
		"Emergency Tent: Four-person waterproof shelter. Category: Shelter.",
	}
	vecs, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and %q is pulled", err, model)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			t.Errorf("embedding[%d] is empty", i)
		}
	}
	if slices.Equal(vecs[0], vecs[1]) {
		t.Error("distinct texts produced identical vectors")
	}
	t.Logf("model=%s dim=%d (set EMBEDDING_DIMENSIONS=%d for the collection)", model, len(vecs[0]), len(vecs[0]))
}
