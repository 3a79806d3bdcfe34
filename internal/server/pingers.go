package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/reliefconnect/internal/rag"
)

// ModelPinger probes a chat model by sending a minimal generate request.
// It consumes a few tokens per probe, so serve only registers it when
// RELIEF_READY_PROBE_MODEL is enabled.
type ModelPinger struct {
	// model is the chat model to probe.
	model model.BaseChatModel
	// name identifies the backend in readiness responses (e.g. "openai").
	name string
}

// NewModelPinger constructs a ModelPinger for the given model and backend name.
func NewModelPinger(m model.BaseChatModel, name string) *ModelPinger {
	return &ModelPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *ModelPinger) Name() string { return p.name }

// Ping sends a single-message generate request.
func (p *ModelPinger) Ping(ctx context.Context) error {
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// EmbedderPinger probes the embedding backend by embedding a short text.
type EmbedderPinger struct {
	emb rag.Embedder
}

// NewEmbedderPinger constructs an EmbedderPinger.
func NewEmbedderPinger(emb rag.Embedder) *EmbedderPinger {
	return &EmbedderPinger{emb: emb}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds a fixed probe string and checks a vector came back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.emb.Embed(ctx, []string{"readiness probe"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed returned no vector")
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// StorePinger probes the record database.
type StorePinger struct {
	db interface {
		Ping(ctx context.Context) error
	}
}

// NewStorePinger constructs a StorePinger. *store.SQLiteStore satisfies db.
func NewStorePinger(db interface {
	Ping(ctx context.Context) error
}) *StorePinger {
	return &StorePinger{db: db}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "store" }

// Ping checks the database connection.
func (p *StorePinger) Ping(ctx context.Context) error { return p.db.Ping(ctx) }
