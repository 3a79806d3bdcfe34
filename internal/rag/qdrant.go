package rag

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// pointNamespace scopes the deterministic UUIDs derived from record IDs.
var pointNamespace = uuid.MustParse("6f1c3a52-8d0e-4c1b-9a57-2f4e8b7d9c10")

// Payload keys reserved by the Qdrant backend.
const (
	payloadRecordID = "record_id"
	payloadDocument = "document"
)

// scrollPageSize is the page size used when listing every point.
const scrollPageSize = 256

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// VectorSize is the dimensionality of embeddings in every collection
	// created through this accessor.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantCollections implements Collections on a single Qdrant client.
type QdrantCollections struct {
	client     *qdrant.Client
	vectorSize uint64

	mu      sync.Mutex
	handles map[string]*QdrantStore
}

// NewQdrantCollections dials Qdrant. No collection is touched until the
// first Collection call.
func NewQdrantCollections(cfg *QdrantConfig) (*QdrantCollections, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantCollections{
		client:     client,
		vectorSize: cfg.VectorSize,
		handles:    make(map[string]*QdrantStore),
	}, nil
}

// Client exposes the underlying client for health probes.
func (c *QdrantCollections) Client() *qdrant.Client { return c.client }

// Collection returns the handle for name, creating the collection with
// cosine distance if it does not exist. First access per name is serialized;
// a create that loses a race to another process is tolerated.
func (c *QdrantCollections) Collection(ctx context.Context, name string) (VectorStore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.handles[name]; ok {
		return h, nil
	}
	if err := c.ensureCollection(ctx, name); err != nil {
		return nil, err
	}
	h := &QdrantStore{client: c.client, collection: name}
	c.handles[name] = h
	return h, nil
}

func (c *QdrantCollections) ensureCollection(ctx context.Context, name string) error {
	exists, err := c.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection %q: %w", name, err)
	}
	if exists {
		return nil
	}

	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     c.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err == nil {
		return nil
	}
	// Another process may have created it between the check and the create.
	if exists, cerr := c.client.CollectionExists(ctx, name); cerr == nil && exists {
		return nil
	}
	return fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
}

// Close closes the underlying Qdrant gRPC connection.
func (c *QdrantCollections) Close() error {
	return c.client.Close()
}

// QdrantStore is a VectorStore bound to one Qdrant collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// PointID maps a record ID onto the UUID Qdrant requires. The mapping is
// deterministic so re-upserting a record replaces its point.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

// Upsert writes entries and waits until they are visible to queries.
func (s *QdrantStore) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		payload := make(map[string]any, len(e.Metadata)+2)
		for k, v := range e.Metadata {
			payload[k] = v
		}
		payload[payloadRecordID] = e.ID
		payload[payloadDocument] = e.Document

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(e.ID)),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %q failed: %w", s.collection, err)
	}
	return nil
}

// Search performs a cosine similarity query and returns the top-k results.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search %q failed: %w", s.collection, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		meta := payloadToMap(r.GetPayload())
		hit := Hit{Score: r.GetScore(), Metadata: meta}
		if v, ok := meta[payloadRecordID].(string); ok {
			hit.ID = v
		} else {
			hit.ID = r.GetId().GetUuid()
		}
		if v, ok := meta[payloadDocument].(string); ok {
			hit.Document = v
		}
		delete(meta, payloadRecordID)
		delete(meta, payloadDocument)
		hits = append(hits, hit)
	}
	return hits, nil
}

// Delete removes points for the given record IDs.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(PointID(id)))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete from %q failed: %w", s.collection, err)
	}
	return nil
}

// IDs scrolls the whole collection and returns every record ID.
func (s *QdrantStore) IDs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		offset *qdrant.PointId
	)
	limit := uint32(scrollPageSize)
	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayloadInclude(payloadRecordID),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll %q failed: %w", s.collection, err)
		}

		page := points
		// The offset point is included in the next page; drop it.
		if offset != nil && len(page) > 0 && page[0].GetId().GetUuid() == offset.GetUuid() {
			page = page[1:]
		}
		for _, p := range page {
			if v := p.GetPayload()[payloadRecordID]; v != nil {
				ids = append(ids, v.GetStringValue())
			}
		}
		if len(points) < scrollPageSize || len(page) == 0 {
			return ids, nil
		}
		offset = points[len(points)-1].GetId()
	}
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count %q failed: %w", s.collection, err)
	}
	return int(n), nil
}

// payloadToMap converts a Qdrant payload into plain Go values.
func payloadToMap(p map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			out[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			out[k] = kind.BoolValue
		}
	}
	return out
}
