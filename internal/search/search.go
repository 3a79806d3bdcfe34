// Package search answers free-text product needs ("need clean water") by
// embedding the query and ranking products in the vector index.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/reliefconnect/internal/catalog"
	"github.com/54b3r/reliefconnect/internal/rag"
)

// DefaultTopK is used when Retrieve is called with topK <= 0.
const DefaultTopK = 5

// ProductSearch is the product retrieval path. It is safe for concurrent use.
type ProductSearch struct {
	emb        rag.Embedder
	cols       rag.Collections
	collection string
	log        *slog.Logger
}

// NewProductSearch returns a ProductSearch over the named collection. An
// empty collection name uses rag.DefaultProductCollection.
func NewProductSearch(emb rag.Embedder, cols rag.Collections, collection string, log *slog.Logger) (*ProductSearch, error) {
	if emb == nil {
		return nil, fmt.Errorf("search: embedder must not be nil")
	}
	if cols == nil {
		return nil, fmt.Errorf("search: collections must not be nil")
	}
	if collection == "" {
		collection = rag.DefaultProductCollection
	}
	if log == nil {
		log = slog.Default()
	}
	return &ProductSearch{emb: emb, cols: cols, collection: collection, log: log}, nil
}

// Retrieve returns at most topK products ranked by similarity to query.
//
// An empty query returns no products without calling the embedder. When the
// query cannot be embedded the result is empty with a nil error, so callers
// fall back to a generic answer. Vector store failures also yield an empty
// result, but the error is returned for logging.
func (s *ProductSearch) Retrieve(ctx context.Context, query string, topK int) ([]catalog.ProductHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []catalog.ProductHit{}, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vecs, err := s.emb.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 || len(vecs[0]) == 0 {
		attrs := []any{slog.String("query", query)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		s.log.Warn("search: query embedding unavailable, returning no products", attrs...)
		return []catalog.ProductHit{}, nil
	}

	col, err := s.cols.Collection(ctx, s.collection)
	if err != nil {
		return []catalog.ProductHit{}, fmt.Errorf("search: collection %q: %w", s.collection, err)
	}
	hits, err := col.Search(ctx, vecs[0], topK)
	if err != nil {
		return []catalog.ProductHit{}, fmt.Errorf("search: %w", err)
	}

	out := make([]catalog.ProductHit, 0, min(len(hits), topK))
	for _, h := range hits {
		if len(out) == topK {
			break
		}
		out = append(out, toProductHit(h))
	}
	return out, nil
}

// toProductHit rebuilds the product shape from index metadata.
func toProductHit(h rag.Hit) catalog.ProductHit {
	p := catalog.ProductHit{
		ID:          h.ID,
		Name:        metaString(h.Metadata, "name"),
		Description: metaString(h.Metadata, "description"),
		Category:    metaString(h.Metadata, "category"),
		Quantity:    int(metaFloat(h.Metadata, "quantity")),
		Price:       metaFloat(h.Metadata, "price"),
		Score:       h.Score,
	}
	if p.ID == "" {
		p.ID = metaString(h.Metadata, "id")
	}
	return p
}

func metaString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// metaFloat reads a numeric metadata value regardless of how the backend
// typed it.
func metaFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case float64:
		return v
	case float32:
		return float64(v)
	}
	return 0
}
