// Package rag defines the vector-index side of ReliefConnect semantic
// search: the Entry stored per domain record, the VectorStore a named
// collection exposes, the Collections accessor that lazily creates them, and
// the Embedder contract. Qdrant and in-memory backends satisfy these
// interfaces so the sync and search layers never depend on a specific one.
package rag

import (
	"context"
)

// Entry is the indexed representation of one domain record.
type Entry struct {
	// ID is the domain record's ID. It is the join key between the record
	// store and the index.
	ID string

	// Vector is the embedding of Document.
	Vector []float32

	// Metadata holds primitive values only (string, int64, float64, bool).
	// Nested structures are JSON-stringified by the caller.
	Metadata map[string]any

	// Document is the synthesized text that was embedded.
	Document string
}

// Hit is a single nearest-neighbour result.
type Hit struct {
	// ID is the domain record ID of the matched entry.
	ID string

	// Score is the similarity score; higher is closer.
	Score float32

	Metadata map[string]any
	Document string
}

// VectorStore is one named collection of entries.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert inserts or fully replaces entries by ID.
	Upsert(ctx context.Context, entries []Entry) error

	// Search returns at most topK entries nearest to vector, closest first.
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)

	// Delete removes entries by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// IDs returns the IDs of every entry in the collection.
	IDs(ctx context.Context) ([]string, error)

	// Count returns the number of entries in the collection.
	Count(ctx context.Context) (int, error)
}

// Collections hands out VectorStore handles by collection name, creating
// the collection on first use. Concurrent first accesses to the same name
// must result in exactly one collection.
type Collections interface {
	Collection(ctx context.Context, name string) (VectorStore, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Default collection names.
const (
	DefaultProductCollection = "relief_products"
	DefaultOrderCollection   = "relief_orders"
)
