package rag

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"sync"
)

// MemoryCollections implements Collections in process memory using
// brute-force cosine similarity. Used with VECTOR_BACKEND=memory and in
// tests; nothing is persisted.
type MemoryCollections struct {
	mu   sync.Mutex
	cols map[string]*MemoryStore
}

// NewMemoryCollections returns an empty accessor.
func NewMemoryCollections() *MemoryCollections {
	return &MemoryCollections{cols: make(map[string]*MemoryStore)}
}

// Collection returns the store for name, creating it on first use.
func (c *MemoryCollections) Collection(_ context.Context, name string) (VectorStore, error) {
	if name == "" {
		return nil, fmt.Errorf("memory: collection name must not be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.cols[name]
	if !ok {
		s = &MemoryStore{entries: make(map[string]Entry)}
		c.cols[name] = s
	}
	return s, nil
}

// Close is a no-op.
func (c *MemoryCollections) Close() error { return nil }

// MemoryStore is one in-memory collection.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// Upsert replaces entries by ID. A batch with any vectorless entry is
// rejected whole.
func (s *MemoryStore) Upsert(_ context.Context, entries []Entry) error {
	for _, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("memory: entry %q has no vector", e.ID)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		e.Vector = slices.Clone(e.Vector)
		e.Metadata = maps.Clone(e.Metadata)
		s.entries[e.ID] = e
	}
	return nil
}

// Search ranks every entry by cosine similarity to vector. Ties are broken
// by ID so results are stable.
func (s *MemoryStore) Search(_ context.Context, vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]Hit, 0, len(s.entries))
	for _, e := range s.entries {
		hits = append(hits, Hit{
			ID:       e.ID,
			Score:    cosine(e.Vector, vector),
			Metadata: maps.Clone(e.Metadata),
			Document: e.Document,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Delete removes entries by ID.
func (s *MemoryStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

// IDs returns every entry ID in sorted order.
func (s *MemoryStore) IDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.entries)), nil
}

// Count returns the number of entries.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Get returns the entry for id, for assertions in tests and diagnostics.
func (s *MemoryStore) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
