package indexsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/reliefconnect/internal/catalog"
	"github.com/54b3r/reliefconnect/internal/rag"
	"github.com/54b3r/reliefconnect/internal/store"
)

var vocabulary = []string{
	"water", "clean", "filter", "drink",
	"tent", "shelter", "tarp",
	"blanket", "warm",
	"food", "meal",
	"medical", "bandage",
	"order", "urgent",
}

// keywordEmbedder maps text onto keyword counts so similarity is predictable.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(vocabulary)+1)
		v[len(vocabulary)] = 0.01
		for _, tok := range strings.Fields(strings.ToLower(t)) {
			for j, w := range vocabulary {
				if strings.Contains(tok, w) {
					v[j]++
				}
			}
		}
		out[i] = v
	}
	return out, nil
}

// failingEmbedder always errors.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service unavailable")
}

// emptyEmbedder returns no vectors.
type emptyEmbedder struct{}

func (emptyEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return [][]float32{nil}, nil
}

// blockingEmbedder waits on release before embedding.
type blockingEmbedder struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func newBlockingEmbedder() *blockingEmbedder {
	return &blockingEmbedder{release: make(chan struct{}), started: make(chan struct{})}
}

func (b *blockingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return keywordEmbedder{}.Embed(ctx, texts)
}

// brokenCollections hands out stores whose writes always fail.
type brokenCollections struct{}

func (brokenCollections) Collection(context.Context, string) (rag.VectorStore, error) {
	return brokenStore{}, nil
}
func (brokenCollections) Close() error { return nil }

type brokenStore struct{}

func (brokenStore) Upsert(context.Context, []rag.Entry) error { return errors.New("vector store down") }
func (brokenStore) Search(context.Context, []float32, int) ([]rag.Hit, error) {
	return nil, errors.New("vector store down")
}
func (brokenStore) Delete(context.Context, []string) error { return errors.New("vector store down") }
func (brokenStore) IDs(context.Context) ([]string, error) {
	return nil, errors.New("vector store down")
}
func (brokenStore) Count(context.Context) (int, error) { return 0, errors.New("vector store down") }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	syncer  *Syncer
	cols    *rag.MemoryCollections
	store   *store.SQLiteStore
	reg     *prometheus.Registry
	metrics *Metrics
}

func newHarness(t *testing.T, emb rag.Embedder) *harness {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	cols := rag.NewMemoryCollections()
	s, err := NewSyncer(SyncerConfig{
		Embedder:    emb,
		Collections: cols,
		Journal:     st,
		Metrics:     m,
		Logger:      discardLogger(),
	})
	require.NoError(t, err)
	return &harness{syncer: s, cols: cols, store: st, reg: reg, metrics: m}
}

func (h *harness) products(t *testing.T) *rag.MemoryStore {
	t.Helper()
	col, err := h.cols.Collection(context.Background(), rag.DefaultProductCollection)
	require.NoError(t, err)
	return col.(*rag.MemoryStore)
}

func (h *harness) orders(t *testing.T) *rag.MemoryStore {
	t.Helper()
	col, err := h.cols.Collection(context.Background(), rag.DefaultOrderCollection)
	require.NoError(t, err)
	return col.(*rag.MemoryStore)
}

// counterValue returns the value of the counter name with the given labels.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func waterFilter() *catalog.Product {
	return &catalog.Product{
		ID:          "p1",
		Name:        "Water Filter",
		Description: "Portable filter for clean drinking water",
		Category:    "Water",
		Quantity:    12,
		Price:       19.5,
		Priority:    "high",
	}
}

func tent() *catalog.Product {
	return &catalog.Product{
		ID:          "p2",
		Name:        "Family Tent",
		Description: "Waterproof shelter for four people",
		Category:    "Shelter",
		Quantity:    3,
	}
}
