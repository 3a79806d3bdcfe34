package indexsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/reliefconnect/internal/catalog"
	"github.com/54b3r/reliefconnect/internal/rag"
	"github.com/54b3r/reliefconnect/internal/store"
)

func TestReconciler_RepairsDrift(t *testing.T) {
	t.Parallel()
	h := newHarness(t, keywordEmbedder{})
	ctx := context.Background()

	// Records written with no hook registered are missing from the index.
	require.NoError(t, h.store.SaveProduct(ctx, waterFilter()))
	require.NoError(t, h.store.SaveProduct(ctx, tent()))
	require.NoError(t, h.store.SaveOrder(ctx, &catalog.Order{ID: "o1", Name: "Ana", Address: "1 Main", Phone: "5"}))

	// An entry whose record no longer exists is an orphan.
	require.NoError(t, h.products(t).Upsert(ctx, []rag.Entry{{ID: "gone", Vector: []float32{1}}}))

	r := NewReconciler(h.store, h.syncer, 0)
	var (
		mu    sync.Mutex
		ticks = map[catalog.Kind]int{}
	)
	rep, err := r.Run(ctx, []catalog.Kind{catalog.KindProduct, catalog.KindOrder}, func(k catalog.Kind, done, total int) {
		mu.Lock()
		defer mu.Unlock()
		ticks[k] = done
		assert.LessOrEqual(t, done, total)
	})
	require.NoError(t, err)

	pr := rep.Kinds[catalog.KindProduct]
	assert.Equal(t, KindReport{Live: 2, Synced: 2, Orphans: 1, Removed: 1}, pr)
	assert.Equal(t, 1, rep.Kinds[catalog.KindOrder].Synced)
	assert.Equal(t, 3, ticks[catalog.KindProduct])

	ids, err := h.products(t).IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)
	_, ok := h.orders(t).Get("o1")
	assert.True(t, ok)

	assert.Equal(t, 1.0, counterValue(t, h.reg, "relief_reconcile_runs_total", map[string]string{"result": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, h.reg, "relief_reconcile_removed_total", map[string]string{"kind": "product"}))

	// A second pass finds nothing to remove.
	rep, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Kinds[catalog.KindProduct].Orphans)
}

// racingLister runs write once, right after ListProducts takes its snapshot.
type racingLister struct {
	*store.SQLiteStore
	write func(ctx context.Context) error
	once  sync.Once
}

func (l *racingLister) ListProducts(ctx context.Context, f catalog.ProductFilter) ([]*catalog.Product, error) {
	ps, err := l.SQLiteStore.ListProducts(ctx, f)
	if err != nil {
		return nil, err
	}
	var werr error
	l.once.Do(func() { werr = l.write(ctx) })
	return ps, werr
}

func TestReconciler_KeepsRecordCreatedMidPass(t *testing.T) {
	t.Parallel()
	h := newHarness(t, keywordEmbedder{})
	ctx := context.Background()
	h.store.AddHook(NewInlineHook(h.syncer))
	require.NoError(t, h.store.CreateProduct(ctx, waterFilter()))

	lister := &racingLister{SQLiteStore: h.store, write: func(ctx context.Context) error {
		return h.store.CreateProduct(ctx, tent())
	}}
	rep, err := NewReconciler(lister, h.syncer, 0).Run(ctx, []catalog.Kind{catalog.KindProduct}, nil)
	require.NoError(t, err)

	assert.Equal(t, KindReport{Live: 1, Synced: 1}, rep.Kinds[catalog.KindProduct])
	_, ok := h.products(t).Get("p2")
	assert.True(t, ok, "record created during the pass must stay indexed")
}

func TestReconciler_DoesNotResurrectRecordDeletedMidPass(t *testing.T) {
	t.Parallel()
	h := newHarness(t, keywordEmbedder{})
	ctx := context.Background()
	h.store.AddHook(NewInlineHook(h.syncer))
	require.NoError(t, h.store.CreateProduct(ctx, waterFilter()))
	require.NoError(t, h.store.CreateProduct(ctx, tent()))

	lister := &racingLister{SQLiteStore: h.store, write: func(ctx context.Context) error {
		return h.store.DeleteProduct(ctx, "p1")
	}}
	rep, err := NewReconciler(lister, h.syncer, 0).Run(ctx, []catalog.Kind{catalog.KindProduct}, nil)
	require.NoError(t, err)

	assert.Equal(t, KindReport{Live: 1, Synced: 1}, rep.Kinds[catalog.KindProduct])
	ids, err := h.products(t).IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, ids)
}

func TestReconciler_CountsSkippedWhenEmbedderFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t, failingEmbedder{})
	ctx := context.Background()
	require.NoError(t, h.store.SaveProduct(ctx, waterFilter()))

	rep, err := NewReconciler(h.store, h.syncer, 0).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Kinds[catalog.KindProduct].Skipped)
}

func TestReconciler_ReportsVectorStoreErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t, keywordEmbedder{})
	broken, err := NewSyncer(SyncerConfig{Embedder: keywordEmbedder{}, Collections: brokenCollections{}, Metrics: h.metrics, Logger: discardLogger()})
	require.NoError(t, err)

	_, err = NewReconciler(h.store, broken, 0).RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1.0, counterValue(t, h.reg, "relief_reconcile_runs_total", map[string]string{"result": "error"}))
}

func TestReconciler_RejectsOverlappingRuns(t *testing.T) {
	t.Parallel()
	emb := newBlockingEmbedder()
	h := newHarness(t, emb)
	ctx := context.Background()
	require.NoError(t, h.store.SaveProduct(ctx, waterFilter()))

	r := NewReconciler(h.store, h.syncer, 0)
	errc := make(chan error, 1)
	go func() {
		_, err := r.RunOnce(ctx)
		errc <- err
	}()
	<-emb.started

	_, err := r.RunOnce(ctx)
	assert.ErrorIs(t, err, ErrReconcileInProgress)

	close(emb.release)
	require.NoError(t, <-errc)
}

func TestReconciler_StartStop(t *testing.T) {
	t.Parallel()
	h := newHarness(t, keywordEmbedder{})
	ctx := context.Background()
	require.NoError(t, h.store.SaveProduct(ctx, waterFilter()))

	products := h.products(t)
	r := NewReconciler(h.store, h.syncer, 10*time.Millisecond)
	r.Start(ctx)
	r.Start(ctx) // second Start is a no-op

	require.Eventually(t, func() bool {
		_, ok := products.Get("p1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	r.Stop()

	// Zero interval never starts a loop.
	idle := NewReconciler(h.store, h.syncer, 0)
	idle.Start(ctx)
	idle.Stop()
}
