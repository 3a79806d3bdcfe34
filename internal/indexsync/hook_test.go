package indexsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/reliefconnect/internal/catalog"
)

func TestParseMode(t *testing.T) {
	t.Parallel()
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAsync, m)
	m, err = ParseMode("inline")
	require.NoError(t, err)
	assert.Equal(t, ModeInline, m)
	_, err = ParseMode("sometimes")
	assert.Error(t, err)
}

func TestInlineHook_WriteThroughStore(t *testing.T) {
	t.Parallel()
	h := newHarness(t, keywordEmbedder{})
	h.store.AddHook(NewInlineHook(h.syncer))

	// A cancelled request context must not stop the sync of committed data.
	ctx, cancel := context.WithCancel(context.Background())
	p := waterFilter()
	require.NoError(t, h.store.CreateProduct(ctx, p))
	cancel()

	e, ok := h.products(t).Get(p.ID)
	require.True(t, ok, "product should be indexed before CreateProduct returns")
	assert.Equal(t, "Water Filter", e.Metadata["name"])

	require.NoError(t, h.store.DeleteProduct(context.Background(), p.ID))
	_, ok = h.products(t).Get(p.ID)
	assert.False(t, ok)
}

func TestInlineHook_EmbedFailureDoesNotFailWrite(t *testing.T) {
	t.Parallel()
	h := newHarness(t, keywordEmbedder{})
	failing, err := NewSyncer(SyncerConfig{Embedder: failingEmbedder{}, Collections: h.cols, Journal: h.store, Logger: discardLogger()})
	require.NoError(t, err)
	h.store.AddHook(NewInlineHook(failing))

	p := tent()
	require.NoError(t, h.store.CreateProduct(context.Background(), p))
	n, _ := h.products(t).Count(context.Background())
	assert.Zero(t, n)

	counts, err := h.store.SyncCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts["skipped"])
}

func TestQueuedHook_DrainsOnClose(t *testing.T) {
	t.Parallel()
	h := newHarness(t, keywordEmbedder{})
	q := NewQueue(h.syncer, 16, 1)
	h.store.AddHook(NewQueuedHook(q))
	ctx := context.Background()

	require.NoError(t, h.store.CreateProduct(ctx, waterFilter()))
	require.NoError(t, h.store.CreateProduct(ctx, tent()))
	require.NoError(t, h.store.DeleteProduct(ctx, "p2"))

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, q.Close(closeCtx))

	ids, err := h.products(t).IDs(ctx)
	require.NoError(t, err)
	// A single worker applies jobs in order: the delete of p2 follows its upsert.
	assert.Equal(t, []string{"p1"}, ids)

	// Jobs offered after Close are dropped, never run.
	assert.False(t, q.enqueue(job{ctx: ctx, op: OpUpsert, rec: tent()}))
	assert.Equal(t, 1.0, counterValue(t, h.reg, "relief_sync_operations_total",
		map[string]string{"outcome": "dropped"}))
	require.NoError(t, q.Close(closeCtx), "Close must be idempotent")
}

func TestQueue_FullQueueDropsWithoutBlocking(t *testing.T) {
	t.Parallel()
	emb := newBlockingEmbedder()
	h := newHarness(t, emb)
	q := NewQueue(h.syncer, 1, 1)
	hook := NewQueuedHook(q)
	ctx := context.Background()

	// First job occupies the worker, second fills the buffer, third is dropped.
	hook.AfterSave(ctx, waterFilter())
	<-emb.started
	hook.AfterSave(ctx, tent())

	done := make(chan struct{})
	go func() {
		hook.AfterSave(ctx, &catalog.Product{ID: "p3", Name: "Blanket"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AfterSave blocked on a full queue")
	}

	close(emb.release)
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, q.Close(closeCtx))

	ids, err := h.products(t).IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)

	counts, err := h.store.SyncCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["dropped"])
	assert.Equal(t, 2, counts["synced"])
}
