package indexsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/54b3r/reliefconnect/internal/catalog"
)

// ErrReconcileInProgress is returned by RunOnce when another pass is running.
var ErrReconcileInProgress = errors.New("indexsync: reconcile already in progress")

// RecordLister lists and re-reads the authoritative records.
// *store.SQLiteStore satisfies it.
type RecordLister interface {
	ListProducts(ctx context.Context, f catalog.ProductFilter) ([]*catalog.Product, error)
	ListOrders(ctx context.Context, f catalog.OrderFilter) ([]*catalog.Order, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	GetOrder(ctx context.Context, id string) (*catalog.Order, error)
}

// KindReport summarizes one reconciler pass over a single record kind.
type KindReport struct {
	Live    int `json:"live"`
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Orphans int `json:"orphans"`
	Removed int `json:"removed"`
}

// Report summarizes a reconciler pass.
type Report struct {
	Kinds      map[catalog.Kind]KindReport `json:"kinds"`
	StartedAt  time.Time                   `json:"startedAt"`
	DurationMs int64                       `json:"durationMs"`
}

// Progress is called after each record or orphan is processed. total is
// the number of live records plus orphans for the kind.
type Progress func(kind catalog.Kind, done, total int)

// Reconciler re-upserts every live record and deletes index entries whose
// record no longer exists.
type Reconciler struct {
	records  RecordLister
	syncer   *Syncer
	interval time.Duration
	log      *slog.Logger

	runMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewReconciler returns a Reconciler. interval is used by Start; zero
// disables periodic runs.
func NewReconciler(records RecordLister, s *Syncer, interval time.Duration) *Reconciler {
	return &Reconciler{records: records, syncer: s, interval: interval, log: s.log}
}

// RunOnce reconciles every record kind.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	return r.Run(ctx, []catalog.Kind{catalog.KindProduct, catalog.KindOrder}, nil)
}

// Run reconciles the given kinds, reporting progress when non-nil.
func (r *Reconciler) Run(ctx context.Context, kinds []catalog.Kind, progress Progress) (Report, error) {
	if !r.runMu.TryLock() {
		return Report{}, ErrReconcileInProgress
	}
	defer r.runMu.Unlock()

	rep := Report{Kinds: make(map[catalog.Kind]KindReport), StartedAt: time.Now()}
	removed := make(map[string]int)
	var errs []error
	for _, kind := range kinds {
		kr, err := r.reconcileKind(ctx, kind, progress)
		rep.Kinds[kind] = kr
		removed[string(kind)] = kr.Removed
		if err != nil {
			errs = append(errs, err)
		}
	}
	rep.DurationMs = time.Since(rep.StartedAt).Milliseconds()

	err := errors.Join(errs...)
	r.syncer.metrics.reconciled(err, removed)
	if err != nil {
		r.log.Error("indexsync: reconcile finished with errors", slog.String("error", err.Error()))
	} else {
		r.log.Info("indexsync: reconcile finished", slog.Any("report", rep.Kinds), slog.Int64("duration_ms", rep.DurationMs))
	}
	return rep, err
}

// reconcileKind snapshots the index before the store, so an entry written by
// a hook during the pass is always backed by a listed or re-read record.
// Every record is re-read before it is upserted and every orphan before it
// is deleted; writes that land mid-pass are left to their own hooks.
func (r *Reconciler) reconcileKind(ctx context.Context, kind catalog.Kind, progress Progress) (KindReport, error) {
	var kr KindReport

	col, err := r.syncer.Collection(ctx, kind)
	if err != nil {
		return kr, fmt.Errorf("indexsync: reconcile %s: collection: %w", kind, err)
	}
	indexed, err := col.IDs(ctx)
	if err != nil {
		return kr, fmt.Errorf("indexsync: reconcile %s: list index: %w", kind, err)
	}
	records, err := r.listRecords(ctx, kind)
	if err != nil {
		return kr, err
	}

	live := make(map[string]struct{}, len(records))
	for _, rec := range records {
		live[rec.RecordID()] = struct{}{}
	}
	var candidates []string
	for _, id := range indexed {
		if _, ok := live[id]; !ok {
			candidates = append(candidates, id)
		}
	}

	kr.Live = len(records)
	total, done := len(records)+len(candidates), 0
	tick := func() {
		done++
		if progress != nil {
			progress(kind, done, total)
		}
	}

	for _, listed := range records {
		if err := ctx.Err(); err != nil {
			return kr, err
		}
		rec, err := r.current(ctx, kind, listed.RecordID())
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			// Deleted after the snapshot; its delete hook owns the entry.
			kr.Live--
			tick()
			continue
		case err != nil:
			r.log.Warn("indexsync: reconcile re-read failed",
				slog.String("kind", string(kind)), slog.String("id", listed.RecordID()), slog.String("error", err.Error()))
			kr.Failed++
			tick()
			continue
		}
		switch r.syncer.UpsertRecord(ctx, rec).Outcome {
		case OutcomeSynced:
			kr.Synced++
		case OutcomeSkipped:
			kr.Skipped++
		default:
			kr.Failed++
		}
		tick()
	}

	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return kr, err
		}
		_, err := r.current(ctx, kind, id)
		switch {
		case err == nil:
			// Created after the snapshot and indexed by its hook.
			tick()
			continue
		case !errors.Is(err, catalog.ErrNotFound):
			r.log.Warn("indexsync: reconcile orphan check failed",
				slog.String("kind", string(kind)), slog.String("id", id), slog.String("error", err.Error()))
			kr.Failed++
			tick()
			continue
		}
		kr.Orphans++
		if r.syncer.DeleteRecord(ctx, kind, id).OK() {
			kr.Removed++
		} else {
			kr.Failed++
		}
		tick()
	}
	return kr, nil
}

// current re-reads one record from the store.
func (r *Reconciler) current(ctx context.Context, kind catalog.Kind, id string) (catalog.Record, error) {
	switch kind {
	case catalog.KindProduct:
		p, err := r.records.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		return p, nil
	case catalog.KindOrder:
		o, err := r.records.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("indexsync: unknown record kind %q", kind)
	}
}

func (r *Reconciler) listRecords(ctx context.Context, kind catalog.Kind) ([]catalog.Record, error) {
	switch kind {
	case catalog.KindProduct:
		ps, err := r.records.ListProducts(ctx, catalog.ProductFilter{})
		if err != nil {
			return nil, fmt.Errorf("indexsync: reconcile products: %w", err)
		}
		out := make([]catalog.Record, len(ps))
		for i, p := range ps {
			out[i] = p
		}
		return out, nil
	case catalog.KindOrder:
		orders, err := r.records.ListOrders(ctx, catalog.OrderFilter{})
		if err != nil {
			return nil, fmt.Errorf("indexsync: reconcile orders: %w", err)
		}
		out := make([]catalog.Record, len(orders))
		for i, o := range orders {
			out[i] = o
		}
		return out, nil
	default:
		return nil, fmt.Errorf("indexsync: unknown record kind %q", kind)
	}
}

// Start runs RunOnce every interval in a background goroutine until Stop
// is called or ctx is done. It is a no-op when the interval is zero or the
// loop is already running.
func (r *Reconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})

	r.wg.Add(1)
	go r.loop(ctx, r.stopCh)
}

func (r *Reconciler) loop(ctx context.Context, stop <-chan struct{}) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); errors.Is(err, ErrReconcileInProgress) {
				r.log.Debug("indexsync: skipping scheduled reconcile, one is already running")
			}
		}
	}
}

// Stop ends the periodic loop and waits for an in-flight pass to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
}
