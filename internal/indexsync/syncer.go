// Package indexsync keeps the vector index in step with the record store.
// The Syncer mirrors a single record write or delete into its collection and
// reports a typed Result instead of an error, so index failures never reach
// the write path. Hook plugs the Syncer into the store's post-commit hooks,
// either inline or through a bounded Queue, and the Reconciler repairs any
// drift the best-effort path leaves behind.
package indexsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/reliefconnect/internal/catalog"
	"github.com/54b3r/reliefconnect/internal/rag"
	"github.com/54b3r/reliefconnect/internal/store"
)

// Op is the index operation a Result describes.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Outcome classifies how a sync attempt ended.
type Outcome string

const (
	// OutcomeSynced means the index now reflects the record.
	OutcomeSynced Outcome = "synced"
	// OutcomeSkipped means no embedding was produced; any prior entry is untouched.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the vector store rejected the operation.
	OutcomeFailed Outcome = "failed"
	// OutcomeDropped means the job never ran because the queue was full or closed.
	OutcomeDropped Outcome = "dropped"
)

// Result is the outcome of one sync attempt.
type Result struct {
	Kind     catalog.Kind  `json:"kind"`
	ID       string        `json:"id"`
	Op       Op            `json:"op"`
	Outcome  Outcome       `json:"outcome"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"-"`
	// DurationMs mirrors Duration for JSON consumers.
	DurationMs int64 `json:"durationMs"`
}

// OK reports whether the index reflects the operation.
func (r Result) OK() bool { return r.Outcome == OutcomeSynced }

// Journal persists sync results. *store.SQLiteStore satisfies it.
type Journal interface {
	RecordSync(ctx context.Context, e store.JournalEntry) error
}

// ErrNoEmbedding is reported when the embedder returns no vector.
var ErrNoEmbedding = errors.New("no embedding produced")

// SyncerConfig holds the dependencies of a Syncer.
type SyncerConfig struct {
	Embedder    rag.Embedder
	Collections rag.Collections

	// ProductCollection and OrderCollection name the target collections.
	// Empty values use rag.DefaultProductCollection / rag.DefaultOrderCollection.
	ProductCollection string
	OrderCollection   string

	// Journal is optional.
	Journal Journal
	// Metrics is optional.
	Metrics *Metrics
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Syncer mirrors record writes into the vector index. It is safe for
// concurrent use; each call is independent.
type Syncer struct {
	emb     rag.Embedder
	cols    rag.Collections
	names   map[catalog.Kind]string
	journal Journal
	metrics *Metrics
	log     *slog.Logger
}

// NewSyncer validates cfg and returns a Syncer.
func NewSyncer(cfg SyncerConfig) (*Syncer, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("indexsync: embedder must not be nil")
	}
	if cfg.Collections == nil {
		return nil, fmt.Errorf("indexsync: collections must not be nil")
	}
	if cfg.ProductCollection == "" {
		cfg.ProductCollection = rag.DefaultProductCollection
	}
	if cfg.OrderCollection == "" {
		cfg.OrderCollection = rag.DefaultOrderCollection
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{
		emb:  cfg.Embedder,
		cols: cfg.Collections,
		names: map[catalog.Kind]string{
			catalog.KindProduct: cfg.ProductCollection,
			catalog.KindOrder:   cfg.OrderCollection,
		},
		journal: cfg.Journal,
		metrics: cfg.Metrics,
		log:     log,
	}, nil
}

// CollectionName returns the collection that holds records of kind.
func (s *Syncer) CollectionName(kind catalog.Kind) string {
	return s.names[kind]
}

// Collection returns the vector store for kind.
func (s *Syncer) Collection(ctx context.Context, kind catalog.Kind) (rag.VectorStore, error) {
	name, ok := s.names[kind]
	if !ok {
		return nil, fmt.Errorf("indexsync: unknown record kind %q", kind)
	}
	return s.cols.Collection(ctx, name)
}

// UpsertRecord embeds rec and writes its entry, replacing any previous one.
// It never panics and never returns an error; the outcome is in the Result.
func (s *Syncer) UpsertRecord(ctx context.Context, rec catalog.Record) Result {
	start := time.Now()
	if rec == nil {
		return s.finish(ctx, Result{Op: OpUpsert, Outcome: OutcomeSkipped,
			Err: errors.New("indexsync: nil record")}, start)
	}
	res := Result{Kind: rec.RecordKind(), ID: rec.RecordID(), Op: OpUpsert}

	text, meta, err := project(rec)
	if err != nil {
		res.Outcome, res.Err = OutcomeSkipped, err
		return s.finish(ctx, res, start)
	}

	vecs, err := s.emb.Embed(ctx, []string{text})
	switch {
	case err != nil:
		res.Outcome, res.Err = OutcomeSkipped, fmt.Errorf("embed: %w", err)
		return s.finish(ctx, res, start)
	case len(vecs) == 0 || len(vecs[0]) == 0:
		res.Outcome, res.Err = OutcomeSkipped, ErrNoEmbedding
		return s.finish(ctx, res, start)
	}

	col, err := s.Collection(ctx, res.Kind)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("collection: %w", err)
		return s.finish(ctx, res, start)
	}
	entry := rag.Entry{ID: res.ID, Vector: vecs[0], Metadata: meta, Document: text}
	if err := col.Upsert(ctx, []rag.Entry{entry}); err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return s.finish(ctx, res, start)
	}

	res.Outcome = OutcomeSynced
	return s.finish(ctx, res, start)
}

// DeleteRecord removes the entry for id. Deleting an absent entry succeeds.
func (s *Syncer) DeleteRecord(ctx context.Context, kind catalog.Kind, id string) Result {
	start := time.Now()
	res := Result{Kind: kind, ID: id, Op: OpDelete}

	col, err := s.Collection(ctx, kind)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("collection: %w", err)
		return s.finish(ctx, res, start)
	}
	if err := col.Delete(ctx, []string{id}); err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return s.finish(ctx, res, start)
	}

	res.Outcome = OutcomeSynced
	return s.finish(ctx, res, start)
}

// dropped records a job that was never run.
func (s *Syncer) dropped(ctx context.Context, kind catalog.Kind, op Op, id string, reason error) Result {
	return s.finish(ctx, Result{Kind: kind, ID: id, Op: op, Outcome: OutcomeDropped, Err: reason}, time.Now())
}

// finish logs, counts and journals res.
func (s *Syncer) finish(ctx context.Context, res Result, start time.Time) Result {
	res.Duration = time.Since(start)
	res.DurationMs = res.Duration.Milliseconds()

	attrs := []any{
		slog.String("kind", string(res.Kind)),
		slog.String("id", res.ID),
		slog.String("op", string(res.Op)),
		slog.String("outcome", string(res.Outcome)),
		slog.Duration("duration", res.Duration),
	}
	if res.Err != nil {
		attrs = append(attrs, slog.String("error", res.Err.Error()))
	}
	switch res.Outcome {
	case OutcomeSynced:
		s.log.Debug("indexsync: record synced", attrs...)
	case OutcomeSkipped:
		s.log.Warn("indexsync: record skipped", attrs...)
	default:
		s.log.Error("indexsync: record not synced", attrs...)
	}

	s.metrics.observe(res)

	if s.journal != nil {
		entry := store.JournalEntry{
			Kind:       string(res.Kind),
			RecordID:   res.ID,
			Op:         string(res.Op),
			Outcome:    string(res.Outcome),
			DurationMs: res.DurationMs,
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		if err := s.journal.RecordSync(context.WithoutCancel(ctx), entry); err != nil {
			s.log.Warn("indexsync: journal write failed", slog.String("error", err.Error()))
		}
	}
	return res
}
