package indexsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/54b3r/reliefconnect/internal/catalog"
)

// Queue defaults.
const (
	DefaultQueueCapacity = 256
	DefaultQueueWorkers  = 1
)

var (
	errQueueFull   = errors.New("sync queue full")
	errQueueClosed = errors.New("sync queue closed")
)

// job is one pending sync operation.
type job struct {
	// ctx is detached from the originating request's cancellation but keeps
	// its values (request-scoped logger, trace ids).
	ctx  context.Context
	op   Op
	rec  catalog.Record
	kind catalog.Kind
	id   string
}

// Queue runs sync jobs on background workers. Enqueue never blocks: when
// the buffer is full the job is dropped and reported as OutcomeDropped, and
// the Reconciler restores the entry later. With a single worker, jobs are
// applied in enqueue order.
type Queue struct {
	syncer  *Syncer
	jobs    chan job
	metrics *Metrics
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue starts workers goroutines draining a buffer of capacity jobs.
// Non-positive values use the defaults.
func NewQueue(s *Syncer, capacity, workers int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if workers <= 0 {
		workers = DefaultQueueWorkers
	}
	q := &Queue{
		syncer:  s,
		jobs:    make(chan job, capacity),
		metrics: s.metrics,
		log:     s.log,
	}
	for range workers {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for j := range q.jobs {
		q.metrics.setQueueDepth(len(q.jobs))
		switch j.op {
		case OpUpsert:
			q.syncer.UpsertRecord(j.ctx, j.rec)
		case OpDelete:
			q.syncer.DeleteRecord(j.ctx, j.kind, j.id)
		}
	}
}

// enqueue offers j without blocking and reports whether it was accepted.
func (q *Queue) enqueue(j job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	kind, id := j.kind, j.id
	if j.op == OpUpsert && j.rec != nil {
		kind, id = j.rec.RecordKind(), j.rec.RecordID()
	}
	if q.closed {
		q.syncer.dropped(j.ctx, kind, j.op, id, errQueueClosed)
		return false
	}
	select {
	case q.jobs <- j:
		q.metrics.setQueueDepth(len(q.jobs))
		return true
	default:
		q.syncer.dropped(j.ctx, kind, j.op, id, errQueueFull)
		return false
	}
}

// Len returns the number of jobs waiting to run.
func (q *Queue) Len() int { return len(q.jobs) }

// Close stops accepting jobs and waits for pending ones to finish, or for
// ctx to expire. Close is idempotent.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.log.Warn("indexsync: queue close timed out with jobs pending", slog.Int("pending", len(q.jobs)))
		return ctx.Err()
	}
}
