package indexsync

import (
	"context"
	"fmt"

	"github.com/54b3r/reliefconnect/internal/catalog"
)

// Mode selects how the Hook runs sync jobs.
type Mode string

const (
	// ModeAsync hands jobs to a Queue and returns immediately.
	ModeAsync Mode = "async"
	// ModeInline runs the sync on the writer's goroutine before returning.
	ModeInline Mode = "inline"
)

// ParseMode validates a RELIEF_SYNC_MODE value. Empty means ModeAsync.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAsync:
		return ModeAsync, nil
	case ModeInline:
		return ModeInline, nil
	default:
		return "", fmt.Errorf("indexsync: unknown sync mode %q (valid: async, inline)", s)
	}
}

// Hook implements catalog.Hook by forwarding committed writes to a Syncer.
// Whatever happens to the sync, the write that triggered it stands.
type Hook struct {
	syncer *Syncer
	queue  *Queue
}

var _ catalog.Hook = (*Hook)(nil)

// NewInlineHook returns a Hook that syncs on the caller's goroutine.
func NewInlineHook(s *Syncer) *Hook {
	return &Hook{syncer: s}
}

// NewQueuedHook returns a Hook that enqueues sync jobs on q.
func NewQueuedHook(q *Queue) *Hook {
	return &Hook{syncer: q.syncer, queue: q}
}

// AfterSave upserts the saved record's index entry.
func (h *Hook) AfterSave(ctx context.Context, rec catalog.Record) {
	// A client disconnect must not abort an index write for data that
	// already committed.
	ctx = context.WithoutCancel(ctx)
	if h.queue != nil {
		h.queue.enqueue(job{ctx: ctx, op: OpUpsert, rec: rec})
		return
	}
	h.syncer.UpsertRecord(ctx, rec)
}

// AfterDelete removes the deleted record's index entry.
func (h *Hook) AfterDelete(ctx context.Context, kind catalog.Kind, id string) {
	ctx = context.WithoutCancel(ctx)
	if h.queue != nil {
		h.queue.enqueue(job{ctx: ctx, op: OpDelete, kind: kind, id: id})
		return
	}
	h.syncer.DeleteRecord(ctx, kind, id)
}
