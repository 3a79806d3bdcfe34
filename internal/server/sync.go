package server

import (
	"errors"
	"net/http"

	"github.com/54b3r/reliefconnect/internal/indexsync"
	"github.com/54b3r/reliefconnect/internal/store"
)

// defaultRecentSyncs is the journal window returned by GET /api/sync/status
// when no limit is given.
const defaultRecentSyncs = 50

// handleSyncStatus handles GET /api/sync/status?limit=.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeJSON(w, r, http.StatusServiceUnavailable, messageResponse{Message: "sync journal is not configured"})
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit == 0 {
		limit = defaultRecentSyncs
	}

	recent, err := s.deps.Journal.RecentSyncs(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	counts, err := s.deps.Journal.SyncCounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := syncStatusResponse{Counts: counts, Recent: recent}
	if resp.Recent == nil {
		resp.Recent = []store.JournalEntry{}
	}
	if s.deps.Queue != nil {
		resp.QueueDepth = s.deps.Queue.Len()
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleReconcile handles POST /api/sync/reconcile. A run already in
// progress answers 409.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reconciler == nil {
		writeJSON(w, r, http.StatusServiceUnavailable, messageResponse{Message: "reconciler is not configured"})
		return
	}
	report, err := s.deps.Reconciler.RunOnce(r.Context())
	if errors.Is(err, indexsync.ErrReconcileInProgress) {
		writeJSON(w, r, http.StatusConflict, messageResponse{Message: err.Error()})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resultResponse{Success: true, Result: report})
}
