package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/54b3r/reliefconnect/internal/logging"
)

// probeTimeout is the maximum time allowed for each individual dependency
// probe during a readiness check.
const probeTimeout = 5 * time.Second

// Pinger is implemented by any dependency that can report its own
// reachability. Implementations must be safe to call from multiple
// goroutines.
type Pinger interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error

	// Name returns a short label used in readiness responses
	// (e.g. "qdrant", "embedder").
	Name() string
}

// readyCheck holds the per-dependency result of a readiness probe.
type readyCheck struct {
	// Name is the dependency label.
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// Error contains the failure reason when OK is false.
	Error string `json:"error,omitempty"`
	// LatencyMs is how long the probe took.
	LatencyMs int64 `json:"latencyMs"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every dependency probe succeeded.
	Ready bool `json:"ready"`
	// Checks contains the per-dependency probe results in registration order.
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. All probes run concurrently, each
// with probeTimeout; the response is 200 when every probe succeeds and 503
// otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))
	var wg sync.WaitGroup
	for i, p := range s.pingers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			start := time.Now()
			err := p.Ping(probeCtx)
			checks[i] = readyCheck{Name: p.Name(), OK: err == nil, LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				checks[i].Error = err.Error()
			}
		}()
	}
	wg.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", c.Name),
				slog.String("error", c.Error),
			)
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
