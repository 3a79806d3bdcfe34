package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/reliefconnect/internal/catalog"
	"github.com/54b3r/reliefconnect/internal/logging"
	"github.com/54b3r/reliefconnect/internal/recommend"
)

// handleRecommend handles POST /api/recommend. Retrieval trouble degrades
// the answer inside the assistant, so apart from a blank query or a
// timeout the endpoint answers 200.
func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	if s.deps.Recommender == nil {
		writeJSON(w, r, http.StatusServiceUnavailable, messageResponse{Message: "recommendations are not configured"})
		return
	}

	var req recommendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.metrics.recommendRequestsTotal.WithLabelValues("invalid").Inc()
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.metrics.recommendRequestsTotal.WithLabelValues("invalid").Inc()
		writeJSON(w, r, http.StatusBadRequest, messageResponse{Message: "query is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RecommendTimeout)
	defer cancel()

	start := time.Now()
	ans, err := s.deps.Recommender.Recommend(ctx, req.Query)
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, recommend.ErrEmptyQuery):
		outcome = "invalid"
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	s.metrics.recommendRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.recommendDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())

	switch outcome {
	case "invalid":
		writeJSON(w, r, http.StatusBadRequest, messageResponse{Message: "query is required"})
		return
	case "timeout":
		log.Warn("recommend: timed out", slog.Duration("after", elapsed))
		writeJSON(w, r, http.StatusGatewayTimeout, messageResponse{Message: "recommendation timed out"})
		return
	case "error":
		writeError(w, r, err)
		return
	}

	products := ans.Products
	if products == nil {
		products = []catalog.ProductHit{}
	}
	s.metrics.recommendProducts.Observe(float64(len(products)))
	log.Info("recommend: answered",
		slog.String("intent", string(ans.Intent)),
		slog.Int("products", len(products)),
		slog.Duration("duration", elapsed),
	)
	writeJSON(w, r, http.StatusOK, recommendResponse{
		Success:  true,
		Intent:   ans.Intent,
		Response: ans.Response,
		Products: products,
	})
}
