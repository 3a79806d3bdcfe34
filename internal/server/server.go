// Package server implements the ReliefConnect HTTP API: product and order
// CRUD, product recommendations, sync status and health endpoints.
// The server is started by the `relief serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/reliefconnect/internal/catalog"
	"github.com/54b3r/reliefconnect/internal/logging"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// New constructs a Server from the provided collaborators and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Records == nil {
		return nil, fmt.Errorf("server: records must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Long enough for a reconcile pass or a slow model summary.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RecommendTimeout == 0 {
		cfg.RecommendTimeout = 60 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		log.Warn("server: RELIEF_API_KEY not set, /api routes are unauthenticated")
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stop

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.routes(rl)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the request multiplexer. Health, readiness and metrics are
// always open; every other /api route sits behind authMiddleware.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	protect := func(name string, h http.HandlerFunc) http.Handler {
		return authMiddleware(s.cfg.APIKey, s.instrument(name, h))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /api/health", s.instrument("health", s.handleHealth))
	mux.Handle("GET /api/ready", s.instrument("ready", s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	mux.Handle("POST /api/products", protect("products_create", s.handleCreateProduct))
	mux.Handle("GET /api/products", protect("products_list", s.handleListProducts))
	mux.Handle("GET /api/products/{id}", protect("products_get", s.handleGetProduct))
	mux.Handle("PUT /api/products/{id}", protect("products_update", s.handleUpdateProduct))
	mux.Handle("DELETE /api/products/{id}", protect("products_delete", s.handleDeleteProduct))

	mux.Handle("POST /api/orders", protect("orders_create", s.handleCreateOrder))
	mux.Handle("GET /api/orders", protect("orders_list", s.handleListOrders))
	mux.Handle("GET /api/orders/{id}", protect("orders_get", s.handleGetOrder))
	mux.Handle("PUT /api/orders/{id}", protect("orders_update", s.handleUpdateOrder))
	mux.Handle("DELETE /api/orders/{id}", protect("orders_delete", s.handleDeleteOrder))

	mux.Handle("POST /api/recommend", authMiddleware(s.cfg.APIKey,
		rl.middleware(s.instrument("recommend", s.handleRecommend))))

	mux.Handle("GET /api/sync/status", protect("sync_status", s.handleSyncStatus))
	mux.Handle("POST /api/sync/reconcile", protect("sync_reconcile", s.handleReconcile))
	return mux
}

// Handler returns the fully wrapped HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError maps err to an HTTP status: catalog.ErrNotFound -> 404,
// catalog.ErrInvalidInput -> 400, anything else -> 500 with the cause logged
// and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, r, http.StatusNotFound, messageResponse{Message: err.Error()})
	case errors.Is(err, catalog.ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, messageResponse{Message: err.Error()})
	default:
		logging.FromContext(r.Context()).Error("request failed", slog.Any("error", err))
		writeJSON(w, r, http.StatusInternalServerError, messageResponse{Message: "internal error"})
	}
}

// decodeJSON reads a size-capped JSON body into v. Failures are reported as
// catalog.ErrInvalidInput so writeError answers 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", catalog.ErrInvalidInput, err)
	}
	return nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", catalog.ErrInvalidInput, name)
	}
	return n, nil
}
