package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/reliefconnect/internal/catalog"
	"github.com/54b3r/reliefconnect/internal/indexsync"
	"github.com/54b3r/reliefconnect/internal/recommend"
	"github.com/54b3r/reliefconnect/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// RecommendTimeout bounds a single /api/recommend request, model calls
	// included. Defaults to 60s.
	RecommendTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Records is the record store used by the CRUD handlers.
// *store.SQLiteStore satisfies it; tests use the same type over ":memory:".
type Records interface {
	CreateProduct(ctx context.Context, p *catalog.Product) error
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	ListProducts(ctx context.Context, f catalog.ProductFilter) ([]*catalog.Product, error)
	UpdateProduct(ctx context.Context, p *catalog.Product) error
	DeleteProduct(ctx context.Context, id string) error

	CreateOrder(ctx context.Context, o *catalog.Order) error
	GetOrder(ctx context.Context, id string) (*catalog.Order, error)
	ListOrders(ctx context.Context, f catalog.OrderFilter) ([]*catalog.Order, error)
	UpdateOrder(ctx context.Context, o *catalog.Order) error
	DeleteOrder(ctx context.Context, id string) error
}

// Recommender answers POST /api/recommend. *recommend.Assistant satisfies it.
type Recommender interface {
	Recommend(ctx context.Context, query string) (*recommend.Answer, error)
}

// SyncJournal exposes the sync journal to GET /api/sync/status.
type SyncJournal interface {
	RecentSyncs(ctx context.Context, n int) ([]store.JournalEntry, error)
	SyncCounts(ctx context.Context) (map[string]int, error)
}

// Reconciler runs one index repair pass for POST /api/sync/reconcile.
type Reconciler interface {
	RunOnce(ctx context.Context) (indexsync.Report, error)
}

// QueueLen reports the async sync queue depth. *indexsync.Queue satisfies it.
type QueueLen interface {
	Len() int
}

// Deps are the collaborators the handlers call into. Records is required;
// a nil Recommender, Journal or Reconciler disables its routes with 503.
type Deps struct {
	Records     Records
	Recommender Recommender
	Journal     SyncJournal
	Reconciler  Reconciler
	Queue       QueueLen
}

// Server is the ReliefConnect HTTP API server.
type Server struct {
	// deps holds the handler collaborators.
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// recommendRequest is the JSON body for POST /api/recommend.
type recommendRequest struct {
	// Query is the user's free-text need, e.g. "need clean water".
	Query string `json:"query"`
}

// recommendResponse is the JSON response for POST /api/recommend.
type recommendResponse struct {
	Success  bool                 `json:"success"`
	Intent   recommend.Intent     `json:"intent"`
	Response string               `json:"response"`
	Products []catalog.ProductHit `json:"products"`
}

// resultResponse wraps a single record or list.
type resultResponse struct {
	Success bool `json:"success"`
	Result  any  `json:"result"`
}

// messageResponse is returned by deletes and errors.
type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// syncStatusResponse is the JSON response for GET /api/sync/status.
type syncStatusResponse struct {
	QueueDepth int                  `json:"queueDepth"`
	Counts     map[string]int       `json:"counts"`
	Recent     []store.JournalEntry `json:"recent"`
}
