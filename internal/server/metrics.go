package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// recommendRequestsTotal counts completed /api/recommend requests,
	// partitioned by outcome: "ok", "invalid", "timeout", or "error".
	recommendRequestsTotal *prometheus.CounterVec

	// recommendDurationSeconds records the wall-clock duration of each
	// /api/recommend call into the assistant.
	recommendDurationSeconds *prometheus.HistogramVec

	// recommendProducts records how many products each answer carried.
	recommendProducts prometheus.Histogram

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) registers into the provided
// registry rather than the global default, which keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		recommendRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relief",
			Subsystem: "recommend",
			Name:      "requests_total",
			Help:      "Total number of /api/recommend requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		recommendDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relief",
			Subsystem: "recommend",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/recommend requests.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),

		recommendProducts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relief",
			Subsystem: "recommend",
			Name:      "products_returned",
			Help:      "Number of products returned per /api/recommend answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relief",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relief",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument wraps h so every request is counted and timed under name.
func (s *Server) instrument(name string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h(rw, r)
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}
