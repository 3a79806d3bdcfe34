package server

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/reliefconnect/internal/logging"
)

const (
	// defaultRateLimit is the per-IP requests/second on /api/recommend when
	// no explicit limit is configured.
	defaultRateLimit = 10

	// defaultRateBurst is the per-IP burst when none is configured.
	defaultRateBurst = 20

	// limiterIdleTTL is how long an IP may stay silent before its bucket is
	// evicted.
	limiterIdleTTL = 5 * time.Minute
)

// ipLimiter holds a token bucket and the last time its IP was seen.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token-bucket limit. Idle buckets are
// evicted every minute to bound memory.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rps      rate.Limit
	burst    int
	log      *slog.Logger
}

// newRateLimiter constructs a rateLimiter and starts its eviction goroutine.
// The returned stop function ends the goroutine and may be called more than
// once.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		log:      log,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	var once sync.Once
	return rl, func() { once.Do(func() { close(stopCh) }) }
}

// allow reports whether ip may make a request now.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()
	return entry.limiter.Allow()
}

func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			if n := rl.evict(now.Add(-limiterIdleTTL)); n > 0 {
				rl.log.Debug("rate limiter: evicted idle buckets", slog.Int("count", n))
			}
		}
	}
}

// evict removes buckets last seen before cutoff and returns how many went.
func (rl *rateLimiter) evict(cutoff time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	n := 0
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
			n++
		}
	}
	return n
}

// middleware rejects requests over the limit with 429 and a Retry-After
// header before they reach next.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the remote IP without its port. X-Forwarded-For is not
// trusted.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if i := strings.LastIndexByte(r.RemoteAddr, ':'); i >= 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}
