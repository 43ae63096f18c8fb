package api

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/avtomon/wsChat/internal/metrics"
)

// rateLimiter hands out one rate.Limiter per key (client IP or token subject)
// and forgets keys that stay idle.
type rateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(requestsPerSecond float64, burst int) *rateLimiter {
	return &rateLimiter{
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		clients: make(map[string]*client),
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = time.Now()
	rl.mu.Unlock()

	return c.limiter.Allow()
}

// retryAfter is the whole number of seconds until one token is back.
func (rl *rateLimiter) retryAfter() string {
	if rl.limit <= 0 {
		return "1"
	}
	return strconv.Itoa(int(math.Max(1, math.Ceil(1/float64(rl.limit)))))
}

// cleanup forgets keys idle for longer than maxAge.
func (rl *rateLimiter) cleanup(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

func (rl *rateLimiter) len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// StartCleanup sweeps idle keys every interval until ctx is done.
func (rl *rateLimiter) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup(maxAge)
			}
		}
	}()
}

// limitBy rejects requests whose key has no tokens left. An empty key is
// not limited. scope labels the metric.
func limitBy(rl *rateLimiter, scope string, keyOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := keyOf(r); key != "" && !rl.allow(key) {
				metrics.RateLimitHits.WithLabelValues(scope).Inc()
				w.Header().Set("Retry-After", rl.retryAfter())
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ipRateLimitMiddleware limits by client IP. RemoteAddr already holds the
// real IP once chi's RealIP middleware ran.
func ipRateLimitMiddleware(rl *rateLimiter, scope string) func(http.Handler) http.Handler {
	return limitBy(rl, scope, func(r *http.Request) string {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return ip
	})
}

// rateLimitMiddleware limits authenticated callers by token subject.
func rateLimitMiddleware(rl *rateLimiter) func(http.Handler) http.Handler {
	return limitBy(rl, "api", func(r *http.Request) string {
		if identity := getIdentityFromContext(r.Context()); identity != nil {
			return identity.Subject
		}
		return ""
	})
}
