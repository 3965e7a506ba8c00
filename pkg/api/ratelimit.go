package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/carbonex/conformoor/pkg/config"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a client IP may stay quiet before its bucket
// is dropped from the pool.
const limiterIdleTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per client IP. Buckets refill at
// the tier's per-minute rate and allow a full minute's quota as burst.
type limiterPool struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
}

func newLimiterPool(tier config.RateLimitTier) *limiterPool {
	p := &limiterPool{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(tier.RequestsPerMinute) / 60.0),
		burst:   tier.RequestsPerMinute,
	}

	go p.prune()

	return p
}

// allow consumes one token from ip's bucket, creating it on first sight.
func (p *limiterPool) allow(ip string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.buckets[ip] = b
	}

	b.lastSeen = time.Now()

	return b.limiter.Allow()
}

func (p *limiterPool) prune() {
	ticker := time.NewTicker(limiterIdleTTL / 2)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()

		for ip, b := range p.buckets {
			if time.Since(b.lastSeen) > limiterIdleTTL {
				delete(p.buckets, ip)
			}
		}

		p.mu.Unlock()
	}
}

// rateLimitMiddleware enforces the tier's per-IP request budget.
func (s *server) rateLimitMiddleware(
	tier config.RateLimitTier,
) func(http.Handler) http.Handler {
	pool := newLimiterPool(tier)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !pool.allow(clientIP(r)) {
				writeJSON(w, http.StatusTooManyRequests,
					errorResponse{"rate limit exceeded"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
