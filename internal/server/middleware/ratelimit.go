package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// limiterIdle is how long a key may go unused before its bucket is dropped.
const limiterIdle = 30 * time.Minute

type bucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiters hands out one token bucket per key. The HTTP middleware keys by
// client IP or user ID, and the WebSocket hub keys by user ID so every tab
// a user has open draws from one event budget.
//
// Idle buckets are swept lazily from Allow, so no background goroutine is
// needed.
type Limiters[K comparable] struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[K]*bucket
	nextSweep time.Time
}

// NewLimiters returns per-key limiters refilling at perSecond with the given
// burst.
func NewLimiters[K comparable](perSecond float64, burst int) *Limiters[K] {
	return &Limiters[K]{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[K]*bucket),
	}
}

// Allow consumes one token from key's bucket.
func (l *Limiters[K]) Allow(key K) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.nextSweep) {
		cutoff := now.Add(-limiterIdle)
		for k, b := range l.buckets {
			if b.lastAccess.Before(cutoff) {
				delete(l.buckets, k)
			}
		}
		l.nextSweep = now.Add(limiterIdle / 3)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastAccess = now
	return b.limiter.AllowN(now, 1)
}

// Len reports how many keys currently hold a bucket.
func (l *Limiters[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// throttle rejects requests whose key has run out of tokens. Requests for
// which keyOf reports false pass through untouched.
func throttle[K comparable](limiters *Limiters[K], keyOf func(*http.Request) (K, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key, ok := keyOf(r); ok && !limiters.Allow(key) {
				writeProblem(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP applies per-IP rate limiting ahead of authentication so
// credential guessing on the handshake is throttled. The key is the host part
// of r.RemoteAddr, which chi's RealIP middleware has already rewritten.
func RateLimitByIP(requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	return throttle(NewLimiters[string](requestsPerSecond, burst), func(r *http.Request) (string, bool) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr, true
		}
		return host, true
	})
}

// RateLimit applies per-user rate limiting to authenticated routes.
// Unauthenticated requests fall through to the IP limiter.
func RateLimit(requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	return throttle(NewLimiters[uuid.UUID](requestsPerSecond, burst), func(r *http.Request) (uuid.UUID, bool) {
		return UserIDFromContext(r.Context())
	})
}
