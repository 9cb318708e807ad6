package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiterExpiry is how long after the last request before a client's
// bucket is garbage-collected.
const clientLimiterExpiry = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttler applies a per-client token bucket in front of the engine's
// Redis-backed attempt windows. It is an in-process first line of defense:
// the authoritative lockout accounting still lives in the engine.
type Throttler struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
}

// NewThrottler builds a throttler allowing rps requests per second with the
// given burst per client IP.
func NewThrottler(rps float64, burst int) *Throttler {
	return &Throttler{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(rps),
		burst:   burst,
	}
}

// Throttle wraps next with the per-client limit. Requests over the limit get
// 429 with a Retry-After hint.
func (t *Throttler) Throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.allow(remoteIP(r.RemoteAddr)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *Throttler) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	client, ok := t.clients[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.clients[key] = client
	}
	client.lastSeen = time.Now()
	return client.limiter.Allow()
}

// Sweep removes idle client buckets. Call periodically from a background
// goroutine on long-lived servers.
func (t *Throttler) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-clientLimiterExpiry)
	for key, client := range t.clients {
		if client.lastSeen.Before(cutoff) {
			delete(t.clients, key)
		}
	}
}
