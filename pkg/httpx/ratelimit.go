package httpx

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttleIdle is how long a client entry may sit unused before the
// janitor drops it.
const throttleIdle = 3 * time.Minute

// Throttle is a coarse per-IP token bucket applied at the edge, in front of
// the identity-aware limiter. It sheds floods before they reach a handler.
type Throttle struct {
	mu      sync.Mutex
	clients map[string]*throttleClient
	rps     rate.Limit
	burst   int
}

type throttleClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewThrottle allows rps sustained requests per client with the given burst.
func NewThrottle(rps float64, burst int) *Throttle {
	return &Throttle{
		clients: make(map[string]*throttleClient),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// Middleware rejects over-rate clients with a 429 problem document.
func (t *Throttle) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !t.allow(ClientIP(r)) {
				WriteRateLimited(w, time.Second)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (t *Throttle) allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()

	c, ok := t.clients[ip]
	if !ok {
		c = &throttleClient{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.clients[ip] = c
		t.maybeCleanup(now)
	}
	c.lastSeen = now

	return c.limiter.Allow()
}

// maybeCleanup evicts idle clients. Runs under mu, only when a new client
// appears, so steady traffic pays nothing.
func (t *Throttle) maybeCleanup(now time.Time) {
	for ip, c := range t.clients {
		if now.Sub(c.lastSeen) > throttleIdle {
			delete(t.clients, ip)
		}
	}
}
