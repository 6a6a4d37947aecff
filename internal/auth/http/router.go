// Package http exposes the session core over a versioned JSON API.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/budgetbuddy/authd/internal/auth/metrics"
	"github.com/budgetbuddy/authd/internal/auth/rate"
	"github.com/budgetbuddy/authd/internal/auth/service"
	"github.com/budgetbuddy/authd/internal/auth/store"
	"github.com/budgetbuddy/authd/pkg/httpx"
	"github.com/budgetbuddy/authd/pkg/slogx"
)

// LimitConfig holds the per-endpoint budgets for the identity-keyed
// attempt limiter.
type LimitConfig struct {
	LoginLimit    int
	LoginWindow   time.Duration
	LoginLockout  time.Duration
	RefreshLimit  int
	RefreshWindow time.Duration
}

// Handler owns the API endpoints and their supporting pieces.
type Handler struct {
	svc     *service.SessionService
	store   store.Store
	limiter *rate.Limiter
	metrics *metrics.Metrics
	limits  LimitConfig
}

func NewHandler(svc *service.SessionService, st store.Store, limiter *rate.Limiter, m *metrics.Metrics, limits LimitConfig) *Handler {
	return &Handler{
		svc:     svc,
		store:   st,
		limiter: limiter,
		metrics: m,
		limits:  limits,
	}
}

// Routes assembles the full mux: public auth endpoints behind the edge
// throttle, authenticated endpoints behind bearer authn, and the
// operational endpoints.
func (h *Handler) Routes(logger *slog.Logger, throttle *httpx.Throttle) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/auth/register", h.handleRegister)
	mux.HandleFunc("POST /v1/auth/login", h.handleLogin)
	mux.HandleFunc("POST /v1/auth/refresh", h.handleRefresh)

	authed := requireAuth(h.svc)
	mux.Handle("POST /v1/auth/logout", authed(http.HandlerFunc(h.handleLogout)))
	mux.Handle("GET /v1/auth/me", authed(http.HandlerFunc(h.handleMe)))

	mux.HandleFunc("GET /livez", h.handleLivez)
	mux.HandleFunc("GET /readyz", h.handleReadyz)
	mux.Handle("GET /metrics", h.metrics.Handler())

	return httpx.Chain(mux,
		slogx.HTTPMiddleware(logger),
		throttle.Middleware(),
	)
}
