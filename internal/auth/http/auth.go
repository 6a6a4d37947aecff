package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/budgetbuddy/authd/internal/auth/domain"
	"github.com/budgetbuddy/authd/internal/auth/service"
	"github.com/budgetbuddy/authd/pkg/cryptox"
	"github.com/budgetbuddy/authd/pkg/httpx"
	"github.com/budgetbuddy/authd/pkg/slogx"
)

const (
	maxUsernameLen = 64
	minPasswordLen = 8

	defaultCurrency = "AUD"
)

type registerRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	CurrencyCode string `json:"currency_code"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	CurrencyCode string    `json:"currency_code"`
	CreatedAt    time.Time `json:"created_at"`
}

type sessionResponse struct {
	User                 userResponse `json:"user"`
	AccessToken          string       `json:"access_token"`
	RefreshToken         string       `json:"refresh_token"`
	AccessTokenExpiresIn int64        `json:"access_token_expires_in"`
}

func newSessionResponse(sess domain.Session) sessionResponse {
	return sessionResponse{
		User:                 newUserResponse(sess.User),
		AccessToken:          sess.AccessToken,
		RefreshToken:         sess.RefreshSecret,
		AccessTokenExpiresIn: int64(sess.AccessTTL / time.Second),
	}
}

func newUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Username:     u.Username,
		CurrencyCode: u.CurrencyCode,
		CreatedAt:    u.CreatedAt,
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	username := normalizeUsername(req.Username)
	if username == "" || len(username) > maxUsernameLen {
		writeBadRequest(w, "username is required and at most 64 characters")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(req.CurrencyCode))
	if currency == "" {
		currency = defaultCurrency
	}

	sess, err := h.svc.Register(r.Context(), username, req.Password, currency)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusCreated, newSessionResponse(sess))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	username := normalizeUsername(req.Username)
	if username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	key := "login:" + username + ":" + httpx.ClientIP(r)
	if d := h.limiter.Check(key, h.limits.LoginLimit, h.limits.LoginWindow, h.limits.LoginLockout); !d.Allowed {
		h.rejectRateLimited(w, r, "login", key, d.RetryAfter)
		return
	}

	sess, err := h.svc.Login(r.Context(), username, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	// Key on the secret's fingerprint, not the secret, so the raw value
	// stays out of limiter state and logs.
	key := "refresh:" + cryptox.FingerprintSecret(req.RefreshToken) + ":" + httpx.ClientIP(r)
	if d := h.limiter.Check(key, h.limits.RefreshLimit, h.limits.RefreshWindow, 0); !d.Allowed {
		h.rejectRateLimited(w, r, "refresh", key, d.RetryAfter)
		return
	}

	sess, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		h.writeServiceError(w, r, service.ErrUnauthorized)
		return
	}

	var req logoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	if err := h.svc.Logout(r.Context(), principal.ID, req.RefreshToken); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		h.writeServiceError(w, r, service.ErrUnauthorized)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, newUserResponse(principal))
}

func (h *Handler) rejectRateLimited(w http.ResponseWriter, r *http.Request, operation, key string, retryAfter time.Duration) {
	h.metrics.RateLimited.WithLabelValues(operation).Inc()
	slogx.FromContext(r.Context()).Warn("rate limited",
		"operation", operation,
		"key", truncateKey(key),
		"retry_after", retryAfter,
	)
	httpx.WriteRateLimited(w, retryAfter)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrUnauthorized):
		httpx.WriteProblem(w, httpx.Problem{
			Type:   httpx.TypeUnauthorized,
			Title:  "Unauthorized",
			Status: http.StatusUnauthorized,
			Detail: "invalid credentials or token",
		})
	case errors.Is(err, service.ErrRevoked):
		httpx.WriteProblem(w, httpx.Problem{
			Type:   httpx.TypeRefreshRevoked,
			Title:  "Forbidden",
			Status: http.StatusForbidden,
			Detail: "refresh token has been revoked",
		})
	case errors.Is(err, service.ErrReuseDetected):
		httpx.WriteProblem(w, httpx.Problem{
			Type:   httpx.TypeRefreshReuse,
			Title:  "Forbidden",
			Status: http.StatusForbidden,
			Detail: "refresh token was already used and rotated",
		})
	case errors.Is(err, service.ErrUsernameTaken):
		httpx.WriteProblem(w, httpx.Problem{
			Type:   httpx.TypeUsernameTaken,
			Title:  "Conflict",
			Status: http.StatusConflict,
			Detail: "username is already taken",
		})
	default:
		slogx.FromContext(r.Context()).Error("request failed", "error", err)
		httpx.WriteProblem(w, httpx.Problem{
			Type:   httpx.TypeInternal,
			Title:  "Internal Server Error",
			Status: http.StatusInternalServerError,
		})
	}
}

func writeBadRequest(w http.ResponseWriter, detail string) {
	httpx.WriteProblem(w, httpx.Problem{
		Type:   httpx.TypeBadRequest,
		Title:  "Bad Request",
		Status: http.StatusBadRequest,
		Detail: detail,
	})
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// truncateKey keeps rate-limit keys loggable without exposing a full
// secret fingerprint.
func truncateKey(key string) string {
	const max = 24
	if len(key) <= max {
		return key
	}
	return key[:max] + "..."
}
