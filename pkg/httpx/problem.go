package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Problem type URIs served in error responses (RFC 7807).
const (
	problemBase = "https://api.budgetbuddy.dev/problems/"

	TypeUnauthorized   = problemBase + "unauthorized"
	TypeRefreshRevoked = problemBase + "refresh-revoked"
	TypeRefreshReuse   = problemBase + "refresh-reuse-detected"
	TypeRateLimited    = problemBase + "rate-limited"
	TypeUsernameTaken  = problemBase + "username-taken"
	TypeBadRequest     = problemBase + "bad-request"
	TypeInternal       = problemBase + "internal"
)

// Problem is an RFC 7807 problem document. RetryAfter, when set, is also
// mirrored into the Retry-After header in whole seconds.
type Problem struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// WriteProblem sends p with Content-Type application/problem+json.
func WriteProblem(w http.ResponseWriter, p Problem) {
	if p.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(p.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/problem+json; charset=utf-8")
	NoCache(w)
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("encode problem", "error", err)
	}
}

// WriteRateLimited is the canonical 429 with a whole-second retry hint.
func WriteRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	WriteProblem(w, Problem{
		Type:       TypeRateLimited,
		Title:      "Too Many Requests",
		Status:     http.StatusTooManyRequests,
		Detail:     "rate limit exceeded, slow down",
		RetryAfter: int(retryAfter / time.Second),
	})
}
