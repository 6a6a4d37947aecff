package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/budgetbuddy/authd/pkg/httpx"
)

func TestThrottlePerClient(t *testing.T) {
	throttle := httpx.NewThrottle(1, 2)

	handler := httpx.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
		throttle.Middleware(),
	)

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/livez", nil)
		req.RemoteAddr = ip + ":54321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("burst then reject", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, do("10.0.0.1"))
		require.Equal(t, http.StatusNoContent, do("10.0.0.1"))

		code := do("10.0.0.1")
		require.Equal(t, http.StatusTooManyRequests, code)
	})

	t.Run("other clients unaffected", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, do("10.0.0.2"))
	})

	t.Run("rejection carries retry hint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/livez", nil)
		req.RemoteAddr = "10.0.0.1:54321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "1", rec.Header().Get("Retry-After"))
		require.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
	})
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	require.Equal(t, "192.0.2.7", httpx.ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.3")
	require.Equal(t, "198.51.100.3", httpx.ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 198.51.100.3")
	require.Equal(t, "203.0.113.9", httpx.ClientIP(req))
}
