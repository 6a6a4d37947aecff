package http

import (
	"context"
	"net/http"

	"github.com/budgetbuddy/authd/internal/auth/domain"
	"github.com/budgetbuddy/authd/pkg/httpx"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, principalKey{}, user)
}

func principalFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(principalKey{}).(domain.User)
	return user, ok
}

// Authenticator resolves a bearer access token to its principal.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (domain.User, error)
}

// requireAuth rejects requests without a valid bearer token and attaches
// the principal to the context for downstream handlers.
func requireAuth(auth Authenticator) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := httpx.BearerToken(r)
			if !ok {
				writeUnauthenticated(w)
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				writeUnauthenticated(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), user)))
		})
	}
}

func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="authd"`)
	httpx.WriteProblem(w, httpx.Problem{
		Type:   httpx.TypeUnauthorized,
		Title:  "Unauthorized",
		Status: http.StatusUnauthorized,
		Detail: "missing or invalid access token",
	})
}
