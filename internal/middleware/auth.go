// Package middleware provides HTTP middlewares for authentication, request
// logging and metrics.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/atinyakov/consultdesk/internal/models"
)

type ctxKey string

const userKey ctxKey = "user"

// Authenticator resolves a bearer access token to a member identity.
type Authenticator interface {
	Authenticate(ctx context.Context, access string) (*models.Identity, error)
}

// WithUserContext resolves the bearer token, if any, and stores the member
// in the request context. Requests without an Authorization header pass
// through anonymously; a header carrying an invalid token is rejected with
// 401 so a stale client learns to refresh.
func WithUserContext(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				writeUnauthorized(w, "malformed authorization header")
				return
			}
			id, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				writeUnauthorized(w, "token invalid or expired")
				return
			}
			ctx := context.WithValue(r.Context(), userKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests. It must run after WithUserContext.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserFromContext(r.Context()) == nil {
			writeUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserFromContext returns the authenticated member, or nil for an
// anonymous request.
func GetUserFromContext(ctx context.Context) *models.Identity {
	id, _ := ctx.Value(userKey).(*models.Identity)
	return id
}

// WithUser returns a copy of ctx carrying id. Handlers under test use it in
// place of the middleware.
func WithUser(ctx context.Context, id *models.Identity) context.Context {
	return context.WithValue(ctx, userKey, id)
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="consultdesk"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
