package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/polybacker/polybacker/internal/auth"
	"github.com/polybacker/polybacker/internal/domain"
)

type contextKey int

const claimsKey contextKey = 0

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// Auth returns middleware that requires a valid JWT on every /api/* request
// except the login endpoints and the health check. Verified claims are
// attached to the request context.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requiresAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// requiresAuth reports whether the path is behind the JWT wall. The WebSocket
// endpoint runs its own token handshake.
func requiresAuth(path string) bool {
	if !strings.HasPrefix(path, "/api/") {
		return false
	}
	if path == "/api/auth/nonce" || path == "/api/auth/verify" {
		return false
	}
	return path != "/api/health"
}

// WithClaims attaches verified claims to a context.
func WithClaims(ctx context.Context, c auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFrom extracts the verified claims placed by Auth.
func ClaimsFrom(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(auth.Claims)
	return c, ok
}

// IsOwner reports whether the context carries an owner session.
func IsOwner(ctx context.Context) bool {
	c, ok := ClaimsFrom(ctx)
	return ok && c.Role == string(domain.RoleOwner)
}

// extractToken looks for a token in the Authorization header (Bearer scheme).
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
