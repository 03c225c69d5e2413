package auth

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

const claimsKey contextKey = "claims"

// ClaimsFromContext returns the caller identity stored by Identify.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// WithClaims stores c in the context.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// Identify resolves the caller identity with a and stores it in the request
// context. Requests without valid credentials continue anonymously; handlers
// decide whether that is acceptable.
func Identify(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.Authenticate(r)
			if err != nil {
				slog.Debug("identity rejected", "error", err, "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}
			if claims != nil {
				r = r.WithContext(WithClaims(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}
