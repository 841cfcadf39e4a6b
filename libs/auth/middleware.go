package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type claimsKey struct{}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// RequireProvider authenticates the bearer token and rewrites header to the
// provider the token names, so downstream handlers never trust a client-sent
// value. Callers holding one of the delegate roles may keep the header they
// sent to act on another provider's behalf.
func RequireProvider(v *Verifier, header string, delegates ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(w, r, v)
			if !ok {
				return
			}
			if !(hasRole(claims, delegates) && r.Header.Get(header) != "") {
				r.Header.Set(header, claims.ProviderID())
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// RequireRole authenticates the bearer token and rejects callers without one of roles.
func RequireRole(v *Verifier, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(w, r, v)
			if !ok {
				return
			}
			if !hasRole(claims, roles) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func authenticate(w http.ResponseWriter, r *http.Request, v *Verifier) (*Claims, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	token, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return nil, false
	}
	claims, err := v.Verify(strings.TrimSpace(token))
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, ErrTokenExpired) {
			msg = "token expired"
		}
		http.Error(w, msg, http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

func hasRole(c *Claims, roles []string) bool {
	for _, role := range roles {
		if c.Role == role {
			return true
		}
	}
	return false
}
