package middleware

import (
	"context"
	"net/http"
	"strings"

	"litlink/internal/user"
)

type contextKey string

const identityKey contextKey = "identity"

// TokenValidator decouples the middleware from the user service.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*user.Identity, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// Handle authenticates the request. The credential is read from the "token"
// query parameter first, then the Authorization header.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.URL.Query().Get("token")

		if tokenString == "" {
			if auth := r.Header.Get("Authorization"); auth != "" {
				if parts := strings.SplitN(auth, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					tokenString = parts[1]
				}
			}
		}

		if tokenString == "" {
			http.Error(w, "missing authentication token", http.StatusUnauthorized)
			return
		}

		identity, err := am.validator.ValidateToken(r.Context(), tokenString)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects non-admin identities. Must run after Handle.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok || !identity.IsAdmin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFrom returns the authenticated identity stored by Handle.
func IdentityFrom(ctx context.Context) (*user.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*user.Identity)
	return identity, ok
}
