package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/marinova/oceanmeter/pkg/contextkeys"
	"github.com/marinova/oceanmeter/pkg/httputil"
	"github.com/marinova/oceanmeter/pkg/identity"
	"github.com/marinova/oceanmeter/pkg/observability"
)

// AuthMiddleware verifies bearer tokens with an identity.Authenticator
type AuthMiddleware struct {
	authenticator identity.Authenticator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator identity.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Handler rejects requests without a valid bearer token. On success the
// claims and the user id are stored in the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := httputil.BearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "No token, authorization denied")
			return
		}

		claims, err := m.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, identity.ErrInvalidToken) {
				observability.FromContext(r.Context()).WithError(err).Warn("token verification failed")
			}
			httputil.WriteUnauthorized(w, "Token is not valid")
			return
		}

		ctx := contextkeys.WithClaims(r.Context(), claims)
		ctx = contextkeys.WithUserID(ctx, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the verified claims, or nil outside AuthMiddleware
func ClaimsFromContext(ctx context.Context) *identity.Claims {
	claims, _ := ctx.Value(contextkeys.ClaimsKey).(*identity.Claims)
	return claims
}
