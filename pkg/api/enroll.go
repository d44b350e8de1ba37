package api

import (
	"net/http"

	"github.com/marinova/oceanmeter/pkg/httputil"
	"github.com/marinova/oceanmeter/pkg/metering"
	"github.com/marinova/oceanmeter/pkg/middleware"
	"github.com/marinova/oceanmeter/pkg/observability"
)

// enrollMiddleware makes sure the authenticated user has a ledger and that
// its verification flag follows the identity provider. Tokens that do not
// assert verification leave the stored flag alone.
func enrollMiddleware(engine *metering.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := middleware.ClaimsFromContext(r.Context())
			if claims == nil {
				httputil.WriteUnauthorized(w, "No token, authorization denied")
				return
			}

			verified := claims.EmailVerified != nil && *claims.EmailVerified
			l, err := engine.Enroll(r.Context(), claims.UserID, verified)
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("failed to enroll user")
				httputil.WriteServerError(w)
				return
			}

			if claims.EmailVerified != nil && l.IsEmailVerified != *claims.EmailVerified {
				if err := engine.SetEmailVerified(r.Context(), claims.UserID, *claims.EmailVerified); err != nil {
					observability.FromContext(r.Context()).WithError(err).Error("failed to sync email verification")
					httputil.WriteServerError(w)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
