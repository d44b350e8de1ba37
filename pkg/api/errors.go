package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/marinova/oceanmeter/pkg/httputil"
	"github.com/marinova/oceanmeter/pkg/metering"
	"github.com/marinova/oceanmeter/pkg/observability"
)

// writeMeteringError maps engine and wrapper outcomes to responses. what
// names the product in generation failure messages, e.g. "insights".
func writeMeteringError(w http.ResponseWriter, r *http.Request, err error, what string) {
	var (
		insufficient *metering.InsufficientCreditsError
		unavailable  *metering.ServiceUnavailableError
		failed       *metering.GenerationFailedError
	)
	logger := observability.FromContext(r.Context())

	switch {
	case errors.Is(err, metering.ErrNotFound):
		httputil.WriteNotFound(w, "User not found")

	case errors.Is(err, metering.ErrVerificationRequired):
		httputil.WriteForbidden(w, "Please verify your email to use this feature", httputil.Fields{
			"requiresVerification": true,
		})

	case errors.As(err, &insufficient):
		if insufficient.RequiresSubscription {
			httputil.WriteForbidden(w, insufficient.Error(), httputil.Fields{
				"requiresSubscription": true,
				"usageCredits":         0,
			})
			return
		}
		httputil.WriteForbidden(w, insufficient.Error(), httputil.Fields{
			"requiresUpgrade": true,
			"featureCredits":  insufficient.MonthlyCredits,
		})

	case errors.As(err, &unavailable):
		logger.WithError(unavailable.Err).Warn("generation provider at capacity")
		httputil.WriteFailure(w, http.StatusServiceUnavailable, unavailable.Error(), httputil.Fields{
			"serviceUnavailable": true,
			"retryable":          unavailable.Retryable,
		})

	case errors.As(err, &failed):
		logger.WithError(failed.Err).Error("generation failed")
		httputil.WriteFailure(w, http.StatusInternalServerError,
			fmt.Sprintf("Unable to generate %s at this time. Please try again later. Your credits have NOT been deducted.", what),
			httputil.Fields{"serviceUnavailable": true},
		)

	default:
		logger.WithError(err).Error("request failed")
		httputil.WriteServerError(w)
	}
}
