// Package metering authorizes and charges metered feature use against a user's
// credit ledger.
//
// # Overview
//
// Every check and mutation runs inside ledger.Store.Update, so two requests
// for the same user never interleave between "has credits" and "deduct".
// The order of checks is fixed: the ledger must exist, the email must be
// verified, a due monthly refill is applied, and finally the governing pool
// must have a credit left.
//
// Plain gates charge in one step:
//
//	receipt, err := engine.AuthorizeAndCharge(ctx, userID, plans.FeatureChat)
//
// Generative features only pay for results that were actually produced:
//
//	brief, receipt, err := metering.ChargeIfSuccessful(ctx, engine, userID,
//		plans.FeatureWeatherBrief,
//		func(ctx context.Context) (*generation.Content, error) {
//			return provider.Generate(ctx, req)
//		})
//
// # Errors
//
//	ErrNotFound                  no ledger for the user
//	ErrVerificationRequired      email not verified, nothing charged
//	*InsufficientCreditsError    pool exhausted (RequiresSubscription or RequiresUpgrade)
//	*ServiceUnavailableError     provider at capacity, nothing charged, retryable
//	*GenerationFailedError       provider failed, nothing charged
//	ErrInvalidPlan               unknown tier passed to ChangePlan
//
// Anything else is an infrastructure failure.
package metering
