package metering

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marinova/oceanmeter/pkg/generation"
	"github.com/marinova/oceanmeter/pkg/plans"
)

// ChargeIfSuccessful gates a feature, runs action once without holding any
// ledger lock, and charges only when action succeeds.
//
// A failed action leaves the ledger untouched: capacity failures become
// *ServiceUnavailableError and everything else, including cancellation and
// timeouts, becomes *GenerationFailedError. When a concurrent request drains
// the pool while action runs, the commit fails with *InsufficientCreditsError
// and the result is discarded uncharged.
func ChargeIfSuccessful[T any](ctx context.Context, e *Engine, userID string, feature plans.Feature, action func(context.Context) (T, error)) (T, Receipt, error) {
	var zero T

	ctx, span := meteringTracer.Start(ctx, "ChargeIfSuccessful",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("feature", string(feature)),
		),
	)
	defer span.End()

	if err := e.Authorize(ctx, userID, feature); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "not authorized")
		return zero, Receipt{}, err
	}

	result, err := action(ctx)
	if err != nil {
		failure := classifyFailure(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "action failed")
		e.logger.WithError(err).WithFields(map[string]interface{}{
			"user_id":   userID,
			"feature":   string(feature),
			"retryable": IsServiceUnavailable(failure),
		}).Warn("generation failed, credits not deducted")
		return zero, Receipt{}, failure
	}

	// The provider has already done the work, so the commit outlives a
	// client disconnect.
	receipt, err := e.charge(context.WithoutCancel(ctx), userID, feature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit rejected")
		if IsInsufficientCredits(err) {
			e.logger.WithFields(map[string]interface{}{
				"user_id": userID,
				"feature": string(feature),
			}).Warn("pool drained during generation, result discarded")
		}
		return zero, Receipt{}, err
	}

	span.SetStatus(codes.Ok, "charged")
	return result, receipt, nil
}

func classifyFailure(err error) error {
	if generation.IsCapacityError(err) {
		return &ServiceUnavailableError{Retryable: true, Err: err}
	}
	return &GenerationFailedError{Err: err}
}
