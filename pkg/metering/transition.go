package metering

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marinova/oceanmeter/pkg/ledger"
	"github.com/marinova/oceanmeter/pkg/plans"
)

// ChangePlan moves a user to another tier.
//
// Moving to free reseeds the universal credits and empties the monthly pools.
// Moving to a paid tier loads that tier's limits and restarts the accounting
// month; universal credits are left as they are. No usage is recorded.
func (e *Engine) ChangePlan(ctx context.Context, userID string, tier string) (Receipt, error) {
	ctx, span := meteringTracer.Start(ctx, "ChangePlan",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("tier", tier),
		),
	)
	defer span.End()

	target, ok := plans.ParseTier(tier)
	if !ok {
		span.SetStatus(codes.Error, "invalid plan")
		return Receipt{}, ErrInvalidPlan
	}

	now := e.now()
	var from plans.Tier
	committed, err := e.store.Update(ctx, userID, func(l *ledger.Ledger) error {
		from = l.SubscriptionStatus
		l.SwitchPlan(target, e.catalog.GetLimits(target), now)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to change plan")
		return Receipt{}, translate(err)
	}

	e.metrics.RecordPlanChange(string(from), string(target))
	e.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"from":    string(from),
		"to":      string(target),
	}).Info("subscription changed")

	receipt := newReceipt(committed, "")
	receipt.DisplayName = e.catalog.DisplayName(target)
	span.SetStatus(codes.Ok, "plan changed")
	return receipt, nil
}
