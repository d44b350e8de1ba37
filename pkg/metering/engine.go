package metering

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marinova/oceanmeter/pkg/ledger"
	"github.com/marinova/oceanmeter/pkg/observability"
	"github.com/marinova/oceanmeter/pkg/plans"
)

var meteringTracer = otel.Tracer("oceanmeter/metering")

// errUnchanged aborts an Update that found nothing to write
var errUnchanged = errors.New("ledger unchanged")

// Receipt is the ledger view returned after a successful operation
type Receipt struct {
	// RemainingCredits is the governing pool of the charged feature
	RemainingCredits   plans.Allowance
	SubscriptionStatus plans.Tier
	UsageCredits       int
	MonthlyCredits     plans.Limits
	// DisplayName is set by plan changes
	DisplayName string
}

func newReceipt(l *ledger.Ledger, f plans.Feature) Receipt {
	r := Receipt{
		SubscriptionStatus: l.SubscriptionStatus,
		UsageCredits:       l.UsageCredits,
		MonthlyCredits:     l.MonthlyCredits,
	}
	if f != "" {
		r.RemainingCredits = l.Remaining(f)
	}
	return r
}

// Engine authorizes and charges metered feature use
type Engine struct {
	store   ledger.Store
	catalog *plans.Catalog
	now     func() time.Time
	metrics *observability.Metrics
	logger  *observability.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMetrics records charges, denials, and rollovers
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the engine logger
func WithLogger(l *observability.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an engine over a ledger store and a plan catalog
func NewEngine(store ledger.Store, catalog *plans.Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		catalog: catalog,
		now:     time.Now,
		logger:  observability.NewLogger(observability.InfoLevel, nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithField("component", "metering")
	return e
}

// gateResult collects what happened to a locked record during authorization
type gateResult struct {
	tier   plans.Tier
	rolled bool
	denial error
}

// gate checks verification, applies a due rollover and authorizes the feature.
// A returned error means nothing may be persisted; a denial is reported in res.
func (e *Engine) gate(l *ledger.Ledger, f plans.Feature, now time.Time, res *gateResult) error {
	*res = gateResult{tier: l.SubscriptionStatus}
	if !l.IsEmailVerified {
		return ErrVerificationRequired
	}
	if l.RolloverDue(now) {
		l.ApplyRollover(e.catalog.GetLimits(l.SubscriptionStatus), now)
		res.rolled = true
	}
	res.denial = authorize(l, f)
	return nil
}

func authorize(l *ledger.Ledger, f plans.Feature) error {
	if l.CanCharge(f) {
		return nil
	}
	if !l.SubscriptionStatus.IsPaid() {
		return &InsufficientCreditsError{
			Tier:                 l.SubscriptionStatus,
			Feature:              f,
			RequiresSubscription: true,
			UsageCredits:         0,
		}
	}
	return &InsufficientCreditsError{
		Tier:            l.SubscriptionStatus,
		Feature:         f,
		RequiresUpgrade: true,
		MonthlyCredits:  l.MonthlyCredits,
	}
}

// observe records metrics and logs for a finished gate
func (e *Engine) observe(userID string, f plans.Feature, res gateResult, err error) {
	if res.rolled {
		e.metrics.RecordRollover(string(res.tier))
		e.logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"tier":    string(res.tier),
		}).Info("monthly credits refilled")
	}
	if reason := denialReason(err); reason != "" {
		e.metrics.RecordDenial(string(res.tier), string(f), reason)
	}
}

// AuthorizeAndCharge gates and charges one use of a feature in a single
// atomic update. A refill that came due is persisted even when the use is
// rejected.
func (e *Engine) AuthorizeAndCharge(ctx context.Context, userID string, feature plans.Feature) (Receipt, error) {
	ctx, span := meteringTracer.Start(ctx, "AuthorizeAndCharge",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("feature", string(feature)),
		),
	)
	defer span.End()

	receipt, err := e.charge(ctx, userID, feature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "charge rejected")
		return Receipt{}, err
	}
	span.SetStatus(codes.Ok, "charged")
	return receipt, nil
}

func (e *Engine) charge(ctx context.Context, userID string, f plans.Feature) (Receipt, error) {
	now := e.now()
	var res gateResult

	committed, err := e.store.Update(ctx, userID, func(l *ledger.Ledger) error {
		if err := e.gate(l, f, now, &res); err != nil {
			return err
		}
		if res.denial != nil {
			if res.rolled {
				return nil
			}
			return res.denial
		}
		l.Deduct(f, now)
		return nil
	})
	if err != nil {
		// the store discarded any refill along with the rejected update
		res.rolled = false
		e.observe(userID, f, res, err)
		return Receipt{}, translate(err)
	}

	e.observe(userID, f, res, res.denial)
	if res.denial != nil {
		return Receipt{}, res.denial
	}

	e.metrics.RecordCharge(string(committed.SubscriptionStatus), string(f))
	return newReceipt(committed, f), nil
}

// Authorize runs the gate without charging. The common case is decided on
// a snapshot; a refusal or a pending refill is settled on the locked record.
func (e *Engine) Authorize(ctx context.Context, userID string, feature plans.Feature) error {
	snapshot, err := e.store.Get(ctx, userID)
	if err != nil {
		return translate(err)
	}

	now := e.now()
	if snapshot.IsEmailVerified && !snapshot.RolloverDue(now) && authorize(snapshot, feature) == nil {
		return nil
	}

	var res gateResult
	_, err = e.store.Update(ctx, userID, func(l *ledger.Ledger) error {
		if err := e.gate(l, feature, now, &res); err != nil {
			return err
		}
		if res.rolled {
			return nil
		}
		if res.denial != nil {
			return res.denial
		}
		return errUnchanged
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		res.rolled = false
		e.observe(userID, feature, res, err)
		return translate(err)
	}

	e.observe(userID, feature, res, res.denial)
	return res.denial
}

// Credits returns the user's ledger as stored. No refill is applied.
func (e *Engine) Credits(ctx context.Context, userID string) (*ledger.Ledger, error) {
	l, err := e.store.Get(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return l, nil
}

// Enroll creates the seeded free ledger for a new account. Enrolling an
// existing user returns the stored ledger.
func (e *Engine) Enroll(ctx context.Context, userID string, emailVerified bool) (*ledger.Ledger, error) {
	l := ledger.New(userID, e.now())
	l.UsageCredits = e.catalog.FreeCredits()
	l.IsEmailVerified = emailVerified

	err := e.store.Create(ctx, l)
	if errors.Is(err, ledger.ErrAlreadyExists) {
		return e.Credits(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	e.logger.WithField("user_id", userID).Info("enrolled user on free tier")
	return l, nil
}

// SetEmailVerified records the verification state asserted by the identity provider
func (e *Engine) SetEmailVerified(ctx context.Context, userID string, verified bool) error {
	_, err := e.store.Update(ctx, userID, func(l *ledger.Ledger) error {
		if l.IsEmailVerified == verified {
			return errUnchanged
		}
		l.IsEmailVerified = verified
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return translate(err)
	}
	return nil
}
