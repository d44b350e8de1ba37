package metering

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinova/oceanmeter/pkg/ledger"
	"github.com/marinova/oceanmeter/pkg/observability"
	"github.com/marinova/oceanmeter/pkg/plans"
)

type fixture struct {
	engine  *Engine
	store   *ledger.MemoryStore
	metrics *observability.Metrics
	now     time.Time
}

func newFixture(t *testing.T, catalog *plans.Catalog) *fixture {
	t.Helper()
	if catalog == nil {
		catalog = plans.DefaultCatalog()
	}

	f := &fixture{
		store:   ledger.NewMemoryStore(),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		now:     time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(f.store, catalog,
		WithClock(func() time.Time { return f.now }),
		WithMetrics(f.metrics),
		WithLogger(observability.NewLogger(observability.ErrorLevel, io.Discard)),
	)
	return f
}

// seed creates a verified free ledger and lets the test adjust it
func (f *fixture) seed(t *testing.T, userID string, adjust func(l *ledger.Ledger)) {
	t.Helper()
	l := ledger.New(userID, f.now)
	l.IsEmailVerified = true
	if adjust != nil {
		adjust(l)
	}
	require.NoError(t, f.store.Create(context.Background(), l))
}

func (f *fixture) subscribe(tier plans.Tier, resetDate time.Time) func(l *ledger.Ledger) {
	return func(l *ledger.Ledger) {
		l.SubscriptionStatus = tier
		l.MonthlyCredits = plans.DefaultCatalog().GetLimits(tier)
		l.CreditResetDate = resetDate
	}
}

func (f *fixture) get(t *testing.T, userID string) *ledger.Ledger {
	t.Helper()
	l, err := f.store.Get(context.Background(), userID)
	require.NoError(t, err)
	return l
}

func TestAuthorizeAndCharge_NotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.AuthorizeAndCharge(context.Background(), "ghost", plans.FeatureChat)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestAuthorizeAndCharge_VerificationRequired(t *testing.T) {
	f := newFixture(t, nil)
	longAgo := f.now.AddDate(0, -3, 0)
	f.seed(t, "u", func(l *ledger.Ledger) {
		f.subscribe(plans.TierRetailIndia, longAgo)(l)
		l.MonthlyCredits.Chat = plans.Remaining(0)
		l.IsEmailVerified = false
	})

	_, err := f.engine.AuthorizeAndCharge(context.Background(), "u", plans.FeatureChat)
	assert.ErrorIs(t, err, ErrVerificationRequired)

	// no refill and no history when verification fails first
	l := f.get(t, "u")
	assert.Equal(t, plans.Remaining(0), l.MonthlyCredits.Chat)
	assert.True(t, l.CreditResetDate.Equal(longAgo))
	assert.Empty(t, l.UsageHistory)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CreditDenialsTotal.WithLabelValues("retail_india", "chat", "verification_required")))
}

func TestAuthorizeAndCharge_FreeTier(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "u", nil)
	ctx := context.Background()

	features := []plans.Feature{plans.FeatureChat, plans.FeatureInsights, plans.FeatureWeatherBrief, plans.FeatureResearchLab, plans.FeatureChat}
	for i, feature := range features {
		receipt, err := f.engine.AuthorizeAndCharge(ctx, "u", feature)
		require.NoError(t, err)
		assert.Equal(t, plans.Remaining(4-i), receipt.RemainingCredits)
		assert.Equal(t, 4-i, receipt.UsageCredits)
		assert.Equal(t, plans.TierFree, receipt.SubscriptionStatus)
	}

	_, err := f.engine.AuthorizeAndCharge(ctx, "u", plans.FeatureChat)
	var insufficient *InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.RequiresSubscription)
	assert.False(t, insufficient.RequiresUpgrade)
	assert.Equal(t, 0, insufficient.UsageCredits)
	assert.Equal(t, "You have used all your free credits. Please subscribe to continue.", err.Error())

	l := f.get(t, "u")
	assert.Equal(t, 0, l.UsageCredits)
	require.Len(t, l.UsageHistory, 5)
	assert.Equal(t, plans.FeatureInsights, l.UsageHistory[1].Feature)
	assert.True(t, l.UsageHistory[0].UsedAt.Equal(f.now))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.CreditChargesTotal.WithLabelValues("free", "chat")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CreditDenialsTotal.WithLabelValues("free", "chat", "free_exhausted")))
}

func TestAuthorizeAndCharge_PaidTier(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed(t, "u", f.subscribe(plans.TierRetailIndia, f.now))

	receipt, err := f.engine.AuthorizeAndCharge(ctx, "u", plans.FeatureResearchLab)
	require.NoError(t, err)
	assert.Equal(t, plans.Remaining(9), receipt.RemainingCredits)
	assert.Equal(t, plans.Remaining(9), receipt.MonthlyCredits.ResearchLab)
	assert.Equal(t, plans.FreeSeedCredits, receipt.UsageCredits)

	t.Run("unlimited pools are never decremented", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			receipt, err := f.engine.AuthorizeAndCharge(ctx, "u", plans.FeatureInsights)
			require.NoError(t, err)
			assert.True(t, receipt.RemainingCredits.IsUnlimited())
		}
		l := f.get(t, "u")
		assert.True(t, l.MonthlyCredits.Insights.IsUnlimited())
		assert.Len(t, l.UsageHistory, 4)
	})

	t.Run("exhausted pool requires an upgrade", func(t *testing.T) {
		f.seed(t, "drained", func(l *ledger.Ledger) {
			f.subscribe(plans.TierInternational, f.now)(l)
			l.MonthlyCredits.Chat = plans.Remaining(0)
		})

		_, err := f.engine.AuthorizeAndCharge(ctx, "drained", plans.FeatureChat)
		var insufficient *InsufficientCreditsError
		require.ErrorAs(t, err, &insufficient)
		assert.True(t, insufficient.RequiresUpgrade)
		assert.Equal(t, plans.FeatureChat, insufficient.Feature)
		assert.Equal(t, plans.Remaining(0), insufficient.MonthlyCredits.Chat)
		assert.Equal(t, plans.Remaining(50), insufficient.MonthlyCredits.ResearchLab)
		assert.Equal(t, "You have used all your monthly chat credits. Please upgrade your plan or wait for next month.", err.Error())

		// other pools are unaffected
		_, err = f.engine.AuthorizeAndCharge(ctx, "drained", plans.FeatureResearchLab)
		assert.NoError(t, err)
	})
}

func TestAuthorizeAndCharge_Rollover(t *testing.T) {
	t.Run("refills at a month boundary", func(t *testing.T) {
		f := newFixture(t, nil)
		f.now = time.Date(2024, 2, 1, 0, 0, 1, 0, time.UTC)
		f.seed(t, "u", func(l *ledger.Ledger) {
			f.subscribe(plans.TierRetailIndia, time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC))(l)
			l.MonthlyCredits.WeatherBrief = plans.Remaining(0)
		})

		receipt, err := f.engine.AuthorizeAndCharge(context.Background(), "u", plans.FeatureWeatherBrief)
		require.NoError(t, err)
		assert.Equal(t, plans.Remaining(49), receipt.RemainingCredits)

		l := f.get(t, "u")
		assert.True(t, l.CreditResetDate.Equal(f.now))
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CreditRolloversTotal.WithLabelValues("retail_india")))
	})

	t.Run("not due within the same month", func(t *testing.T) {
		f := newFixture(t, nil)
		reset := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		f.seed(t, "u", func(l *ledger.Ledger) {
			f.subscribe(plans.TierRetailIndia, reset)(l)
			l.MonthlyCredits.Chat = plans.Remaining(0)
		})

		_, err := f.engine.AuthorizeAndCharge(context.Background(), "u", plans.FeatureChat)
		assert.True(t, IsInsufficientCredits(err))
		assert.True(t, f.get(t, "u").CreditResetDate.Equal(reset))
	})

	t.Run("persisted even when the use is rejected", func(t *testing.T) {
		strict := plans.DefaultPlans()
		for i := range strict {
			if strict[i].Name == plans.TierRetailIndia {
				strict[i].Limits.Chat = plans.Remaining(0)
			}
		}
		catalog, err := plans.NewCatalog(strict)
		require.NoError(t, err)

		f := newFixture(t, catalog)
		f.seed(t, "u", func(l *ledger.Ledger) {
			f.subscribe(plans.TierRetailIndia, f.now.AddDate(0, -2, 0))(l)
			l.MonthlyCredits.WeatherBrief = plans.Remaining(1)
		})

		_, err = f.engine.AuthorizeAndCharge(context.Background(), "u", plans.FeatureChat)
		assert.True(t, IsInsufficientCredits(err))

		l := f.get(t, "u")
		assert.True(t, l.CreditResetDate.Equal(f.now))
		assert.Equal(t, plans.Remaining(50), l.MonthlyCredits.WeatherBrief)
		assert.Empty(t, l.UsageHistory)
	})

	t.Run("free tier never rolls over", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seed(t, "u", func(l *ledger.Ledger) {
			l.UsageCredits = 0
			l.CreditResetDate = f.now.AddDate(-1, 0, 0)
		})

		_, err := f.engine.AuthorizeAndCharge(context.Background(), "u", plans.FeatureChat)
		assert.True(t, IsInsufficientCredits(err))
		assert.Equal(t, 0, f.get(t, "u").UsageCredits)
	})
}

func TestAuthorizeAndCharge_ConcurrentLastCredit(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "u", func(l *ledger.Ledger) { l.UsageCredits = 1 })

	const callers = 32
	var (
		wg           sync.WaitGroup
		successes    int32
		insufficient int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.AuthorizeAndCharge(context.Background(), "u", plans.FeatureChat)
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case IsInsufficientCredits(err):
				atomic.AddInt32(&insufficient, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(callers-1), insufficient)
	l := f.get(t, "u")
	assert.Equal(t, 0, l.UsageCredits)
	assert.Len(t, l.UsageHistory, 1)
}

func TestAuthorizeAndCharge_StoreFailure(t *testing.T) {
	boom := errors.New("database is down")
	engine := NewEngine(failingStore{err: boom}, plans.DefaultCatalog(),
		WithLogger(observability.NewLogger(observability.ErrorLevel, io.Discard)))

	_, err := engine.AuthorizeAndCharge(context.Background(), "u", plans.FeatureChat)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsInsufficientCredits(err))
}

type failingStore struct {
	err error
}

func (s failingStore) Get(context.Context, string) (*ledger.Ledger, error) { return nil, s.err }
func (s failingStore) Create(context.Context, *ledger.Ledger) error         { return s.err }
func (s failingStore) Update(context.Context, string, ledger.UpdateFunc) (*ledger.Ledger, error) {
	return nil, s.err
}

func TestCredits(t *testing.T) {
	f := newFixture(t, nil)
	stale := f.now.AddDate(0, -2, 0)
	f.seed(t, "u", func(l *ledger.Ledger) {
		f.subscribe(plans.TierEnterprise, stale)(l)
		l.MonthlyCredits.Chat = plans.Remaining(3)
	})

	l, err := f.engine.Credits(context.Background(), "u")
	require.NoError(t, err)
	// reading does not refill
	assert.Equal(t, plans.Remaining(3), l.MonthlyCredits.Chat)
	assert.True(t, l.CreditResetDate.Equal(stale))

	_, err = f.engine.Credits(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnroll(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	l, err := f.engine.Enroll(ctx, "new-user", true)
	require.NoError(t, err)
	assert.Equal(t, plans.TierFree, l.SubscriptionStatus)
	assert.Equal(t, plans.FreeSeedCredits, l.UsageCredits)
	assert.True(t, l.IsEmailVerified)

	_, err = f.engine.AuthorizeAndCharge(ctx, "new-user", plans.FeatureChat)
	require.NoError(t, err)

	again, err := f.engine.Enroll(ctx, "new-user", false)
	require.NoError(t, err)
	assert.Equal(t, 4, again.UsageCredits)
	assert.True(t, again.IsEmailVerified)
}

func catalogWithFreeCredits(t *testing.T, n int) *plans.Catalog {
	t.Helper()
	custom := plans.DefaultPlans()
	for i := range custom {
		if custom[i].Name == plans.TierFree {
			for _, feature := range plans.Features() {
				custom[i].Limits.Set(feature, plans.Remaining(n))
			}
		}
	}
	catalog, err := plans.NewCatalog(custom)
	require.NoError(t, err)
	return catalog
}

func TestEnroll_UsesCatalogFreeCredits(t *testing.T) {
	f := newFixture(t, catalogWithFreeCredits(t, 2))
	ctx := context.Background()

	l, err := f.engine.Enroll(ctx, "u", true)
	require.NoError(t, err)
	assert.Equal(t, 2, l.UsageCredits)

	for i := 0; i < 2; i++ {
		_, err = f.engine.AuthorizeAndCharge(ctx, "u", plans.FeatureChat)
		require.NoError(t, err)
	}
	_, err = f.engine.AuthorizeAndCharge(ctx, "u", plans.FeatureChat)
	assert.True(t, IsInsufficientCredits(err))
}

func TestSetEmailVerified(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed(t, "u", func(l *ledger.Ledger) { l.IsEmailVerified = false })

	require.NoError(t, f.engine.SetEmailVerified(ctx, "u", true))
	assert.True(t, f.get(t, "u").IsEmailVerified)
	version := f.get(t, "u").Version

	// unchanged state is not rewritten
	require.NoError(t, f.engine.SetEmailVerified(ctx, "u", true))
	assert.Equal(t, version, f.get(t, "u").Version)

	assert.ErrorIs(t, f.engine.SetEmailVerified(ctx, "ghost", true), ErrNotFound)
}
