package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinova/oceanmeter/pkg/plans"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestMonthsBetween(t *testing.T) {
	tests := []struct {
		name     string
		from, to time.Time
		want     int
	}{
		{"same day", date(2024, 1, 15), date(2024, 1, 15), 0},
		{"same month", date(2024, 1, 1), date(2024, 1, 31), 0},
		{"month end boundary", date(2024, 1, 31), date(2024, 2, 1), 1},
		{"one month later", date(2024, 1, 15), date(2024, 2, 16), 1},
		{"year boundary", date(2023, 12, 31), date(2024, 1, 1), 1},
		{"fourteen months", date(2023, 1, 10), date(2024, 3, 1), 14},
		{"backwards", date(2024, 3, 1), date(2024, 1, 1), -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MonthsBetween(tt.from, tt.to))
		})
	}
}

func TestMonthsBetween_UsesUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	// 2024-02-01 03:00 IST is still January 31 in UTC
	from := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 3, 0, 0, 0, ist)

	assert.Equal(t, 0, MonthsBetween(from, to))
}

func TestNew(t *testing.T) {
	now := date(2024, 5, 1)
	l := New("user-1", now)

	assert.Equal(t, "user-1", l.UserID)
	assert.Equal(t, plans.TierFree, l.SubscriptionStatus)
	assert.Equal(t, plans.FreeSeedCredits, l.UsageCredits)
	assert.Equal(t, plans.Limits{}, l.MonthlyCredits)
	assert.Empty(t, l.UsageHistory)
	assert.NotNil(t, l.UsageHistory)
	assert.False(t, l.IsEmailVerified)
}

func TestLedger_RolloverDue(t *testing.T) {
	l := New("u", date(2024, 1, 20))

	// free tier never rolls over
	assert.False(t, l.RolloverDue(date(2024, 6, 1)))

	l.SwitchPlan(plans.TierInternational, plans.DefaultCatalog().GetLimits(plans.TierInternational), date(2024, 1, 20))
	assert.False(t, l.RolloverDue(date(2024, 1, 31)))
	assert.True(t, l.RolloverDue(date(2024, 2, 1)))
}

func TestLedger_Deduct(t *testing.T) {
	now := date(2024, 3, 3)

	t.Run("free tier draws from universal credits", func(t *testing.T) {
		l := New("u", now)
		remaining := l.Deduct(plans.FeatureChat, now)

		assert.Equal(t, plans.Remaining(4), remaining)
		assert.Equal(t, 4, l.UsageCredits)
		require.Len(t, l.UsageHistory, 1)
		assert.Equal(t, plans.FeatureChat, l.UsageHistory[0].Feature)
		assert.True(t, l.UsageHistory[0].UsedAt.Equal(now))
	})

	t.Run("paid tier draws from the feature pool", func(t *testing.T) {
		l := New("u", now)
		l.SwitchPlan(plans.TierRetailIndia, plans.DefaultCatalog().GetLimits(plans.TierRetailIndia), now)

		remaining := l.Deduct(plans.FeatureWeatherBrief, now)

		assert.Equal(t, plans.Remaining(49), remaining)
		assert.Equal(t, plans.Remaining(10), l.MonthlyCredits.ResearchLab)
		assert.Equal(t, plans.FreeSeedCredits, l.UsageCredits)
	})

	t.Run("unlimited pools stay unlimited", func(t *testing.T) {
		l := New("u", now)
		l.SwitchPlan(plans.TierRetailIndia, plans.DefaultCatalog().GetLimits(plans.TierRetailIndia), now)

		for i := 0; i < 100; i++ {
			require.True(t, l.CanCharge(plans.FeatureInsights))
			l.Deduct(plans.FeatureInsights, now)
		}
		assert.True(t, l.MonthlyCredits.Insights.IsUnlimited())
		assert.Len(t, l.UsageHistory, 100)
	})

	t.Run("exhausted pool cannot be charged", func(t *testing.T) {
		l := New("u", now)
		l.UsageCredits = 0
		assert.False(t, l.CanCharge(plans.FeatureChat))
	})
}

func TestLedger_SwitchPlan(t *testing.T) {
	catalog := plans.DefaultCatalog()
	start := date(2024, 1, 10)

	t.Run("upgrade loads limits and moves the reset date forward", func(t *testing.T) {
		l := New("u", start)
		l.UsageCredits = 2
		l.SwitchPlan(plans.TierEnterprise, catalog.GetLimits(plans.TierEnterprise), date(2024, 1, 12))

		assert.Equal(t, plans.TierEnterprise, l.SubscriptionStatus)
		assert.Equal(t, catalog.GetLimits(plans.TierEnterprise), l.MonthlyCredits)
		assert.Equal(t, 2, l.UsageCredits)
		assert.True(t, l.CreditResetDate.Equal(date(2024, 1, 12)))
	})

	t.Run("downgrade to free reseeds universal credits", func(t *testing.T) {
		l := New("u", start)
		l.SwitchPlan(plans.TierInternational, catalog.GetLimits(plans.TierInternational), start)
		l.SwitchPlan(plans.TierFree, catalog.GetLimits(plans.TierFree), date(2024, 2, 2))

		assert.Equal(t, plans.TierFree, l.SubscriptionStatus)
		assert.Equal(t, plans.FreeSeedCredits, l.UsageCredits)
		assert.Equal(t, plans.Limits{}, l.MonthlyCredits)
	})

	t.Run("reset date never moves backwards", func(t *testing.T) {
		l := New("u", date(2024, 4, 1))
		l.SwitchPlan(plans.TierRetailIndia, catalog.GetLimits(plans.TierRetailIndia), date(2024, 3, 1))

		assert.True(t, l.CreditResetDate.Equal(date(2024, 4, 1)))
	})
}

func TestLedger_CloneIsDeep(t *testing.T) {
	now := date(2024, 1, 1)
	l := New("u", now)
	l.Deduct(plans.FeatureChat, now)

	c := l.Clone()
	c.Deduct(plans.FeatureChat, now)
	c.UsageHistory[0].Feature = plans.FeatureInsights

	assert.Len(t, l.UsageHistory, 1)
	assert.Equal(t, plans.FeatureChat, l.UsageHistory[0].Feature)
	assert.Equal(t, 4, l.UsageCredits)
}

func TestLedger_JSON(t *testing.T) {
	now := date(2024, 1, 1)
	l := New("u", now)
	l.SwitchPlan(plans.TierInternational, plans.DefaultCatalog().GetLimits(plans.TierInternational), now)

	data, err := json.Marshal(l)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"subscriptionStatus":"international"`)
	assert.Contains(t, string(data), `"weatherBrief":-1`)

	var decoded Ledger
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, l.MonthlyCredits, decoded.MonthlyCredits)
	assert.True(t, l.CreditResetDate.Equal(decoded.CreditResetDate))
}
