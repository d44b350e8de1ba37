package ledger

import (
	"time"

	"github.com/marinova/oceanmeter/pkg/plans"
)

// UsageEntry records one charged feature use
type UsageEntry struct {
	Feature plans.Feature `json:"feature"`
	UsedAt  time.Time     `json:"usedAt"`
}

// Ledger is the per-user credit state
type Ledger struct {
	UserID             string       `json:"userId"`
	SubscriptionStatus plans.Tier   `json:"subscriptionStatus"`
	UsageCredits       int          `json:"usageCredits"`
	MonthlyCredits     plans.Limits `json:"monthlyCredits"`
	CreditResetDate    time.Time    `json:"creditResetDate"`
	UsageHistory       []UsageEntry `json:"usageHistory"`
	IsEmailVerified    bool         `json:"isEmailVerified"`
	Version            int64        `json:"version"`
}

// New returns the ledger of a freshly created account: free tier, the default
// universal credits, empty monthly pools. Callers with a custom catalog
// overwrite UsageCredits with Catalog.FreeCredits.
func New(userID string, now time.Time) *Ledger {
	return &Ledger{
		UserID:             userID,
		SubscriptionStatus: plans.TierFree,
		UsageCredits:       plans.FreeSeedCredits,
		CreditResetDate:    now.UTC(),
		UsageHistory:       []UsageEntry{},
	}
}

// Clone returns a deep copy
func (l *Ledger) Clone() *Ledger {
	c := *l
	c.UsageHistory = make([]UsageEntry, len(l.UsageHistory))
	copy(c.UsageHistory, l.UsageHistory)
	return &c
}

// withoutHistory returns a copy with an empty usage history
func (l *Ledger) withoutHistory() *Ledger {
	c := *l
	c.UsageHistory = []UsageEntry{}
	return &c
}

// MonthsBetween counts calendar-month boundaries crossed from one instant to another, in UTC.
// Jan 31 to Feb 1 is one month.
func MonthsBetween(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// RolloverDue reports whether a paid ledger has entered a new accounting month
func (l *Ledger) RolloverDue(now time.Time) bool {
	if !l.SubscriptionStatus.IsPaid() {
		return false
	}
	return MonthsBetween(l.CreditResetDate, now) >= 1
}

// ApplyRollover refills the monthly pools and starts a new accounting period
func (l *Ledger) ApplyRollover(limits plans.Limits, now time.Time) {
	l.MonthlyCredits = limits
	l.advanceResetDate(now)
}

// SwitchPlan moves the ledger to a new tier and reinitializes the active pool.
// For the free tier, limits supply the universal credit count.
func (l *Ledger) SwitchPlan(tier plans.Tier, limits plans.Limits, now time.Time) {
	l.SubscriptionStatus = tier
	if !tier.IsPaid() {
		l.UsageCredits, _ = limits.Universal()
		l.MonthlyCredits = plans.Limits{}
		return
	}
	l.MonthlyCredits = limits
	l.advanceResetDate(now)
}

func (l *Ledger) advanceResetDate(now time.Time) {
	now = now.UTC()
	if now.After(l.CreditResetDate) {
		l.CreditResetDate = now
	}
}

// Remaining returns the pool that governs a feature under the current tier
func (l *Ledger) Remaining(f plans.Feature) plans.Allowance {
	if !l.SubscriptionStatus.IsPaid() {
		return plans.Remaining(l.UsageCredits)
	}
	return l.MonthlyCredits.Get(f)
}

// CanCharge reports whether one use of the feature may be charged
func (l *Ledger) CanCharge(f plans.Feature) bool {
	return l.Remaining(f).Available()
}

// Deduct charges one use and appends to the history. The caller must have
// checked CanCharge. Returns the governing pool after the deduction.
func (l *Ledger) Deduct(f plans.Feature, now time.Time) plans.Allowance {
	if l.SubscriptionStatus.IsPaid() {
		l.MonthlyCredits.Set(f, l.MonthlyCredits.Get(f).Decrement())
	} else if l.UsageCredits > 0 {
		l.UsageCredits--
	}
	l.UsageHistory = append(l.UsageHistory, UsageEntry{Feature: f, UsedAt: now.UTC()})
	return l.Remaining(f)
}
