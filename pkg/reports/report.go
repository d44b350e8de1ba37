package reports

import (
	"fmt"
	"time"

	"github.com/marinova/oceanmeter/pkg/plans"
)

// MonthLayout is the month format used in report ids, keys and flags
const MonthLayout = "2006-01"

// FeatureUsage counts the charges of one feature
type FeatureUsage struct {
	Feature plans.Feature `json:"feature"`
	Charges int64         `json:"charges"`
	Users   int64         `json:"users"`
}

// TierUsage groups the month's charges of users currently on one tier
type TierUsage struct {
	Tier        plans.Tier     `json:"tier"`
	DisplayName string         `json:"displayName"`
	Charges     int64          `json:"charges"`
	Features    []FeatureUsage `json:"features"`
}

// Report is the monthly usage export
type Report struct {
	ID           string      `json:"id"`
	Month        string      `json:"month"`
	From         time.Time   `json:"from"`
	To           time.Time   `json:"to"`
	GeneratedAt  time.Time   `json:"generatedAt"`
	TotalCharges int64       `json:"totalCharges"`
	Tiers        []TierUsage `json:"tiers"`
}

// Tier returns the usage of t, or nil when the report has no row for it
func (r *Report) Tier(t plans.Tier) *TierUsage {
	for i := range r.Tiers {
		if r.Tiers[i].Tier == t {
			return &r.Tiers[i]
		}
	}
	return nil
}

// ParseMonth parses a YYYY-MM string into the first instant of that month in UTC
func ParseMonth(s string) (time.Time, error) {
	t, err := time.ParseInLocation(MonthLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", s, err)
	}
	return t, nil
}

// MonthStart truncates t to the first instant of its UTC month
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PreviousMonth returns the start of the month before the one containing now
func PreviousMonth(now time.Time) time.Time {
	return MonthStart(now).AddDate(0, -1, 0)
}
