package plans

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Tier represents a subscription tier
type Tier string

const (
	TierFree          Tier = "free"
	TierRetailIndia   Tier = "retail_india"
	TierInternational Tier = "international"
	TierEnterprise    Tier = "enterprise"
)

// IsPaid reports whether the tier uses per-feature monthly pools
func (t Tier) IsPaid() bool {
	return t != TierFree
}

// Feature is a canonical metered feature name
type Feature string

const (
	FeatureWeatherBrief Feature = "weatherBrief"
	FeatureResearchLab  Feature = "researchLab"
	FeatureChat         Feature = "chat"
	FeatureInsights     Feature = "insights"
)

// FreeSeedCredits is the universal credit balance of the default free plan.
// Catalogs may override it; use Catalog.FreeCredits.
const FreeSeedCredits = 5

// Tiers returns all tiers ordered by increasing allowance
func Tiers() []Tier {
	return []Tier{TierFree, TierRetailIndia, TierInternational, TierEnterprise}
}

// Features returns all canonical features
func Features() []Feature {
	return []Feature{FeatureWeatherBrief, FeatureResearchLab, FeatureChat, FeatureInsights}
}

// ParseTier validates a tier name coming from a request or a database row
func ParseTier(s string) (Tier, bool) {
	for _, t := range Tiers() {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

var featureAliases = map[string]Feature{
	"weather":      FeatureWeatherBrief,
	"weatherBrief": FeatureWeatherBrief,
	"research":     FeatureResearchLab,
	"researchLab":  FeatureResearchLab,
	"report":       FeatureResearchLab,
	"chat":         FeatureChat,
	"insights":     FeatureInsights,
}

// NormalizeFeature maps a request-facing feature name or alias to its canonical feature
func NormalizeFeature(s string) (Feature, bool) {
	f, ok := featureAliases[s]
	return f, ok
}

// Allowance is a credit pool value: either unlimited or a finite remaining count.
// The zero value is Remaining(0).
type Allowance struct {
	unlimited bool
	n         int
}

// Unlimited returns an allowance that is never decremented
func Unlimited() Allowance {
	return Allowance{unlimited: true}
}

// Remaining returns a finite allowance. Negative counts clamp to zero.
func Remaining(n int) Allowance {
	if n < 0 {
		n = 0
	}
	return Allowance{n: n}
}

// ParseAllowance converts the external integer form, where -1 means unlimited
func ParseAllowance(v int) (Allowance, error) {
	switch {
	case v == -1:
		return Unlimited(), nil
	case v >= 0:
		return Remaining(v), nil
	default:
		return Allowance{}, fmt.Errorf("invalid allowance %d: must be -1 or >= 0", v)
	}
}

// IsUnlimited reports whether the allowance is unlimited
func (a Allowance) IsUnlimited() bool {
	return a.unlimited
}

// Count returns the remaining count and false for unlimited allowances
func (a Allowance) Count() (int, bool) {
	if a.unlimited {
		return 0, false
	}
	return a.n, true
}

// Available reports whether one more use may be charged
func (a Allowance) Available() bool {
	return a.unlimited || a.n > 0
}

// Decrement consumes one use. Unlimited and exhausted allowances are returned unchanged.
func (a Allowance) Decrement() Allowance {
	if a.unlimited || a.n == 0 {
		return a
	}
	return Allowance{n: a.n - 1}
}

// Int returns the external integer form (-1 for unlimited)
func (a Allowance) Int() int {
	if a.unlimited {
		return -1
	}
	return a.n
}

func (a Allowance) String() string {
	if a.unlimited {
		return "unlimited"
	}
	return strconv.Itoa(a.n)
}

// MarshalJSON encodes the allowance as -1 or a count
func (a Allowance) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Int())
}

// UnmarshalJSON decodes -1 or a count
func (a *Allowance) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseAllowance(v)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Limits holds one allowance per feature
type Limits struct {
	WeatherBrief Allowance `json:"weatherBrief"`
	ResearchLab  Allowance `json:"researchLab"`
	Chat         Allowance `json:"chat"`
	Insights     Allowance `json:"insights"`
}

// Get returns the allowance for a feature
func (l Limits) Get(f Feature) Allowance {
	switch f {
	case FeatureWeatherBrief:
		return l.WeatherBrief
	case FeatureResearchLab:
		return l.ResearchLab
	case FeatureChat:
		return l.Chat
	case FeatureInsights:
		return l.Insights
	}
	panic(fmt.Sprintf("plans: unknown feature %q", f))
}

// Universal returns the shared count when every feature carries the same
// finite allowance, which is how the free tier's single pool is described.
func (l Limits) Universal() (int, bool) {
	n, ok := l.WeatherBrief.Count()
	if !ok {
		return 0, false
	}
	for _, f := range Features() {
		if l.Get(f) != Remaining(n) {
			return 0, false
		}
	}
	return n, true
}

// Set replaces the allowance for a feature
func (l *Limits) Set(f Feature, a Allowance) {
	switch f {
	case FeatureWeatherBrief:
		l.WeatherBrief = a
	case FeatureResearchLab:
		l.ResearchLab = a
	case FeatureChat:
		l.Chat = a
	case FeatureInsights:
		l.Insights = a
	default:
		panic(fmt.Sprintf("plans: unknown feature %q", f))
	}
}

// Plan is the immutable catalog entry of a tier
type Plan struct {
	Name        Tier    `json:"name"`
	DisplayName string  `json:"displayName"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Limits      Limits  `json:"limits"`
}
