package plans

import (
	"fmt"
)

// Catalog is the read-only table of subscription plans.
// It is built once at startup and shared process-wide.
type Catalog struct {
	plans map[Tier]Plan
}

// DefaultPlans returns the built-in plan table
func DefaultPlans() []Plan {
	return []Plan{
		{
			Name:        TierFree,
			DisplayName: "Free Tier",
			Price:       0,
			Currency:    "USD",
			// Universal credits: any feature draws from the same pool
			Limits: Limits{
				WeatherBrief: Remaining(FreeSeedCredits),
				ResearchLab:  Remaining(FreeSeedCredits),
				Chat:         Remaining(FreeSeedCredits),
				Insights:     Remaining(FreeSeedCredits),
			},
		},
		{
			Name:        TierRetailIndia,
			DisplayName: "Retail India",
			Price:       10,
			Currency:    "USD",
			Limits: Limits{
				WeatherBrief: Remaining(50),
				ResearchLab:  Remaining(10),
				Chat:         Remaining(20),
				Insights:     Unlimited(),
			},
		},
		{
			Name:        TierInternational,
			DisplayName: "International",
			Price:       30,
			Currency:    "USD",
			Limits: Limits{
				WeatherBrief: Unlimited(),
				ResearchLab:  Remaining(50),
				Chat:         Remaining(100),
				Insights:     Unlimited(),
			},
		},
		{
			Name:        TierEnterprise,
			DisplayName: "Enterprise",
			Price:       50,
			Currency:    "USD",
			Limits: Limits{
				WeatherBrief: Unlimited(),
				ResearchLab:  Remaining(500),
				Chat:         Remaining(500),
				Insights:     Unlimited(),
			},
		},
	}
}

// DefaultCatalog returns a catalog built from DefaultPlans
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultPlans())
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalog builds a catalog. Every tier must appear exactly once and the
// free tier must list the same finite limit for every feature.
func NewCatalog(plans []Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[Tier]Plan, len(plans))}
	for _, p := range plans {
		if _, ok := ParseTier(string(p.Name)); !ok {
			return nil, fmt.Errorf("unknown tier %q in catalog", p.Name)
		}
		if _, dup := c.plans[p.Name]; dup {
			return nil, fmt.Errorf("duplicate tier %q in catalog", p.Name)
		}
		if p.DisplayName == "" {
			return nil, fmt.Errorf("tier %q has no display name", p.Name)
		}
		c.plans[p.Name] = p
	}
	for _, t := range Tiers() {
		if _, ok := c.plans[t]; !ok {
			return nil, fmt.Errorf("catalog is missing tier %q", t)
		}
	}
	if _, ok := c.plans[TierFree].Limits.Universal(); !ok {
		return nil, fmt.Errorf("tier %q must use one finite limit for every feature", TierFree)
	}
	return c, nil
}

// Plan returns the catalog entry for a tier. Unknown tiers panic.
func (c *Catalog) Plan(t Tier) Plan {
	p, ok := c.plans[t]
	if !ok {
		panic(fmt.Sprintf("plans: unknown tier %q", t))
	}
	return p
}

// Plans returns every entry in tier order
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, t := range Tiers() {
		out = append(out, c.plans[t])
	}
	return out
}

// GetLimits returns a copy of the tier's per-feature limits
func (c *Catalog) GetLimits(t Tier) Limits {
	return c.Plan(t).Limits
}

// FreeCredits returns the universal credits granted on the free tier
func (c *Catalog) FreeCredits() int {
	n, _ := c.plans[TierFree].Limits.Universal()
	return n
}

// IsUnlimited reports whether a feature is unlimited on a tier
func (c *Catalog) IsUnlimited(t Tier, f Feature) bool {
	return c.Plan(t).Limits.Get(f).IsUnlimited()
}

// DisplayName returns the human readable plan name
func (c *Catalog) DisplayName(t Tier) string {
	return c.Plan(t).DisplayName
}
