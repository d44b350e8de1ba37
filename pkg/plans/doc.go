// Package plans defines subscription tiers, metered features, and the plan catalog.
//
// # Overview
//
// Each tier grants a monthly allowance per feature. The free tier is special:
// its limits describe a single universal credit pool shared by every feature,
// so every feature must carry the same count. Catalog.FreeCredits returns it.
//
//	Tier           weatherBrief  researchLab  chat  insights
//	free           5             5            5     5          (universal)
//	retail_india   50            10           20    unlimited
//	international  unlimited     50           100   unlimited
//	enterprise     unlimited     500          500   unlimited
//
// Allowances are tagged values rather than magic numbers; the external
// integer form (-1 for unlimited) is only used at JSON and database edges.
//
// # Usage Example
//
//	catalog := plans.DefaultCatalog()
//	limits := catalog.GetLimits(plans.TierRetailIndia)
//	if limits.Get(plans.FeatureInsights).IsUnlimited() {
//		// never decremented
//	}
//
// Request-facing feature names are normalized before reaching the ledger:
//
//	f, ok := plans.NormalizeFeature("report") // researchLab, true
package plans
