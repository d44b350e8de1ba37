package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/marinova/oceanmeter/pkg/contextkeys"
	"github.com/marinova/oceanmeter/pkg/httputil"
	"github.com/marinova/oceanmeter/pkg/metering"
	"github.com/marinova/oceanmeter/pkg/plans"
)

// UsageHandlers serves the credit ledger routes under /api/usage
type UsageHandlers struct {
	engine  *metering.Engine
	catalog *plans.Catalog
}

// NewUsageHandlers creates a new UsageHandlers
func NewUsageHandlers(engine *metering.Engine, catalog *plans.Catalog) *UsageHandlers {
	return &UsageHandlers{engine: engine, catalog: catalog}
}

// RegisterRoutes registers usage routes on the /api/usage subrouter
func (h *UsageHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/track", h.Track).Methods(http.MethodPost)
	router.HandleFunc("/credits", h.Credits).Methods(http.MethodGet)
	router.HandleFunc("/subscribe", h.Subscribe).Methods(http.MethodPut)
	router.HandleFunc("/plans", h.Plans).Methods(http.MethodGet)
}

type trackRequest struct {
	Feature string `json:"feature" validate:"required"`
}

type subscribeRequest struct {
	Plan string `json:"plan" validate:"required"`
}

// Track charges one use of a feature immediately
func (h *UsageHandlers) Track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Feature name is required")
		return
	}

	feature, ok := plans.NormalizeFeature(req.Feature)
	if !ok {
		httputil.WriteBadRequest(w, "Invalid feature name")
		return
	}

	receipt, err := h.engine.AuthorizeAndCharge(r.Context(), contextkeys.GetUserID(r.Context()), feature)
	if err != nil {
		writeMeteringError(w, r, err, string(feature))
		return
	}

	_ = httputil.WriteSuccess(w, httputil.Fields{
		"message":            "Usage tracked",
		"usageCredits":       receipt.UsageCredits,
		"monthlyCredits":     receipt.MonthlyCredits,
		"subscriptionStatus": receipt.SubscriptionStatus,
	})
}

// Credits returns the stored ledger without applying a rollover
func (h *UsageHandlers) Credits(w http.ResponseWriter, r *http.Request) {
	l, err := h.engine.Credits(r.Context(), contextkeys.GetUserID(r.Context()))
	if err != nil {
		writeMeteringError(w, r, err, "")
		return
	}

	_ = httputil.WriteSuccess(w, httputil.Fields{
		"usageCredits":       l.UsageCredits,
		"monthlyCredits":     l.MonthlyCredits,
		"subscriptionStatus": l.SubscriptionStatus,
		"isEmailVerified":    l.IsEmailVerified,
		"creditResetDate":    l.CreditResetDate,
		"usageHistory":       l.UsageHistory,
	})
}

// Subscribe switches the user to another tier
func (h *UsageHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Invalid subscription plan")
		return
	}

	receipt, err := h.engine.ChangePlan(r.Context(), contextkeys.GetUserID(r.Context()), req.Plan)
	if errors.Is(err, metering.ErrInvalidPlan) {
		httputil.WriteBadRequest(w, "Invalid subscription plan")
		return
	}
	if err != nil {
		writeMeteringError(w, r, err, "")
		return
	}

	_ = httputil.WriteSuccess(w, httputil.Fields{
		"message":            "Subscription updated to " + receipt.DisplayName,
		"subscriptionStatus": receipt.SubscriptionStatus,
		"usageCredits":       receipt.UsageCredits,
		"monthlyCredits":     receipt.MonthlyCredits,
	})
}

// Plans lists the catalog
func (h *UsageHandlers) Plans(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, httputil.Fields{"plans": h.catalog.Plans()})
}
