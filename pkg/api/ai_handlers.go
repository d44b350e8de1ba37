package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/marinova/oceanmeter/pkg/contextkeys"
	"github.com/marinova/oceanmeter/pkg/generation"
	"github.com/marinova/oceanmeter/pkg/httputil"
	"github.com/marinova/oceanmeter/pkg/metering"
	"github.com/marinova/oceanmeter/pkg/plans"
)

// AIHandlers serves the generation routes under /api/ai. Every route is
// charged only after the provider succeeded.
type AIHandlers struct {
	engine    *metering.Engine
	generator *generation.Service
}

// NewAIHandlers creates a new AIHandlers
func NewAIHandlers(engine *metering.Engine, generator *generation.Service) *AIHandlers {
	return &AIHandlers{engine: engine, generator: generator}
}

// RegisterRoutes registers AI routes on the /api/ai subrouter
func (h *AIHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/analyze-weather", h.AnalyzeWeather).Methods(http.MethodPost)
	router.HandleFunc("/chat", h.Chat).Methods(http.MethodPost)
	router.HandleFunc("/generate-report", h.GenerateReport).Methods(http.MethodPost)
	router.HandleFunc("/generate-insights", h.GenerateInsights).Methods(http.MethodPost)
	router.HandleFunc("/generate-image", h.GenerateImage).Methods(http.MethodPost)
}

type analyzeWeatherRequest struct {
	LocationName string                  `json:"locationName" validate:"required"`
	Lat          *float64                `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon          *float64                `json:"lon" validate:"required,gte=-180,lte=180"`
	WeatherData  *generation.WeatherData `json:"weatherData" validate:"required"`
}

type chatRequest struct {
	Messages  []generation.Message `json:"messages" validate:"required,min=1,dive"`
	ImageURLs []string             `json:"imageUrls" validate:"omitempty,dive,url"`
}

type reportRequest struct {
	Topic string `json:"topic" validate:"required"`
}

type imageRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

// charge runs action under the charge-on-success wrapper and writes either
// the result under key or the mapped error.
func charge[T any](w http.ResponseWriter, r *http.Request, engine *metering.Engine, feature plans.Feature, key, what string, action func(context.Context) (T, error)) {
	result, receipt, err := metering.ChargeIfSuccessful(r.Context(), engine, contextkeys.GetUserID(r.Context()), feature, action)
	if err != nil {
		writeMeteringError(w, r, err, what)
		return
	}

	_ = httputil.WriteSuccess(w, httputil.Fields{
		key:                result,
		"creditsRemaining": receipt.RemainingCredits,
	})
}

// AnalyzeWeather writes a weather brief for a location
func (h *AIHandlers) AnalyzeWeather(w http.ResponseWriter, r *http.Request) {
	var req analyzeWeatherRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Missing required fields")
		return
	}

	charge(w, r, h.engine, plans.FeatureWeatherBrief, "analysis", "weather analysis",
		func(ctx context.Context) (string, error) {
			return h.generator.WeatherBrief(ctx, req.LocationName, *req.Lat, *req.Lon, *req.WeatherData)
		})
}

// Chat answers the last message of a conversation
func (h *AIHandlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Invalid messages format")
		return
	}

	charge(w, r, h.engine, plans.FeatureChat, "response", "a chat response",
		func(ctx context.Context) (string, error) {
			return h.generator.Chat(ctx, req.Messages, req.ImageURLs)
		})
}

// GenerateReport writes a research report
func (h *AIHandlers) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Topic is required")
		return
	}

	charge(w, r, h.engine, plans.FeatureResearchLab, "report", "a research report",
		func(ctx context.Context) (*generation.Report, error) {
			return h.generator.ResearchReport(ctx, req.Topic)
		})
}

// GenerateInsights produces the monthly ocean insights. It takes no body.
func (h *AIHandlers) GenerateInsights(w http.ResponseWriter, r *http.Request) {
	charge(w, r, h.engine, plans.FeatureInsights, "insights", "insights",
		h.generator.MonthlyInsights)
}

// GenerateImage renders an image. It draws on the research pool.
func (h *AIHandlers) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Prompt is required")
		return
	}

	charge(w, r, h.engine, plans.FeatureResearchLab, "imageUrl", "an image",
		func(ctx context.Context) (string, error) {
			return h.generator.Image(ctx, req.Prompt)
		})
}
