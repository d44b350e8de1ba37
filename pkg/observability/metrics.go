package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// Recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Credit metrics
	CreditChargesTotal   *prometheus.CounterVec
	CreditDenialsTotal   *prometheus.CounterVec
	CreditRolloversTotal *prometheus.CounterVec
	PlanChangesTotal     *prometheus.CounterVec

	// Generation metrics
	GenerationRequestsTotal *prometheus.CounterVec
	GenerationDuration      *prometheus.HistogramVec

	// Cache metrics
	LedgerCacheHitsTotal   *prometheus.CounterVec
	LedgerCacheMissesTotal *prometheus.CounterVec

	// Rate limiting
	RateLimitedTotal *prometheus.CounterVec

	otel *otelInstruments
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oceanmeter_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oceanmeter_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		CreditChargesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oceanmeter_credit_charges_total",
				Help: "Total number of committed credit deductions",
			},
			[]string{"tier", "feature"},
		),
		CreditDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oceanmeter_credit_denials_total",
				Help: "Total number of rejected feature uses",
			},
			[]string{"tier", "feature", "reason"},
		),
		CreditRolloversTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oceanmeter_credit_rollovers_total",
				Help: "Total number of monthly credit refills",
			},
			[]string{"tier"},
		),
		PlanChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oceanmeter_plan_changes_total",
				Help: "Total number of subscription tier changes",
			},
			[]string{"from", "to"},
		),

		GenerationRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oceanmeter_generation_requests_total",
				Help: "Total number of generation provider calls",
			},
			[]string{"kind", "outcome"},
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oceanmeter_generation_duration_seconds",
				Help:    "Generation provider call duration in seconds",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"kind"},
		),

		LedgerCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oceanmeter_ledger_cache_hits_total",
				Help: "Total number of ledger cache hits",
			},
			[]string{"level"},
		),
		LedgerCacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oceanmeter_ledger_cache_misses_total",
				Help: "Total number of ledger cache misses",
			},
			[]string{"level"},
		),

		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oceanmeter_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"limiter"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CreditChargesTotal,
		m.CreditDenialsTotal,
		m.CreditRolloversTotal,
		m.PlanChangesTotal,
		m.GenerationRequestsTotal,
		m.GenerationDuration,
		m.LedgerCacheHitsTotal,
		m.LedgerCacheMissesTotal,
		m.RateLimitedTotal,
	)

	return m
}

// RecordCharge counts a committed deduction
func (m *Metrics) RecordCharge(tier, feature string) {
	if m == nil {
		return
	}
	m.CreditChargesTotal.WithLabelValues(tier, feature).Inc()
	m.otel.charge(tier, feature)
}

// RecordDenial counts a rejected use
func (m *Metrics) RecordDenial(tier, feature, reason string) {
	if m == nil {
		return
	}
	m.CreditDenialsTotal.WithLabelValues(tier, feature, reason).Inc()
	m.otel.denial(tier, feature, reason)
}

// RecordRollover counts a monthly refill
func (m *Metrics) RecordRollover(tier string) {
	if m == nil {
		return
	}
	m.CreditRolloversTotal.WithLabelValues(tier).Inc()
}

// RecordPlanChange counts a tier transition
func (m *Metrics) RecordPlanChange(from, to string) {
	if m == nil {
		return
	}
	m.PlanChangesTotal.WithLabelValues(from, to).Inc()
}

// RecordGeneration records one provider call
func (m *Metrics) RecordGeneration(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GenerationRequestsTotal.WithLabelValues(kind, outcome).Inc()
	m.GenerationDuration.WithLabelValues(kind).Observe(duration.Seconds())
	m.otel.generation(kind, outcome, duration)
}

// RecordCacheHit counts a ledger cache hit at the given level
func (m *Metrics) RecordCacheHit(level string) {
	if m == nil {
		return
	}
	m.LedgerCacheHitsTotal.WithLabelValues(level).Inc()
}

// RecordCacheMiss counts a ledger cache miss at the given level
func (m *Metrics) RecordCacheMiss(level string) {
	if m == nil {
		return
	}
	m.LedgerCacheMissesTotal.WithLabelValues(level).Inc()
}

// RecordRateLimited counts a throttled request
func (m *Metrics) RecordRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel prefers the mux route template so path labels stay bounded
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
