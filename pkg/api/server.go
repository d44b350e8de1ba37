package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/marinova/oceanmeter/pkg/generation"
	"github.com/marinova/oceanmeter/pkg/httputil"
	"github.com/marinova/oceanmeter/pkg/identity"
	"github.com/marinova/oceanmeter/pkg/metering"
	"github.com/marinova/oceanmeter/pkg/middleware"
	"github.com/marinova/oceanmeter/pkg/observability"
	"github.com/marinova/oceanmeter/pkg/plans"
)

// DefaultAllowedOrigins are the browser origins of the web client
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"https://www.marinova.in",
	"https://marinova.in",
}

const maxBodyBytes = 1 << 20

// Options wires the server to its collaborators. Engine, Generator and
// Authenticator are required.
type Options struct {
	Engine        *metering.Engine
	Catalog       *plans.Catalog
	Generator     *generation.Service
	Authenticator identity.Authenticator
	// RateLimiter guards the AI routes; nil disables limiting
	RateLimiter     middleware.Limiter
	RateLimiterName string
	RateLimitWindow time.Duration

	AllowedOrigins []string
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	// Registry is served at /metrics when set
	Registry *prometheus.Registry
	Health   *observability.HealthChecker
	Now      func() time.Time
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger
	now     func() time.Time

	usageHandlers *UsageHandlers
	aiHandlers    *AIHandlers
}

// NewServer creates the API server and mounts every route
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.Default()
	}
	if opts.Catalog == nil {
		opts.Catalog = plans.DefaultCatalog()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = DefaultAllowedOrigins
	}

	s := &Server{
		router:        mux.NewRouter(),
		logger:        opts.Logger,
		now:           opts.Now,
		usageHandlers: NewUsageHandlers(opts.Engine, opts.Catalog),
		aiHandlers:    NewAIHandlers(opts.Engine, opts.Generator),
	}
	s.setupRoutes(opts)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	})

	s.handler = otelhttp.NewHandler(
		httputil.Chain(
			httputil.RequestIDMiddleware,
			httputil.LoggingMiddleware(opts.Logger),
			httputil.RecoveryMiddleware(opts.Logger),
			corsHandler.Handler,
		)(s.router),
		"oceanmeter",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(opts Options) {
	s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	s.router.Use(httputil.MaxBytesMiddleware(maxBodyBytes))

	s.router.HandleFunc("/api/health", s.health).Methods(http.MethodGet)
	if opts.Health != nil {
		observability.RegisterHealthRoutes(s.router, opts.Health)
	}
	if opts.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(opts.Registry)).Methods(http.MethodGet)
	}

	auth := middleware.NewAuthMiddleware(opts.Authenticator)
	enroll := enrollMiddleware(opts.Engine)

	usage := s.router.PathPrefix("/api/usage").Subrouter()
	usage.Use(auth.Handler, enroll)
	s.usageHandlers.RegisterRoutes(usage)

	ai := s.router.PathPrefix("/api/ai").Subrouter()
	ai.Use(auth.Handler)
	if opts.RateLimiter != nil {
		limit := middleware.NewRateLimitMiddleware(opts.RateLimiter, opts.RateLimiterName, opts.RateLimitWindow, opts.Metrics)
		ai.Use(limit.Handler)
	}
	ai.Use(enroll)
	s.aiHandlers.RegisterRoutes(ai)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the route table for tests and extra registrations
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, httputil.Fields{
		"message":   "Server is running",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	})
}
