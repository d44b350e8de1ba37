// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health probes and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	observability.SetDefault(logger)
//	observability.FromContext(ctx).WithField("feature", "chat").Info("charged")
//
// FromContext picks up the request id and user id set by the HTTP
// middleware.
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordCharge("retail_india", "researchLab")
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//
// A nil *Metrics records nothing, so packages accept it as optional.
// EnableOTel mirrors the credit counters to the global OpenTelemetry meter.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version).
//		AddCheck("database", true, observability.DatabaseCheck(db)).
//		AddCheck("redis", false, observability.RedisCheck(client))
//	observability.RegisterHealthRoutes(router, checker)
//
// # Shutdown
//
//	sm := observability.NewShutdownManager(logger, server, 30*time.Second)
//	sm.Register("otel", providers.Shutdown)
//	err := sm.Wait(ctx)
package observability
