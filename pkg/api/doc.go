// Package api is the HTTP surface of the metering service.
//
// Routes:
//
//	GET  /api/health                  liveness for the web client
//	POST /api/usage/track             charge one use of a feature now
//	GET  /api/usage/credits           stored ledger, no rollover
//	PUT  /api/usage/subscribe         change tier
//	GET  /api/usage/plans             plan catalog
//	POST /api/ai/analyze-weather      weatherBrief, charged on success
//	POST /api/ai/chat                 chat, charged on success
//	POST /api/ai/generate-report      researchLab, charged on success
//	POST /api/ai/generate-insights    insights, charged on success
//	POST /api/ai/generate-image       researchLab, charged on success
//	GET  /health/live, /health/ready  probes
//	GET  /metrics                     Prometheus
//
// Every /api/usage and /api/ai route needs a bearer token. The first
// authenticated request of a user creates their free ledger.
//
// Bodies follow {"success": bool, "message": string, ...}. Rejections carry
// the flags the web client switches on: requiresVerification,
// requiresSubscription, requiresUpgrade, serviceUnavailable and retryable.
package api
