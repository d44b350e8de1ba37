// Package middleware provides bearer-token authentication and per-user rate
// limiting for the HTTP API.
//
// AuthMiddleware verifies the token with an identity.Authenticator and puts
// the claims and user id in the request context:
//
//	auth := middleware.NewAuthMiddleware(authenticator)
//	api.Use(auth.Handler)
//
// Rate limiting runs after authentication so that keys are user ids. The
// in-process token bucket serves a single instance; the redis fixed-window
// limiter is shared across instances:
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "")
//	ai.Use(middleware.NewRateLimitMiddleware(limiter, "redis", time.Minute, metrics).Handler)
//
// Both fail open when the limiter cannot decide.
package middleware
