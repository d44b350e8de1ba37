// Package contextkeys defines every context key the service sets.
//
// Keeping them in one place stops packages from inventing colliding keys
// and documents who sets what:
//
//	ctx = contextkeys.WithUserID(ctx, claims.UserID)
//	userID := contextkeys.GetUserID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey holds the request id string.
	// Set by httputil.RequestIDMiddleware.
	RequestIDKey Key = "request_id"

	// UserIDKey holds the authenticated user id string.
	// Set by middleware.AuthMiddleware.
	UserIDKey Key = "user_id"

	// ClaimsKey holds the *identity.Claims of the bearer token.
	// Set by middleware.AuthMiddleware.
	ClaimsKey Key = "identity_claims"

	// LoggerKey holds a request scoped *observability.Logger
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithClaims adds verified token claims to the context
func WithClaims(ctx context.Context, claims interface{}) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
