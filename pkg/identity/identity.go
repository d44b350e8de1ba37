package identity

import (
	"context"
	"errors"
)

// ErrInvalidToken is returned for a token that fails verification
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the verified identity behind a bearer token
type Claims struct {
	UserID string
	Email  string
	// EmailVerified is nil when the token does not assert verification
	EmailVerified *bool
}

// Authenticator verifies a bearer token and returns its claims
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Claims, error)
}
