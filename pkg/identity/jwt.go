package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgrijalva/jwt-go"
)

// JWTAuthenticator verifies HMAC-signed tokens
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator creates an authenticator for tokens signed with secret
func NewJWTAuthenticator(secret string) (*JWTAuthenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTAuthenticator{secret: []byte(secret)}, nil
}

// Authenticate parses and verifies the token. Expiry and not-before are enforced.
func (a *JWTAuthenticator) Authenticate(_ context.Context, raw string) (*Claims, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	claims := &Claims{
		UserID: stringClaim(mc, "userId"),
		Email:  stringClaim(mc, "email"),
	}
	if claims.UserID == "" {
		claims.UserID = stringClaim(mc, "sub")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	if v, ok := mc["email_verified"].(bool); ok {
		claims.EmailVerified = &v
	} else if v, ok := mc["isEmailVerified"].(bool); ok {
		claims.EmailVerified = &v
	}
	return claims, nil
}

func stringClaim(mc jwt.MapClaims, key string) string {
	switch v := mc[key].(type) {
	case string:
		return v
	case float64:
		// numeric ids arrive as JSON numbers
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

var _ Authenticator = (*JWTAuthenticator)(nil)
