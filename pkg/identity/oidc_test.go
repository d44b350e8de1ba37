package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// issuer serves discovery and keys for a single RSA key
type issuer struct {
	server *httptest.Server
	key    *rsa.PrivateKey
}

func newIssuer(t *testing.T) *issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	iss := &issuer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                iss.server.URL,
			"jwks_uri":                              iss.server.URL + "/keys",
			"authorization_endpoint":                iss.server.URL + "/auth",
			"token_endpoint":                        iss.server.URL + "/token",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key: &key.PublicKey, KeyID: "k1", Algorithm: "RS256", Use: "sig",
		}}})
	})
	iss.server = httptest.NewServer(mux)
	t.Cleanup(iss.server.Close)
	return iss
}

func (i *issuer) token(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.RS256,
		Key:       jose.JSONWebKey{Key: i.key, KeyID: "k1"},
	}, nil)
	require.NoError(t, err)

	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	jws, err := signer.Sign(payload)
	require.NoError(t, err)
	raw, err := jws.CompactSerialize()
	require.NoError(t, err)
	return raw
}

func TestNewOIDCAuthenticator_RequiresConfig(t *testing.T) {
	_, err := NewOIDCAuthenticator(context.Background(), OIDCConfig{IssuerURL: "https://id.example"})
	assert.Error(t, err)
}

func TestOIDCAuthenticator_Authenticate(t *testing.T) {
	iss := newIssuer(t)
	ctx := context.Background()

	auth, err := NewOIDCAuthenticator(ctx, OIDCConfig{IssuerURL: iss.server.URL, ClientID: "oceanmeter"})
	require.NoError(t, err)

	now := time.Now()
	valid := func() map[string]interface{} {
		return map[string]interface{}{
			"iss":            iss.server.URL,
			"aud":            "oceanmeter",
			"sub":            "oidc-user",
			"email":          "skipper@marinova.in",
			"email_verified": false,
			"iat":            now.Unix(),
			"exp":            now.Add(time.Hour).Unix(),
		}
	}

	t.Run("valid token", func(t *testing.T) {
		claims, err := auth.Authenticate(ctx, iss.token(t, valid()))
		require.NoError(t, err)
		assert.Equal(t, "oidc-user", claims.UserID)
		assert.Equal(t, "skipper@marinova.in", claims.Email)
		require.NotNil(t, claims.EmailVerified)
		assert.False(t, *claims.EmailVerified)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := valid()
		c["aud"] = "someone-else"
		_, err := auth.Authenticate(ctx, iss.token(t, c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		c := valid()
		c["exp"] = now.Add(-time.Hour).Unix()
		_, err := auth.Authenticate(ctx, iss.token(t, c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := auth.Authenticate(ctx, "a.b.c")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
