// Package identity verifies bearer tokens issued by the external identity
// provider.
//
// Two verifiers are available. JWTAuthenticator checks HS256 tokens signed
// with a shared secret and reads the user id from the "userId" claim, falling
// back to "sub". OIDCAuthenticator checks ID tokens against an OpenID Connect
// issuer and uses "sub" and "email_verified".
//
// The package never issues tokens.
package identity
