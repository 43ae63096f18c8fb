package auth

import (
	"context"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSProvider validates tokens issued by an external identity provider
// against its published key set.
type JWKSProvider struct {
	issuer string
	jwks   keyfunc.Keyfunc
}

// NewJWKSProvider fetches the key set at jwksURL and keeps it refreshed in
// the background until ctx is canceled.
func NewJWKSProvider(ctx context.Context, jwksURL, issuer string) (*JWKSProvider, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("jwks url is required")
	}
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS from %s: %w", jwksURL, err)
	}
	return NewJWKSProviderFromKeyfunc(jwks, issuer), nil
}

// NewJWKSProviderFromKeyfunc wraps an already loaded key set.
func NewJWKSProviderFromKeyfunc(jwks keyfunc.Keyfunc, issuer string) *JWKSProvider {
	return &JWKSProvider{issuer: issuer, jwks: jwks}
}

// Name returns the provider name.
func (p *JWKSProvider) Name() string { return "jwks" }

// ValidateToken parses a JWT signed by a key of the set and returns its
// subject and role. The role is read from "role", or from the first entry of
// "roles".
func (p *JWKSProvider) ValidateToken(ctx context.Context, tokenStr string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	token, err := jwt.Parse(tokenStr, p.jwks.KeyfuncCtx(ctx), opts...)
	if err != nil {
		return nil, ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrUnauthorized
	}
	return &Identity{Subject: sub, Role: roleClaim(claims)}, nil
}

// roleClaim extracts the role or returns "".
func roleClaim(claims jwt.MapClaims) string {
	if role, _ := claims["role"].(string); role != "" {
		return role
	}
	if roles, ok := claims["roles"].([]any); ok && len(roles) > 0 {
		role, _ := roles[0].(string)
		return role
	}
	return ""
}
