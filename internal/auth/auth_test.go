package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/avtomon/wsChat/internal/config"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()
	return NewService(config.AuthConfig{
		JWTSecret: "test-secret-at-least-32-chars-long",
		JWTExpiry: config.Duration{Duration: time.Hour},
		Issuer:    "wschat-test",
	})
}

func TestIssueAndValidateToken(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	token, expiresAt, err := svc.IssueToken("ops", "admin", 0)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if until := time.Until(expiresAt); until < 59*time.Minute || until > time.Hour {
		t.Errorf("expiresAt: got %v from now, want ~1h", until)
	}

	id, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id.Subject != "ops" || id.Role != "admin" {
		t.Errorf("identity: got %+v", id)
	}
}

func TestIssueTokenRequiresSubject(t *testing.T) {
	svc := newTestAuthService(t)
	if _, _, err := svc.IssueToken("", "admin", 0); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestValidateTokenRejects(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	other := NewService(config.AuthConfig{
		JWTSecret: "another-secret-at-least-32-chars-long",
		JWTExpiry: config.Duration{Duration: time.Hour},
		Issuer:    "wschat-test",
	})
	foreign, _, _ := other.IssueToken("ops", "admin", 0)

	wrongIssuer := NewService(config.AuthConfig{
		JWTSecret: "test-secret-at-least-32-chars-long",
		Issuer:    "someone-else",
	})
	misissued, _, _ := wrongIssuer.IssueToken("ops", "admin", time.Hour)

	claims := &Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "ops",
		Issuer:    "wschat-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-at-least-32-chars-long"))

	noneToken, _ := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"garbage":      "not-a-jwt",
		"empty":        "",
		"wrong secret": foreign,
		"wrong issuer": misissued,
		"expired":      expired,
		"alg none":     noneToken,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.ValidateToken(ctx, token); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("got %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(context.Background(), config.AuthConfig{JWTSecret: "test-secret-at-least-32-chars-long"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "builtin" {
		t.Errorf("Name: got %q", p.Name())
	}
	if _, ok := p.(TokenIssuer); !ok {
		t.Error("builtin provider should issue tokens")
	}

	if _, err := NewProvider(context.Background(), config.AuthConfig{Provider: "ldap"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewProvider(context.Background(), config.AuthConfig{Provider: "jwks"}); err == nil {
		t.Error("expected error for jwks without url")
	}
}

func newTestJWKS(t *testing.T) (*rsa.PrivateKey, keyfunc.Keyfunc) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	set := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": "test-key",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	raw, err := json.Marshal(set)
	if err != nil {
		t.Fatal(err)
	}
	kf, err := keyfunc.NewJWKSetJSON(raw)
	if err != nil {
		t.Fatalf("NewJWKSetJSON: %v", err)
	}
	return key, kf
}

func signRS256(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestJWKSProvider(t *testing.T) {
	key, kf := newTestJWKS(t)
	p := NewJWKSProviderFromKeyfunc(kf, "https://idp.example.com")
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Unix()

	id, err := p.ValidateToken(ctx, signRS256(t, key, jwt.MapClaims{
		"sub": "user-1", "iss": "https://idp.example.com", "exp": exp, "role": "admin",
	}))
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id.Subject != "user-1" || id.Role != "admin" {
		t.Errorf("identity: got %+v", id)
	}

	id, err = p.ValidateToken(ctx, signRS256(t, key, jwt.MapClaims{
		"sub": "user-2", "iss": "https://idp.example.com", "exp": exp, "roles": []string{"viewer", "admin"},
	}))
	if err != nil {
		t.Fatalf("ValidateToken (roles): %v", err)
	}
	if id.Role != "viewer" {
		t.Errorf("role from roles: got %q, want viewer", id.Role)
	}

	rejects := map[string]jwt.MapClaims{
		"no subject":   {"iss": "https://idp.example.com", "exp": exp},
		"wrong issuer": {"sub": "user-1", "iss": "https://other.example.com", "exp": exp},
		"no expiry":    {"sub": "user-1", "iss": "https://idp.example.com"},
	}
	for name, claims := range rejects {
		t.Run(name, func(t *testing.T) {
			if _, err := p.ValidateToken(ctx, signRS256(t, key, claims)); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("got %v, want ErrUnauthorized", err)
			}
		})
	}

	other, _ := newTestJWKS(t)
	if _, err := p.ValidateToken(ctx, signRS256(t, other, jwt.MapClaims{
		"sub": "user-1", "iss": "https://idp.example.com", "exp": exp,
	})); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("foreign key: got %v, want ErrUnauthorized", err)
	}
}
