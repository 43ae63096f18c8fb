package auth

import (
	"context"
	"errors"
	"time"
)

var ErrUnauthorized = errors.New("unauthorized")

// Identity is the caller of an admin API request.
type Identity struct {
	Subject string
	Role    string
}

// Provider validates bearer tokens and returns identities.
type Provider interface {
	ValidateToken(ctx context.Context, token string) (*Identity, error)
	Name() string
}

// TokenIssuer is implemented by providers that mint their own tokens.
type TokenIssuer interface {
	IssueToken(subject, role string, ttl time.Duration) (string, time.Time, error)
}
