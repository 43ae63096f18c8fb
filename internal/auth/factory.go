package auth

import (
	"context"
	"fmt"

	"github.com/avtomon/wsChat/internal/config"
)

// NewProvider creates an auth Provider based on configuration.
func NewProvider(ctx context.Context, cfg config.AuthConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "builtin":
		return NewService(cfg), nil
	case "jwks":
		return NewJWKSProvider(ctx, cfg.JWKSURL, cfg.Issuer)
	default:
		return nil, fmt.Errorf("unknown auth provider: %q", cfg.Provider)
	}
}
