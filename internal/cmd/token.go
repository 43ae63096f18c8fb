package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avtomon/wsChat/internal/auth"
	"github.com/avtomon/wsChat/internal/config"
	"github.com/avtomon/wsChat/pkg/protocol"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [config-file]",
		Short: "Mint an admin API token signed with the configured secret",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runToken,
	}
	cmd.Flags().String("subject", "wschat-cli", "token subject")
	cmd.Flags().String("role", "", "role claim (default: auth.admin_role)")
	cmd.Flags().Duration("ttl", 0, "token lifetime (default: auth.jwt_expiry)")
	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	subject, _ := cmd.Flags().GetString("subject")
	role, _ := cmd.Flags().GetString("role")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if role == "" {
		role = cfg.Auth.AdminRole
	}

	resp, err := issueToken(cfg, subject, role, ttl)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// issueToken mints a token when the configured provider can sign one.
func issueToken(cfg *config.Config, subject, role string, ttl time.Duration) (protocol.TokenResponse, error) {
	if cfg.Auth.Provider != "builtin" {
		return protocol.TokenResponse{}, fmt.Errorf("auth.provider %q does not issue tokens, request one from the identity provider", cfg.Auth.Provider)
	}
	var issuer auth.TokenIssuer = auth.NewService(cfg.Auth)
	token, expiresAt, err := issuer.IssueToken(subject, role, ttl)
	if err != nil {
		return protocol.TokenResponse{}, fmt.Errorf("issue token: %w", err)
	}
	return protocol.TokenResponse{Token: token, ExpiresAt: expiresAt}, nil
}
