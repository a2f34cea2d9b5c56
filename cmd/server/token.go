package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "registrar/internal/jwt_token"
	"registrar/pkg/domain"
)

// newTokenCmd mints access tokens for local testing.
func newTokenCmd(root *rootOptions) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("token minting is disabled in production")
			}
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			if r == domain.RoleCitizen {
				if _, err := domain.ParseSubjectID(subject); err != nil {
					return fmt.Errorf("citizen subject: %w", err)
				}
			}
			if ttl <= 0 {
				ttl = cfg.Auth.DevTokenTTL
			}
			svc := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
			token, err := svc.GenerateAccessToken(subject, r, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject; a citizen's personal number")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleCitizen), "citizen or agency")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to DEV_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
