package main

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cassette/pkg/api"
)

func newTokenCommand(logger *zap.Logger) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin endpoints",
		Long: `Token signs an HS256 JWT with admin.jwt_secret from the loaded
configuration. Pass it as "Authorization: Bearer <token>".`,
		Example: `  CASSETTE_ADMIN_JWT_SECRET=s3cret cassette token --subject ci --ttl 1h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, logger, nil)
			if err != nil {
				return err
			}

			auth := api.NewTokenAuth(cfg.Admin.JWTSecret, cfg.Admin.JWTIssuer, logger)
			if !auth.Enabled() {
				return fmt.Errorf("admin.jwt_secret is not set")
			}

			now := time.Now()
			claims := jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now)}
			if ttl > 0 {
				claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
			}

			token, err := auth.Sign(subject, claims)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "cassette-cli", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime (0 for no expiry)")

	return cmd
}
