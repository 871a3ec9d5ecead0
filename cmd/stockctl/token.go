package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/auth"
)

func (c *cli) tokenCmd() *cobra.Command {
	var (
		user        appctx.UserContext
		ttl         time.Duration
		permissions []string
		roles       []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for tests and service accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if user.UserID == "" {
				user.UserID = id.New().String()
			}
			user.Permissions = permissions
			user.Roles = roles

			jwtCfg := auth.DefaultJWTConfig(c.cfg.JWTSecret, c.cfg.JWTIssuer)
			if ttl > 0 {
				jwtCfg.AccessTokenTTL = ttl
			}
			token, expires, err := auth.NewJWTService(jwtCfg).GenerateAccessToken(user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			c.log.Infow("token issued", "user_id", user.UserID, "expires_at", expires)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&user.UserID, "user", "", "user id (random when empty)")
	f.StringVar(&user.Email, "email", "", "user email")
	f.StringVar(&user.BranchID, "branch", "", "branch the user belongs to")
	f.BoolVar(&user.IsAdmin, "admin", false, "grant every permission")
	f.StringSliceVar(&permissions, "perm", nil, "permission to grant (repeatable)")
	f.StringSliceVar(&roles, "role", nil, "role to grant (repeatable)")
	f.DurationVar(&ttl, "ttl", 0, "token lifetime (default 15m)")
	return cmd
}
