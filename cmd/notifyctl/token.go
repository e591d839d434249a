package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go-notification-realtime/internal/infrastructure/auth"
	"go-notification-realtime/internal/infrastructure/config"
)

func tokenCmd(cfg *config.Config) *cobra.Command {
	var (
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id> [channel...]",
		Short: "Issue a channel token",
		Long:  `Issue a token for user-id. Without channels the token opens every channel.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("a signing secret is required (--secret or JWT_SECRET)")
			}
			token, err := auth.NewTokenService(secret, ttl).Issue(args[0], args[1:]...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", cfg.JWTSecret, "HMAC signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", cfg.JWTExpiry, "Token lifetime")

	return cmd
}
