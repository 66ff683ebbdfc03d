package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"scheduling-service/internal/app"
	"scheduling-service/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		hostID string
		ttl    time.Duration
	)

	c := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a host (local testing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_HMAC_SECRET required")
			}
			tok, err := app.IssueToken([]byte(cfg.JWTSecret), hostID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, tok)
			return nil
		},
	}

	c.Flags().StringVar(&hostID, "host", "", "host id or external identity id placed in the token subject")
	c.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = c.MarkFlagRequired("host")
	return c
}
