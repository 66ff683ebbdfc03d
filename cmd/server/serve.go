package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"scheduling-service/internal/app"
	"scheduling-service/internal/server"
)

func newServeCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := setup(ctx, migrateUp)
			if err != nil {
				return err
			}
			defer d.Close()

			if d.cfg.IsProduction() {
				gin.SetMode(gin.ReleaseMode)
			}
			a := &app.App{
				Store:              d.store,
				Resolver:           d.resolver,
				Bookings:           d.bookings,
				Logger:             d.logger.Named("http"),
				OAuth:              d.oauth,
				Accounts:           d.gcal,
				JWTSecret:          []byte(d.cfg.JWTSecret),
				StaticTokens:       d.cfg.Tokens(),
				DefaultSlotMinutes: d.cfg.DefaultSlotMinutes,
			}
			router := app.NewRouter(a, app.RouterOptions{
				CORSOrigins:     d.cfg.Origins(),
				RateLimitPerMin: d.cfg.RateLimitPerMin,
			})
			return server.Run(ctx, ":"+d.cfg.AppPort, router, d.logger)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", false, "apply database migrations on startup")
	return cmd
}
