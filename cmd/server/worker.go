package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scheduling-service/internal/tasks"
)

func newWorkerCmd() *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background jobs (decline reconciliation)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			redisOpt := asynq.RedisClientOpt{
				Addr:     d.cfg.RedisAddr,
				Password: d.cfg.RedisPassword,
				DB:       d.cfg.RedisQueueDB,
			}

			if now {
				client := asynq.NewClient(redisOpt)
				defer client.Close()
				info, err := tasks.Enqueue(ctx, client, d.cfg.ReconcileLookahead)
				if err != nil {
					return fmt.Errorf("enqueue reconcile: %w", err)
				}
				d.logger.Info("reconcile enqueued", zap.String("taskID", info.ID))
			}

			return tasks.RunWorker(ctx, tasks.WorkerConfig{
				Redis:     redisOpt,
				Schedule:  d.cfg.ReconcileInterval,
				Lookahead: d.cfg.ReconcileLookahead,
			}, d.bookings, d.logger.Named("worker"))
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, "enqueue one reconcile run immediately")
	return cmd
}
