// Package tasks runs background work on asynq: the periodic scan that cancels
// bookings whose guest declined the calendar invitation.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TypeReconcileDeclines = "booking:reconcile-declines"

type ReconcilePayload struct {
	Lookahead time.Duration `json:"lookahead"`
}

func NewReconcileTask(lookahead time.Duration) (*asynq.Task, error) {
	b, err := json.Marshal(ReconcilePayload{Lookahead: lookahead})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReconcileDeclines, b, asynq.MaxRetry(2), asynq.Timeout(5*time.Minute)), nil
}

type Reconciler interface {
	ReconcileDeclines(ctx context.Context, lookahead time.Duration) (int, error)
}

func HandleReconcile(r Reconciler, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p ReconcilePayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("invalid reconcile payload", zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if p.Lookahead <= 0 {
			return fmt.Errorf("lookahead must be positive: %w", asynq.SkipRetry)
		}

		start := time.Now()
		n, err := r.ReconcileDeclines(ctx, p.Lookahead)
		if err != nil {
			logger.Warn("decline reconciliation failed", zap.Error(err))
			return err
		}
		logger.Info("decline reconciliation finished",
			zap.Int("cancelled", n), zap.Duration("took", time.Since(start)))
		return nil
	}
}

type WorkerConfig struct {
	Redis       asynq.RedisConnOpt
	Schedule    string
	Lookahead   time.Duration
	Concurrency int
}

// RunWorker processes reconcile tasks and enqueues one on every tick of
// cfg.Schedule until ctx is cancelled.
func RunWorker(ctx context.Context, cfg WorkerConfig, r Reconciler, logger *zap.Logger) error {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	srv := asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
		Logger:      logger.Sugar(),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReconcileDeclines, HandleReconcile(r, logger))

	task, err := NewReconcileTask(cfg.Lookahead)
	if err != nil {
		return err
	}
	scheduler := asynq.NewScheduler(cfg.Redis, &asynq.SchedulerOpts{Logger: logger.Sugar()})
	if _, err := scheduler.Register(cfg.Schedule, task, asynq.Unique(time.Minute)); err != nil {
		return fmt.Errorf("register %q: %w", cfg.Schedule, err)
	}

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("start scheduler: %w", err)
	}
	logger.Info("reconcile worker started", zap.String("schedule", cfg.Schedule), zap.Duration("lookahead", cfg.Lookahead))

	<-ctx.Done()
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info("reconcile worker stopped")
	return nil
}

// Enqueue submits one reconcile run immediately.
func Enqueue(ctx context.Context, client *asynq.Client, lookahead time.Duration) (*asynq.TaskInfo, error) {
	task, err := NewReconcileTask(lookahead)
	if err != nil {
		return nil, err
	}
	return client.EnqueueContext(ctx, task)
}
