// Package cache fronts the calendar collaborator with a short-lived Redis
// cache of busy intervals.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"scheduling-service/internal/calendar"
	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
)

// NewRedisClient connects to Redis and verifies the connection, as the
// worker and the API share one instance on different databases.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Busy caches BusyIntervals per account and range. Event writes through it
// bump the account's generation, so cached entries never outlive a change the
// service made itself.
type Busy struct {
	calendar.Provider
	Redis  *redis.Client
	TTL    time.Duration
	Logger *zap.Logger
}

func (b *Busy) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

func generationKey(accountID string) string { return "busy:gen:" + accountID }

func (b *Busy) key(ctx context.Context, acc models.CalendarAccount, rng interval.Interval) (string, error) {
	gen, err := b.Redis.Get(ctx, generationKey(acc.ID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("busy:%s:%d:%d:%d", acc.ID, gen, rng.Start.Unix(), rng.End.Unix()), nil
}

func (b *Busy) BusyIntervals(ctx context.Context, acc models.CalendarAccount, rng interval.Interval) ([]interval.Interval, error) {
	if b.TTL <= 0 {
		return b.Provider.BusyIntervals(ctx, acc, rng)
	}
	key, err := b.key(ctx, acc, rng)
	if err != nil {
		b.logger().Warn("busy cache unavailable", zap.String("accountID", acc.ID), zap.Error(err))
		return b.Provider.BusyIntervals(ctx, acc, rng)
	}

	raw, err := b.Redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []interval.Interval
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	case !errors.Is(err, redis.Nil):
		b.logger().Warn("busy cache read failed", zap.String("key", key), zap.Error(err))
	}

	busy, err := b.Provider.BusyIntervals(ctx, acc, rng)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(busy)
	if err == nil {
		err = b.Redis.Set(ctx, key, payload, b.TTL).Err()
	}
	if err != nil {
		b.logger().Warn("busy cache write failed", zap.String("key", key), zap.Error(err))
	}
	return busy, nil
}

func (b *Busy) CreateEvent(ctx context.Context, acc models.CalendarAccount, ev calendar.Event) (calendar.CreatedEvent, error) {
	created, err := b.Provider.CreateEvent(ctx, acc, ev)
	if err == nil {
		b.invalidate(ctx, acc)
	}
	return created, err
}

func (b *Busy) DeleteEvent(ctx context.Context, acc models.CalendarAccount, eventID string) error {
	err := b.Provider.DeleteEvent(ctx, acc, eventID)
	if err == nil {
		b.invalidate(ctx, acc)
	}
	return err
}

func (b *Busy) invalidate(ctx context.Context, acc models.CalendarAccount) {
	if err := b.Redis.Incr(ctx, generationKey(acc.ID)).Err(); err != nil {
		b.logger().Warn("busy cache invalidation failed", zap.String("accountID", acc.ID), zap.Error(err))
	}
}
