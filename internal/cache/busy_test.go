package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"scheduling-service/internal/calendar"
	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
)

type countingProvider struct {
	mu    sync.Mutex
	calls int
	busy  []interval.Interval
	err   error
}

func (p *countingProvider) BusyIntervals(context.Context, models.CalendarAccount, interval.Interval) ([]interval.Interval, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.busy, p.err
}

func (p *countingProvider) CreateEvent(context.Context, models.CalendarAccount, calendar.Event) (calendar.CreatedEvent, error) {
	return calendar.CreatedEvent{EventID: "ev1"}, nil
}

func (p *countingProvider) DeleteEvent(context.Context, models.CalendarAccount, string) error {
	return nil
}

func (p *countingProvider) AttendeeStatus(context.Context, models.CalendarAccount, string, string) (calendar.AttendeeStatus, error) {
	return calendar.StatusAccepted, nil
}

var (
	acc = models.CalendarAccount{ID: "acc1"}
	day = interval.New(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))
)

func setup(t *testing.T, p *countingProvider) (*Busy, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Busy{Provider: p, Redis: rdb, TTL: time.Minute, Logger: zaptest.NewLogger(t)}, mr
}

func TestBusyReadThrough(t *testing.T) {
	p := &countingProvider{busy: []interval.Interval{
		interval.New(day.Start.Add(12*time.Hour), day.Start.Add(13*time.Hour)),
	}}
	c, _ := setup(t, p)
	ctx := context.Background()

	first, err := c.BusyIntervals(ctx, acc, day)
	require.NoError(t, err)
	second, err := c.BusyIntervals(ctx, acc, day)
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls)
	require.Len(t, second, 1)
	assert.True(t, first[0].Start.Equal(second[0].Start))
	assert.True(t, first[0].End.Equal(second[0].End))
}

func TestBusyExpires(t *testing.T) {
	p := &countingProvider{}
	c, mr := setup(t, p)
	ctx := context.Background()

	_, _ = c.BusyIntervals(ctx, acc, day)
	mr.FastForward(2 * time.Minute)
	_, _ = c.BusyIntervals(ctx, acc, day)
	assert.Equal(t, 2, p.calls)
}

func TestBusyInvalidatedByEventWrites(t *testing.T) {
	p := &countingProvider{}
	c, _ := setup(t, p)
	ctx := context.Background()

	_, _ = c.BusyIntervals(ctx, acc, day)
	_, err := c.CreateEvent(ctx, acc, calendar.Event{})
	require.NoError(t, err)
	_, _ = c.BusyIntervals(ctx, acc, day)
	require.NoError(t, c.DeleteEvent(ctx, acc, "ev1"))
	_, _ = c.BusyIntervals(ctx, acc, day)

	assert.Equal(t, 3, p.calls)
}

func TestBusyErrorsAreNotCached(t *testing.T) {
	p := &countingProvider{err: errors.New("quota")}
	c, _ := setup(t, p)
	ctx := context.Background()

	_, err := c.BusyIntervals(ctx, acc, day)
	assert.Error(t, err)
	p.err = nil
	_, err = c.BusyIntervals(ctx, acc, day)
	assert.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestBusyRedisDownFallsThrough(t *testing.T) {
	p := &countingProvider{}
	c, mr := setup(t, p)
	mr.Close()

	_, err := c.BusyIntervals(context.Background(), acc, day)
	assert.NoError(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestBusyDisabled(t *testing.T) {
	p := &countingProvider{}
	c, _ := setup(t, p)
	c.TTL = 0

	_, _ = c.BusyIntervals(context.Background(), acc, day)
	_, _ = c.BusyIntervals(context.Background(), acc, day)
	assert.Equal(t, 2, p.calls)
}
