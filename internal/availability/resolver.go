// Package availability answers "which slots" and "which dates" a host can
// offer, combining declared windows, live bookings and external busy time.
package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scheduling-service/internal/apperror"
	"scheduling-service/internal/calendar"
	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
	"scheduling-service/internal/slots"
)

// MaxRangeDays bounds a single dates query.
const MaxRangeDays = 93

type Store interface {
	HostBySlug(ctx context.Context, slug string) (models.Host, error)
	// BookingsInRange returns confirmed bookings of the host overlapping rng.
	BookingsInRange(ctx context.Context, hostID string, rng interval.Interval) ([]models.Booking, error)
}

type Resolver struct {
	Store    Store
	Calendar calendar.Provider
	Logger   *zap.Logger
	// Location is used for hosts without a timezone of their own.
	Location          *time.Location
	Now               func() time.Time
	LookupConcurrency int
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resolver) location(h models.Host) *time.Location {
	def := r.Location
	if def == nil {
		def = time.UTC
	}
	return h.Location(def)
}

// AvailableSlots lists the free slots of the given calendar day in
// chronological order. Slots starting before now are never returned.
func (r *Resolver) AvailableSlots(ctx context.Context, hostSlug, date string, minutes int) ([]models.Slot, error) {
	if minutes <= 0 {
		return nil, apperror.InvalidInput("slot duration must be positive")
	}
	host, err := r.Store.HostBySlug(ctx, hostSlug)
	if err != nil {
		return nil, err
	}
	loc := r.location(host)
	d, err := interval.ParseDate(date, loc)
	if err != nil {
		return nil, apperror.InvalidInput(err.Error())
	}
	day := interval.Day(d, loc)

	snap, err := r.snapshot(ctx, host, day, loc)
	if err != nil {
		return nil, err
	}
	f := slots.Filter{Bookings: snap.bookings, Busy: snap.busy, Now: r.now()}
	free := f.Enumerate(slots.Generate(snap.windows, day, time.Duration(minutes)*time.Minute))
	return dedupe(free), nil
}

// AvailableDates lists, inclusive of both ends, the calendar days from today
// onward that still have at least one free slot.
func (r *Resolver) AvailableDates(ctx context.Context, hostSlug, startDate, endDate string, minutes int) ([]string, error) {
	if minutes <= 0 {
		return nil, apperror.InvalidInput("slot duration must be positive")
	}
	host, err := r.Store.HostBySlug(ctx, hostSlug)
	if err != nil {
		return nil, err
	}
	loc := r.location(host)
	first, err := interval.ParseDate(startDate, loc)
	if err != nil {
		return nil, apperror.InvalidInput(err.Error())
	}
	last, err := interval.ParseDate(endDate, loc)
	if err != nil {
		return nil, apperror.InvalidInput(err.Error())
	}
	if last.Before(first) {
		return nil, apperror.InvalidInput("end date must not be before start date")
	}
	if first.AddDate(0, 0, MaxRangeDays).Before(last) {
		return nil, apperror.InvalidInput(fmt.Sprintf("date range exceeds %d days", MaxRangeDays))
	}

	now := r.now()
	today, _ := interval.DayBounds(now, loc)
	if first.Before(today) {
		first = today
	}
	if last.Before(first) {
		return []string{}, nil
	}
	rng := interval.New(first, last.AddDate(0, 0, 1))

	snap, err := r.snapshot(ctx, host, rng, loc)
	if err != nil {
		return nil, err
	}
	f := slots.Filter{Bookings: snap.bookings, Busy: snap.busy, Now: now}
	length := time.Duration(minutes) * time.Minute

	out := []string{}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		day := interval.Day(d, loc)
		if f.Probe(slots.Generate(snap.windows, day, length)) {
			out = append(out, interval.FormatDate(d, loc))
		}
	}
	return out, nil
}

type snapshot struct {
	windows  []interval.Interval
	bookings []models.Booking
	busy     []interval.Interval
}

func (r *Resolver) snapshot(ctx context.Context, host models.Host, rng interval.Interval, loc *time.Location) (snapshot, error) {
	windows, err := slots.Expand(host.Windows, rng, loc)
	if err != nil {
		return snapshot{}, err
	}
	bookings, err := r.Store.BookingsInRange(ctx, host.ID, rng)
	if err != nil {
		return snapshot{}, fmt.Errorf("load bookings: %w", err)
	}
	return snapshot{
		windows:  windows,
		bookings: r.Blocking(ctx, host, bookings),
		busy:     r.Busy(ctx, host, rng),
	}, nil
}

// Busy reads the external busy time of the host's default calendar. Any
// failure degrades to no busy time.
func (r *Resolver) Busy(ctx context.Context, host models.Host, rng interval.Interval) []interval.Interval {
	if r.Calendar == nil {
		return nil
	}
	acc, ok := host.DefaultAccount()
	if !ok {
		return nil
	}
	busy, err := r.Calendar.BusyIntervals(ctx, acc, rng)
	if err != nil {
		r.logger().Warn("busy interval lookup failed, continuing without",
			zap.String("hostID", host.ID), zap.String("accountID", acc.ID), zap.Error(err))
		return nil
	}
	return busy
}

// Blocking drops bookings whose guest has declined the calendar event. Lookups
// run concurrently; a failed lookup keeps the booking blocking.
func (r *Resolver) Blocking(ctx context.Context, host models.Host, bookings []models.Booking) []models.Booking {
	if r.Calendar == nil || len(bookings) == 0 {
		return bookings
	}
	acc, ok := host.DefaultAccount()
	if !ok {
		return bookings
	}

	declined := make([]bool, len(bookings))
	g, gctx := errgroup.WithContext(ctx)
	limit := r.LookupConcurrency
	if limit <= 0 {
		limit = 8
	}
	g.SetLimit(limit)
	for i, b := range bookings {
		if b.ExternalEventID == "" {
			continue
		}
		g.Go(func() error {
			status, err := r.Calendar.AttendeeStatus(gctx, acc, b.ExternalEventID, b.GuestEmail)
			if err != nil {
				r.logger().Warn("attendee status lookup failed, treating booking as blocking",
					zap.String("bookingID", b.ID), zap.String("eventID", b.ExternalEventID), zap.Error(err))
				return nil
			}
			declined[i] = status == calendar.StatusDeclined
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.Booking, 0, len(bookings))
	for i, b := range bookings {
		if !declined[i] {
			out = append(out, b)
		}
	}
	return out
}

func (r *Resolver) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func dedupe(in []models.Slot) []models.Slot {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Start.Equal(in[j].Start) {
			return in[i].End.Before(in[j].End)
		}
		return in[i].Start.Before(in[j].Start)
	})
	out := make([]models.Slot, 0, len(in))
	for _, s := range in {
		if n := len(out); n > 0 && out[n-1].Start.Equal(s.Start) && out[n-1].End.Equal(s.End) {
			continue
		}
		out = append(out, s)
	}
	return out
}
