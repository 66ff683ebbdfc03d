package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"scheduling-service/internal/apperror"
	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
)

// ReconcileDeclines cancels upcoming confirmed bookings whose guest declined
// the calendar invitation. Bookings whose status cannot be read stay
// confirmed. It returns the number of bookings cancelled.
func (s *Service) ReconcileDeclines(ctx context.Context, lookahead time.Duration) (int, error) {
	if s.Resolver == nil {
		return 0, errors.New("reconcile: resolver not configured")
	}
	now := s.now()
	upcoming, err := s.Store.UpcomingEventBookings(ctx, interval.New(now, now.Add(lookahead)))
	if err != nil {
		return 0, fmt.Errorf("reconcile: load bookings: %w", err)
	}

	byHost := map[string][]models.Booking{}
	for _, b := range upcoming {
		byHost[b.HostID] = append(byHost[b.HostID], b)
	}

	cancelled := 0
	for hostID, bookings := range byHost {
		host, err := s.Store.HostByID(ctx, hostID)
		if err != nil {
			s.logger().Warn("reconcile: host lookup failed", zap.String("hostID", hostID), zap.Error(err))
			continue
		}
		still := map[string]bool{}
		for _, b := range s.Resolver.Blocking(ctx, host, bookings) {
			still[b.ID] = true
		}
		for _, b := range bookings {
			if still[b.ID] {
				continue
			}
			err := s.Store.SetBookingStatus(ctx, b.ID, models.BookingConfirmed, models.BookingCancelled)
			if errors.Is(err, apperror.ErrConflict) {
				continue
			}
			if err != nil {
				return cancelled, fmt.Errorf("reconcile: cancel %s: %w", b.ID, err)
			}
			cancelled++
			s.logger().Info("booking cancelled after guest declined",
				zap.String("hostID", hostID), zap.String("bookingID", b.ID))
			s.removeEvent(ctx, host, b)
		}
	}
	return cancelled, nil
}
