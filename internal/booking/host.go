package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scheduling-service/internal/apperror"
	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
	"scheduling-service/internal/slots"
)

// SaveAvailability replaces the host's whole window set with windows. There is
// no merge: callers submit the complete desired set every time.
func (s *Service) SaveAvailability(ctx context.Context, hostID string, windows []models.AvailabilityWindow) ([]models.AvailabilityWindow, error) {
	if hostID == "" {
		return nil, apperror.ErrUnauthorized
	}
	if _, err := s.Store.HostByID(ctx, hostID); err != nil {
		return nil, err
	}

	out := make([]models.AvailabilityWindow, 0, len(windows))
	for _, w := range windows {
		if err := w.Validate(); err != nil {
			return nil, apperror.InvalidInput(err.Error())
		}
		if w.Recurrence != "" {
			if _, err := slots.ParseRecurrence(w.Recurrence, w.Start); err != nil {
				return nil, apperror.InvalidInput(err.Error())
			}
		}
		if w.Key == "" {
			w.Key = uuid.New().String()
		}
		out = append(out, w)
	}

	saved, err := s.Store.ReplaceAvailability(ctx, hostID, out)
	if err != nil {
		return nil, fmt.Errorf("replace availability: %w", err)
	}
	return saved, nil
}

func (s *Service) Availability(ctx context.Context, hostID string) ([]models.AvailabilityWindow, error) {
	if hostID == "" {
		return nil, apperror.ErrUnauthorized
	}
	h, err := s.Store.HostByID(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if h.Windows == nil {
		return []models.AvailabilityWindow{}, nil
	}
	return h.Windows, nil
}

func (s *Service) ListBookings(ctx context.Context, hostID string, rng *interval.Interval) ([]models.Booking, error) {
	if hostID == "" {
		return nil, apperror.ErrUnauthorized
	}
	return s.Store.ListBookings(ctx, hostID, rng)
}

// Booking returns a booking owned by hostID. Bookings of other hosts are
// reported as not found.
func (s *Service) Booking(ctx context.Context, hostID, id string) (models.Booking, error) {
	if hostID == "" {
		return models.Booking{}, apperror.ErrUnauthorized
	}
	b, err := s.Store.Booking(ctx, id)
	if err != nil {
		return models.Booking{}, err
	}
	if b.HostID != hostID {
		return models.Booking{}, apperror.NotFound("booking not found")
	}
	return b, nil
}

// CancelBooking moves a confirmed booking of hostID to cancelled and removes
// its calendar event best-effort.
func (s *Service) CancelBooking(ctx context.Context, hostID, id string) error {
	b, err := s.Booking(ctx, hostID, id)
	if err != nil {
		return err
	}
	if b.Status == models.BookingCancelled {
		return apperror.Conflict("booking already cancelled")
	}
	if err := s.Store.SetBookingStatus(ctx, id, models.BookingConfirmed, models.BookingCancelled); err != nil {
		return err
	}

	if b.ExternalEventID == "" || s.Calendar == nil {
		return nil
	}
	host, err := s.Store.HostByID(ctx, hostID)
	if err != nil {
		return nil
	}
	s.removeEvent(ctx, host, b)
	return nil
}

// removeEvent deletes the calendar event of a cancelled booking. Failures are
// logged only.
func (s *Service) removeEvent(ctx context.Context, host models.Host, b models.Booking) {
	if b.ExternalEventID == "" || s.Calendar == nil {
		return
	}
	acc, ok := host.DefaultAccount()
	if !ok {
		return
	}
	if err := s.Calendar.DeleteEvent(ctx, acc, b.ExternalEventID); err != nil {
		s.logger().Warn("calendar event removal failed",
			zap.String("bookingID", b.ID), zap.String("eventID", b.ExternalEventID), zap.Error(err))
	}
}
