// Package booking commits bookings against live state and owns the host-side
// mutations: replacing availability, cancelling, and reconciling declines.
package booking

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scheduling-service/internal/apperror"
	"scheduling-service/internal/availability"
	"scheduling-service/internal/calendar"
	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
	"scheduling-service/internal/slots"
)

type Store interface {
	HostBySlug(ctx context.Context, slug string) (models.Host, error)
	HostByID(ctx context.Context, id string) (models.Host, error)
	MeetingType(ctx context.Context, hostID, slug string) (models.MeetingType, error)
	CountBookingsInRange(ctx context.Context, hostID string, rng interval.Interval) (int, error)
	BookingsInRange(ctx context.Context, hostID string, rng interval.Interval) ([]models.Booking, error)
	// CreateBooking persists a confirmed booking after cancelling the
	// confirmed bookings listed in release, in one step. Stores that can
	// serialize per host return apperror.ErrSlotUnavailable when the span was
	// taken after validation.
	CreateBooking(ctx context.Context, b models.Booking, release []string) (models.Booking, error)
	Booking(ctx context.Context, id string) (models.Booking, error)
	ListBookings(ctx context.Context, hostID string, rng *interval.Interval) ([]models.Booking, error)
	// SetBookingStatus moves a booking from one status to another and returns
	// apperror.ErrConflict when it is not currently in from.
	SetBookingStatus(ctx context.Context, id string, from, to models.BookingStatus) error
	ReplaceAvailability(ctx context.Context, hostID string, windows []models.AvailabilityWindow) ([]models.AvailabilityWindow, error)
	UpcomingEventBookings(ctx context.Context, rng interval.Interval) ([]models.Booking, error)
}

// CalendarOutcome reports what happened to the calendar side effect of a
// confirmed booking.
type CalendarOutcome string

const (
	CalendarCreated CalendarOutcome = "created"
	CalendarSkipped CalendarOutcome = "skipped"
	CalendarFailed  CalendarOutcome = "failed"
)

type Request struct {
	HostSlug        string
	MeetingTypeSlug string
	Start           time.Time
	End             time.Time
	GuestName       string
	GuestEmail      string
	Notes           string
}

func (r Request) validate() error {
	if r.HostSlug == "" {
		return apperror.InvalidInput("host is required")
	}
	if r.Start.IsZero() || r.End.IsZero() || !r.Start.Before(r.End) {
		return apperror.InvalidInput("start must be before end")
	}
	if strings.TrimSpace(r.GuestName) == "" {
		return apperror.InvalidInput("guest name is required")
	}
	if _, err := mail.ParseAddress(r.GuestEmail); err != nil {
		return apperror.InvalidInput("guest email is invalid")
	}
	return nil
}

type Result struct {
	Booking  models.Booking
	Calendar CalendarOutcome
	// CalendarErr is set when Calendar is CalendarFailed.
	CalendarErr error
}

type Service struct {
	Store    Store
	Calendar calendar.Provider
	Resolver *availability.Resolver
	Logger   *zap.Logger
	// Quotas maps a plan to its monthly confirmed-booking cap; zero or absent
	// means unlimited.
	Quotas   map[models.Plan]int
	Location *time.Location
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) location(h models.Host) *time.Location {
	def := s.Location
	if def == nil {
		def = time.UTC
	}
	return h.Location(def)
}

// CreateBooking runs the commit sequence: resolve host, enforce the monthly
// quota, resolve the optional meeting type, re-validate the span against live
// bookings, create the calendar event best-effort, then persist.
//
// The quota check and the re-validation are reads; two concurrent requests
// can both pass them. Only the store's conditional write closes that gap.
func (s *Service) CreateBooking(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	if req.Start.Before(s.now()) {
		return Result{}, apperror.InvalidInput("start is in the past")
	}
	span := interval.New(req.Start, req.End)

	host, err := s.Store.HostBySlug(ctx, req.HostSlug)
	if err != nil {
		return Result{}, err
	}

	if err := s.checkQuota(ctx, host); err != nil {
		return Result{}, err
	}

	var mt *models.MeetingType
	if req.MeetingTypeSlug != "" {
		t, err := s.Store.MeetingType(ctx, host.ID, req.MeetingTypeSlug)
		if err != nil {
			s.logger().Info("meeting type unavailable, booking without it",
				zap.String("hostID", host.ID), zap.String("meetingType", req.MeetingTypeSlug), zap.Error(err))
		} else {
			mt = &t
		}
	}

	declined, err := s.revalidate(ctx, host, span)
	if err != nil {
		return Result{}, err
	}
	release := make([]string, 0, len(declined))
	for _, d := range declined {
		release = append(release, d.ID)
	}

	b := models.Booking{
		ID:         uuid.New().String(),
		HostID:     host.ID,
		Start:      req.Start,
		End:        req.End,
		GuestName:  strings.TrimSpace(req.GuestName),
		GuestEmail: req.GuestEmail,
		Status:     models.BookingConfirmed,
		Notes:      req.Notes,
		CreatedAt:  s.now(),
	}
	if mt != nil {
		b.MeetingTypeID = mt.ID
	}

	res := Result{Calendar: CalendarSkipped}
	acc, hasAccount := host.DefaultAccount()
	if s.Calendar != nil && hasAccount {
		ev, err := s.Calendar.CreateEvent(ctx, acc, eventFor(host, mt, b))
		if err != nil {
			s.logger().Warn("calendar event creation failed, booking without event",
				zap.String("hostID", host.ID), zap.String("bookingID", b.ID), zap.Error(err))
			res.Calendar = CalendarFailed
			res.CalendarErr = err
		} else {
			res.Calendar = CalendarCreated
			b.ExternalEventID = ev.EventID
			b.ExternalMeetingLink = ev.MeetingLink
		}
	}

	saved, err := s.Store.CreateBooking(ctx, b, release)
	if err != nil {
		if b.ExternalEventID != "" {
			if derr := s.Calendar.DeleteEvent(ctx, acc, b.ExternalEventID); derr != nil {
				s.logger().Warn("orphaned calendar event after failed persist",
					zap.String("eventID", b.ExternalEventID), zap.Error(derr))
			}
		}
		if errors.Is(err, apperror.ErrSlotUnavailable) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("persist booking: %w", err)
	}
	res.Booking = saved

	for _, d := range declined {
		s.logger().Info("booking cancelled after guest declined",
			zap.String("hostID", host.ID), zap.String("bookingID", d.ID), zap.String("replacedBy", saved.ID))
		s.removeEvent(ctx, host, d)
	}
	s.logger().Info("booking confirmed",
		zap.String("hostID", host.ID), zap.String("bookingID", saved.ID),
		zap.Time("start", saved.Start), zap.String("calendar", string(res.Calendar)))
	return res, nil
}

func (s *Service) checkQuota(ctx context.Context, host models.Host) error {
	limit := s.Quotas[host.Plan]
	if limit <= 0 {
		return nil
	}
	loc := s.location(host)
	now := s.now().In(loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	n, err := s.Store.CountBookingsInRange(ctx, host.ID, interval.New(monthStart, monthStart.AddDate(0, 1, 0)))
	if err != nil {
		return fmt.Errorf("count bookings: %w", err)
	}
	if n >= limit {
		return apperror.New(apperror.KindQuotaExceeded,
			fmt.Sprintf("%s has reached the %d bookings per month allowed on the %s plan", host.Name, limit, host.Plan))
	}
	return nil
}

// revalidate checks span against the host's declared availability and the
// live, non-declined bookings. External busy time is not consulted here. It
// returns the confirmed bookings overlapping span whose guest declined; the
// new booking replaces them.
func (s *Service) revalidate(ctx context.Context, host models.Host, span interval.Interval) ([]models.Booking, error) {
	windows, err := slots.Expand(host.Windows, span, s.location(host))
	if err != nil {
		return nil, err
	}
	inside := false
	for _, w := range windows {
		if interval.Within(w, span) {
			inside = true
			break
		}
	}
	if !inside {
		return nil, apperror.New(apperror.KindSlotUnavailable, "requested time is outside the host's availability")
	}

	live, err := s.Store.BookingsInRange(ctx, host.ID, span)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	blocking := live
	if s.Resolver != nil {
		blocking = s.Resolver.Blocking(ctx, host, live)
	}
	if !(slots.Filter{Bookings: blocking}).Allows(span) {
		return nil, apperror.ErrSlotUnavailable
	}

	kept := make(map[string]bool, len(blocking))
	for _, b := range blocking {
		kept[b.ID] = true
	}
	var declined []models.Booking
	for _, b := range live {
		if !kept[b.ID] {
			declined = append(declined, b)
		}
	}
	return declined, nil
}

func eventFor(host models.Host, mt *models.MeetingType, b models.Booking) calendar.Event {
	title := "Meeting"
	if mt != nil && mt.Name != "" {
		title = mt.Name
	}
	ev := calendar.Event{
		Summary:     fmt.Sprintf("%s: %s and %s", title, host.Name, b.GuestName),
		Description: b.Notes,
		Start:       b.Start,
		End:         b.End,
		Attendees: []calendar.Attendee{
			{Name: host.Name, Email: host.Email},
			{Name: b.GuestName, Email: b.GuestEmail},
		},
		RequestID: uuid.New().String(),
	}
	return ev
}
