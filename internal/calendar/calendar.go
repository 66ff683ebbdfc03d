// Package calendar defines the external calendar collaborator consumed by
// availability resolution and booking.
package calendar

import (
	"context"
	"time"

	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
)

type AttendeeStatus string

const (
	StatusAccepted    AttendeeStatus = "accepted"
	StatusDeclined    AttendeeStatus = "declined"
	StatusTentative   AttendeeStatus = "tentative"
	StatusNeedsAction AttendeeStatus = "needsAction"
)

type Attendee struct {
	Name  string
	Email string
}

type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []Attendee
	// RequestID keys conference creation so a retried insert does not mint a
	// second meeting link.
	RequestID string
}

type CreatedEvent struct {
	EventID     string
	MeetingLink string
}

type Provider interface {
	BusyIntervals(ctx context.Context, acc models.CalendarAccount, rng interval.Interval) ([]interval.Interval, error)
	CreateEvent(ctx context.Context, acc models.CalendarAccount, ev Event) (CreatedEvent, error)
	DeleteEvent(ctx context.Context, acc models.CalendarAccount, eventID string) error
	AttendeeStatus(ctx context.Context, acc models.CalendarAccount, eventID, email string) (AttendeeStatus, error)
}
