package models

import (
	"fmt"
	"time"

	"scheduling-service/internal/interval"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

type Host struct {
	ID         string               `json:"id"`
	Slug       string               `json:"slug"`
	ExternalID string               `json:"external_id,omitempty"`
	Name       string               `json:"name"`
	Email      string               `json:"email"`
	Timezone   string               `json:"timezone,omitempty"`
	Plan       Plan                 `json:"plan"`
	Windows    []AvailabilityWindow `json:"availability"`
	Accounts   []CalendarAccount    `json:"calendar_accounts,omitempty"`
}

// DefaultAccount returns the account flagged default, or the first one.
func (h Host) DefaultAccount() (CalendarAccount, bool) {
	for _, a := range h.Accounts {
		if a.IsDefault {
			return a, true
		}
	}
	if len(h.Accounts) > 0 {
		return h.Accounts[0], true
	}
	return CalendarAccount{}, false
}

// Location resolves the host's timezone, falling back to def.
func (h Host) Location(def *time.Location) *time.Location {
	if h.Timezone == "" {
		return def
	}
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return def
	}
	return loc
}

// CalendarAccount is a connected external calendar. Token is opaque JSON
// credential material owned by the calendar integration.
type CalendarAccount struct {
	ID         string `json:"id"`
	HostID     string `json:"host_id"`
	Provider   string `json:"provider"`
	Email      string `json:"email,omitempty"`
	CalendarID string `json:"calendar_id"`
	Token      []byte `json:"-"`
	IsDefault  bool   `json:"is_default"`
}

type AvailabilityWindow struct {
	Key   string    `json:"key"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// Recurrence is an optional RRULE; Start/End then describe the first occurrence.
	Recurrence string `json:"recurrence,omitempty"`
}

func (w AvailabilityWindow) Span() interval.Interval {
	return interval.New(w.Start, w.End)
}

func (w AvailabilityWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window %q: start and end required", w.Key)
	}
	if !w.Start.Before(w.End) {
		return fmt.Errorf("window %q: start must be before end", w.Key)
	}
	return nil
}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type Booking struct {
	ID                  string        `json:"id"`
	HostID              string        `json:"host_id"`
	MeetingTypeID       string        `json:"meeting_type_id,omitempty"`
	Start               time.Time     `json:"start"`
	End                 time.Time     `json:"end"`
	GuestName           string        `json:"guest_name"`
	GuestEmail          string        `json:"guest_email"`
	ExternalEventID     string        `json:"external_event_id,omitempty"`
	ExternalMeetingLink string        `json:"external_meeting_link,omitempty"`
	Status              BookingStatus `json:"status"`
	Notes               string        `json:"notes,omitempty"`
	CreatedAt           time.Time     `json:"created_at,omitempty"`
}

func (b Booking) Span() interval.Interval {
	return interval.New(b.Start, b.End)
}

func (b Booking) Active() bool {
	return b.Status != BookingCancelled
}

// MeetingDurations is the set of allowed meeting lengths in minutes.
var MeetingDurations = []int{15, 30, 45, 60, 90}

func ValidDuration(minutes int) bool {
	for _, d := range MeetingDurations {
		if d == minutes {
			return true
		}
	}
	return false
}

type MeetingType struct {
	ID              string `json:"id"`
	HostID          string `json:"host_id"`
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	DurationMinutes int    `json:"duration_minutes"`
	IsDefault       bool   `json:"is_default"`
}

// Slot is a derived candidate booking interval; never persisted.
type Slot = interval.Interval
