package slots

import (
	"iter"
	"time"

	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
)

// Filter rejects candidates that collide with an active booking or a busy
// interval, and, when Now is set, candidates that start before it.
// Re-validating a single requested slot leaves Now zero.
type Filter struct {
	Bookings []models.Booking
	Busy     []interval.Interval
	Now      time.Time
}

func (f Filter) Allows(s models.Slot) bool {
	if !f.Now.IsZero() && s.Start.Before(f.Now) {
		return false
	}
	for _, b := range f.Bookings {
		if b.Active() && interval.Overlaps(s, b.Span()) {
			return false
		}
	}
	for _, busy := range f.Busy {
		if interval.Overlaps(s, busy) {
			return false
		}
	}
	return true
}

// Enumerate returns every surviving candidate in sequence order.
func (f Filter) Enumerate(candidates iter.Seq[models.Slot]) []models.Slot {
	var out []models.Slot
	for s := range candidates {
		if f.Allows(s) {
			out = append(out, s)
		}
	}
	return out
}

// Probe stops at the first surviving candidate.
func (f Filter) Probe(candidates iter.Seq[models.Slot]) bool {
	for s := range candidates {
		if f.Allows(s) {
			return true
		}
	}
	return false
}
