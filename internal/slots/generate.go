// Package slots expands availability windows into fixed-length candidate
// slots and filters them against bookings, external busy time and the clock.
package slots

import (
	"iter"
	"time"

	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
)

// DefaultLength is used when a caller does not ask for a specific duration.
const DefaultLength = 30 * time.Minute

// Relevant selects the windows that touch day: the window starts inside it,
// ends inside it, or spans it entirely. Membership is closed on both ends.
func Relevant(windows []interval.Interval, day interval.Interval) []interval.Interval {
	var out []interval.Interval
	for _, w := range windows {
		startsIn := interval.Contains(day, w.Start)
		endsIn := interval.Contains(day, w.End)
		spans := !w.Start.After(day.Start) && !w.End.Before(day.End)
		if startsIn || endsIn || spans {
			out = append(out, w)
		}
	}
	return out
}

// Generate yields back-to-back slots of exactly length, cut from each relevant
// window clamped to day. Each window starts its own sequence at its clamped
// start, and no partial slot is produced at the end of a window. Windows are
// independent, so overlapping input windows can yield duplicate candidates.
//
// The returned sequence is lazy and can be ranged over more than once.
func Generate(windows []interval.Interval, day interval.Interval, length time.Duration) iter.Seq[models.Slot] {
	return func(yield func(models.Slot) bool) {
		if length <= 0 {
			return
		}
		for _, w := range Relevant(windows, day) {
			clamped, ok := interval.Clamp(w, day.Start, day.End)
			if !ok {
				continue
			}
			for s := clamped.Start; !s.Add(length).After(clamped.End); s = s.Add(length) {
				if !yield(interval.New(s, s.Add(length))) {
					return
				}
			}
		}
	}
}
