// Package interval holds the time-span value type shared by slot generation,
// conflict filtering and booking validation. All comparisons are on instants.
package interval

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day identifier format used on the wire.
const DateLayout = "2006-01-02"

// Interval is a half-open span [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func New(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// Valid reports whether the interval is non-empty.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// Overlaps reports whether a and b share any instant. Touching endpoints do
// not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// Contains is closed-interval membership: both endpoints count.
func Contains(i Interval, t time.Time) bool {
	return !t.Before(i.Start) && !t.After(i.End)
}

// Within reports whether inner lies entirely inside outer.
func Within(outer, inner Interval) bool {
	return !inner.Start.Before(outer.Start) && !inner.End.After(outer.End)
}

// Clamp truncates w to [lo, hi]. ok is false when nothing is left, and the
// caller must skip the window.
func Clamp(w Interval, lo, hi time.Time) (Interval, bool) {
	out := w
	if out.Start.Before(lo) {
		out.Start = lo
	}
	if out.End.After(hi) {
		out.End = hi
	}
	return out, out.Valid()
}

// DayBounds returns midnight of the calendar day containing t (in loc) and the
// following midnight.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Day returns the whole calendar day containing t as an interval.
func Day(t time.Time, loc *time.Location) Interval {
	s, e := DayBounds(t, loc)
	return Interval{Start: s, End: e}
}

// ParseDate parses a YYYY-MM-DD identifier as local midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
