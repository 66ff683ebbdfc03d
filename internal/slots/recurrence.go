package slots

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
)

// ParseRecurrence validates an RRULE anchored at dtstart.
func ParseRecurrence(rule string, dtstart time.Time) (*rrule.RRule, error) {
	rule = strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence %q: %w", rule, err)
	}
	opt.Dtstart = dtstart
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence %q: %w", rule, err)
	}
	return r, nil
}

// Expand turns availability windows into concrete spans that may touch rng.
// Non-recurring windows pass through unchanged. Recurring windows are expanded
// in loc so weekday rules follow the host's wall clock.
func Expand(windows []models.AvailabilityWindow, rng interval.Interval, loc *time.Location) ([]interval.Interval, error) {
	var out []interval.Interval
	for _, w := range windows {
		if w.Recurrence == "" {
			out = append(out, w.Span())
			continue
		}
		length := w.End.Sub(w.Start)
		r, err := ParseRecurrence(w.Recurrence, w.Start.In(loc))
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", w.Key, err)
		}
		// an occurrence starting up to one window length before rng can still reach into it
		for _, start := range r.Between(rng.Start.Add(-length), rng.End, true) {
			out = append(out, interval.New(start, start.Add(length)))
		}
	}
	return out, nil
}
