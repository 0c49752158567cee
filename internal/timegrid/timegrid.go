// Package timegrid provides pure time-interval arithmetic for slot search:
// grid rounding, half-open overlap tests, and candidate start-time
// enumeration within a business-hours window. No I/O.
package timegrid

import (
	"iter"
	"time"
)

// Default grid parameters. Start times are aligned to DefaultGridStep and
// enumerated every DefaultSlotStep within the business window.
const (
	DefaultGridStep = 5 * time.Minute
	DefaultSlotStep = 30 * time.Minute
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether i and o share any instant. Touching endpoints
// do not count: an interval ending exactly when another starts is free.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Empty reports whether the interval contains no instants.
func (i Interval) Empty() bool {
	return !i.Start.Before(i.End)
}

// Duration returns End - Start, or zero for an empty interval.
func (i Interval) Duration() time.Duration {
	if i.Empty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// RoundUp rounds t forward to the next multiple of step within the hour,
// dropping seconds. A timestamp already on the grid is returned unchanged
// (modulo sub-minute truncation), so RoundUp is idempotent. A minute
// overflow rolls over into the next hour.
func RoundUp(t time.Time, step time.Duration) time.Time {
	stepMin := int(step / time.Minute)
	if stepMin <= 0 || stepMin > 60 {
		stepMin = int(DefaultGridStep / time.Minute)
	}
	m := t.Minute()
	rounded := (m / stepMin) * stepMin
	if m%stepMin != 0 {
		rounded += stepMin
	}
	if rounded >= 60 {
		t = t.Add(time.Hour)
		rounded = 0
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), rounded, 0, 0, t.Location())
}

// Window returns the bookable interval for a calendar date: it opens at
// midnight+open or now, whichever is later, and closes at midnight+close.
// The result is empty when now is already past closing time.
func Window(date, now time.Time, open, close time.Duration) Interval {
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	start := midnight.Add(open)
	if now.After(start) {
		start = now
	}
	return Interval{Start: start, End: midnight.Add(close)}
}

// Candidates yields candidate slot start times within w: the first is
// RoundUp(w.Start, grid), each next is step later, and enumeration stops
// strictly before w.End. The sequence is finite and restartable.
func Candidates(w Interval, grid, step time.Duration) iter.Seq[time.Time] {
	if step <= 0 {
		step = DefaultSlotStep
	}
	return func(yield func(time.Time) bool) {
		for t := RoundUp(w.Start, grid); t.Before(w.End); t = t.Add(step) {
			if !yield(t) {
				return
			}
		}
	}
}
