package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/avdonin/pitstop/internal/timegrid"
)

// Default search parameters, matching the shop's opening hours.
const (
	DefaultOpenOffset   = 10 * time.Hour
	DefaultCloseOffset  = 22 * time.Hour
	DefaultMaxDates     = 7
	DefaultHorizonDays  = 30
	DefaultMaxDaysAhead = 60
)

// ErrNoSlot is returned when no free slot exists within the search bound.
var ErrNoSlot = errors.New("schedule: no free slot within horizon")

// Finder enumerates free booking slots for a date against the calendar
// collaborator. The busy-interval snapshot is read once per call and is not
// re-validated at commit time; the gap between "shown as free" and "event
// created" is accepted.
type Finder struct {
	cal      Calendar
	loc      *time.Location
	open     time.Duration
	close    time.Duration
	grid     time.Duration
	step     time.Duration
	maxAhead int
	now      func() time.Time
}

// FinderOpts holds parameters for creating a Finder.
type FinderOpts struct {
	Calendar     Calendar
	Location     *time.Location // defaults to UTC+4
	OpenOffset   time.Duration  // from midnight; defaults to 10h
	CloseOffset  time.Duration  // from midnight; defaults to 22h
	GridStep     time.Duration  // defaults to timegrid.DefaultGridStep
	SlotStep     time.Duration  // defaults to timegrid.DefaultSlotStep
	MaxDaysAhead int            // bound for FirstSlotFrom; defaults to 60
	Now          func() time.Time
}

// NewFinder creates a Finder.
func NewFinder(opts FinderOpts) (*Finder, error) {
	if opts.Calendar == nil {
		return nil, fmt.Errorf("schedule: finder: calendar is required")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.FixedZone("UTC+4", 4*3600)
	}
	open := opts.OpenOffset
	if open <= 0 {
		open = DefaultOpenOffset
	}
	cl := opts.CloseOffset
	if cl <= 0 {
		cl = DefaultCloseOffset
	}
	if open >= cl {
		return nil, fmt.Errorf("schedule: finder: open offset %v must precede close %v", open, cl)
	}
	grid := opts.GridStep
	if grid <= 0 {
		grid = timegrid.DefaultGridStep
	}
	step := opts.SlotStep
	if step <= 0 {
		step = timegrid.DefaultSlotStep
	}
	ahead := opts.MaxDaysAhead
	if ahead <= 0 {
		ahead = DefaultMaxDaysAhead
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Finder{cal: opts.Calendar, loc: loc, open: open, close: cl, grid: grid, step: step, maxAhead: ahead, now: now}, nil
}

// Location returns the fixed offset all searches run in.
func (f *Finder) Location() *time.Location { return f.loc }

// Now returns the current time in the finder's location.
func (f *Finder) Now() time.Time { return f.now().In(f.loc) }

// FreeSlots returns the free start times for a date, ascending. A slot t is
// kept iff [t, t+duration) fits within the business window and overlaps no
// busy interval. Calendar errors are logged and treated as no busy data.
func (f *Finder) FreeSlots(ctx context.Context, date time.Time, durationHours float64) []time.Time {
	window := timegrid.Window(date.In(f.loc), f.Now(), f.open, f.close)
	if window.Empty() {
		return nil
	}

	busy, err := f.cal.BusyIntervals(ctx, date.In(f.loc))
	if err != nil {
		log.Printf("schedule: busy intervals for %s: %v", date.Format("2006-01-02"), err)
		busy = nil
	}
	sort.SliceStable(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	duration := hoursToDuration(durationHours)
	var slots []time.Time
	for t := range timegrid.Candidates(window, f.grid, f.step) {
		end := t.Add(duration)
		if end.After(window.End) {
			// No later candidate can fit either.
			break
		}
		if free(timegrid.Interval{Start: t, End: end}, busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

// FirstSlotFrom walks forward day by day from startDate and returns the
// first free slot as a [start, end) interval. The walk is bounded by the
// finder's MaxDaysAhead; ErrNoSlot is returned when the bound is exhausted.
func (f *Finder) FirstSlotFrom(ctx context.Context, startDate time.Time, durationHours float64) (timegrid.Interval, error) {
	for i := 0; i < f.maxAhead; i++ {
		date := startDate.AddDate(0, 0, i)
		if slots := f.FreeSlots(ctx, date, durationHours); len(slots) > 0 {
			start := slots[0]
			return timegrid.Interval{Start: start, End: start.Add(hoursToDuration(durationHours))}, nil
		}
	}
	return timegrid.Interval{}, ErrNoSlot
}

// AvailableDates scans up to horizonDays consecutive days starting at
// fromDate and returns, chronologically, the dates that have at least one
// free slot, capped at maxDates.
func (f *Finder) AvailableDates(ctx context.Context, fromDate time.Time, durationHours float64, maxDates, horizonDays int) []time.Time {
	if maxDates <= 0 {
		maxDates = DefaultMaxDates
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	var dates []time.Time
	for i := 0; i < horizonDays && len(dates) < maxDates; i++ {
		date := fromDate.AddDate(0, 0, i)
		if len(f.FreeSlots(ctx, date, durationHours)) > 0 {
			dates = append(dates, date)
		}
	}
	return dates
}

// free reports whether candidate overlaps none of the busy intervals.
func free(candidate timegrid.Interval, busy []timegrid.Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return false
		}
	}
	return true
}

// hoursToDuration converts a fractional hour count (0.5, 1.0, 1.5) to a
// time.Duration.
func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}
