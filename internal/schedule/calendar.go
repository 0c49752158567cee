// Package schedule finds free booking slots against a shared calendar.
package schedule

import (
	"context"
	"time"

	"github.com/avdonin/pitstop/internal/timegrid"
)

// Calendar is the collaborator holding authoritative busy/free events.
// Implementations should fail open on transport errors: log and return an
// empty interval list so the dialog keeps running with "no data".
type Calendar interface {
	// BusyIntervals returns the occupied intervals on the given calendar
	// date, in the date's location.
	BusyIntervals(ctx context.Context, date time.Time) ([]timegrid.Interval, error)

	// CreateEvent writes a confirmed booking to the calendar and returns
	// the platform event ID.
	CreateEvent(ctx context.Context, start, end time.Time, title, description string) (string, error)
}
