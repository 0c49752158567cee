// Package gcal implements the schedule.Calendar collaborator on the Google
// Calendar v3 API with service-account credentials.
package gcal

import (
	"context"
	"fmt"
	"log"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/avdonin/pitstop/internal/timegrid"
)

// Client talks to a single Google calendar.
type Client struct {
	svc        *calendar.Service
	calendarID string
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	CredentialsFile string // path to the service-account JSON key
	CalendarID      string
}

// New creates a Client.
func New(ctx context.Context, opts ClientOpts) (*Client, error) {
	if opts.CalendarID == "" {
		return nil, fmt.Errorf("gcal: calendar id is required")
	}
	if opts.CredentialsFile == "" {
		return nil, fmt.Errorf("gcal: credentials file is required")
	}
	svc, err := calendar.NewService(ctx,
		option.WithCredentialsFile(opts.CredentialsFile),
		option.WithScopes(calendar.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("gcal: new service: %w", err)
	}
	return &Client{svc: svc, calendarID: opts.CalendarID}, nil
}

// BusyIntervals lists the occupied intervals on a calendar date. Transport
// errors fail open: they are logged and an empty list is returned so slot
// search degrades to "no data" instead of breaking the dialog.
func (c *Client) BusyIntervals(ctx context.Context, date time.Time) ([]timegrid.Interval, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	events, err := c.svc.Events.List(c.calendarID).
		TimeMin(dayStart.Format(time.RFC3339)).
		TimeMax(dayEnd.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		log.Printf("gcal: list events on %s: %v", dayStart.Format("2006-01-02"), err)
		return nil, nil
	}

	var busy []timegrid.Interval
	for _, ev := range events.Items {
		iv, ok := eventInterval(ev, date.Location())
		if !ok {
			continue
		}
		busy = append(busy, iv)
	}
	return busy, nil
}

// CreateEvent inserts a booking event and returns its ID.
func (c *Client) CreateEvent(ctx context.Context, start, end time.Time, title, description string) (string, error) {
	ev := &calendar.Event{
		Summary:     title,
		Description: description,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
	created, err := c.svc.Events.Insert(c.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gcal: insert event: %w", err)
	}
	log.Printf("gcal: event created: %s", created.Id)
	return created.Id, nil
}

// eventInterval converts a calendar event to a busy interval in loc.
// All-day events (date without time) are skipped: the shop books by the
// hour and treats them as annotations, not occupancy.
func eventInterval(ev *calendar.Event, loc *time.Location) (timegrid.Interval, bool) {
	if ev.Start == nil || ev.End == nil || ev.Start.DateTime == "" || ev.End.DateTime == "" {
		return timegrid.Interval{}, false
	}
	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		log.Printf("gcal: bad event start %q: %v", ev.Start.DateTime, err)
		return timegrid.Interval{}, false
	}
	end, err := time.Parse(time.RFC3339, ev.End.DateTime)
	if err != nil {
		log.Printf("gcal: bad event end %q: %v", ev.End.DateTime, err)
		return timegrid.Interval{}, false
	}
	return timegrid.Interval{Start: start.In(loc), End: end.In(loc)}, true
}
