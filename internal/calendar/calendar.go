// Package calendar wraps Google Calendar behind a narrow interface.
package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Event is a calendar entry as seen by the assistant.
type Event struct {
	ID     string
	Title  string
	Start  time.Time
	End    time.Time
	AllDay bool
	Link   string
}

// Calendar is the collaborator used by the schedule and list-events actions.
type Calendar interface {
	CreateEvent(ctx context.Context, title string, start time.Time, duration time.Duration) (string, error)
	ListEvents(ctx context.Context, start, end time.Time) ([]Event, error)
}

// GoogleCalendar talks to the Calendar v3 API.
type GoogleCalendar struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
	timeout    time.Duration
}

// NewGoogleCalendar builds the adapter. Pass option.WithHTTPClient with an
// authenticated client in production.
func NewGoogleCalendar(ctx context.Context, calendarID string, loc *time.Location, timeout time.Duration, opts ...option.ClientOption) (*GoogleCalendar, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &GoogleCalendar{svc: svc, calendarID: calendarID, loc: loc, timeout: timeout}, nil
}

func (g *GoogleCalendar) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout > 0 {
		return context.WithTimeout(ctx, g.timeout)
	}
	return context.WithCancel(ctx)
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, title string, start time.Time, duration time.Duration) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	start = start.In(g.loc)
	end := start.Add(duration)
	zone := g.loc.String()
	ev := &gcal.Event{
		Summary: title,
		Start:   &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: zone},
		End:     &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: zone},
	}
	created, err := g.svc.Events.Insert(g.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return created.HtmlLink, nil
}

func (g *GoogleCalendar) ListEvents(ctx context.Context, start, end time.Time) ([]Event, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.svc.Events.List(g.calendarID).
		TimeMin(start.In(g.loc).Format(time.RFC3339)).
		TimeMax(end.In(g.loc).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		events = append(events, g.convert(item))
	}
	return events, nil
}

func (g *GoogleCalendar) convert(item *gcal.Event) Event {
	ev := Event{ID: item.Id, Title: item.Summary, Link: item.HtmlLink}
	if item.Start != nil {
		ev.Start, ev.AllDay = g.parseWhen(item.Start)
	}
	if item.End != nil {
		ev.End, _ = g.parseWhen(item.End)
	}
	return ev
}

func (g *GoogleCalendar) parseWhen(dt *gcal.EventDateTime) (time.Time, bool) {
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t.In(g.loc), false
		}
	}
	if dt.Date != "" {
		if t, err := time.ParseInLocation("2006-01-02", dt.Date, g.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
