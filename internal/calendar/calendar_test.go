package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

func newTestCalendar(t *testing.T, h http.HandlerFunc) *GoogleCalendar {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	cal, err := NewGoogleCalendar(context.Background(), "", loc, time.Second,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return cal
}

func TestCreateEvent(t *testing.T) {
	var got gcal.Event
	cal := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(gcal.Event{Id: "ev1", HtmlLink: "https://calendar.example/ev1"})
	})

	start := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	link, err := cal.CreateEvent(context.Background(), "Dentist", start, 45*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://calendar.example/ev1", link)

	assert.Equal(t, "Dentist", got.Summary)
	assert.Equal(t, "2025-03-10T10:00:00-03:00", got.Start.DateTime)
	assert.Equal(t, "2025-03-10T10:45:00-03:00", got.End.DateTime)
	assert.Equal(t, "America/Sao_Paulo", got.Start.TimeZone)
}

func TestListEvents(t *testing.T) {
	cal := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2025-03-10T00:00:00-03:00", q.Get("timeMin"))
		assert.Equal(t, "2025-03-11T00:00:00-03:00", q.Get("timeMax"))
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		_ = json.NewEncoder(w).Encode(gcal.Events{Items: []*gcal.Event{
			{Id: "a", Summary: "Standup", Start: &gcal.EventDateTime{DateTime: "2025-03-10T09:00:00-03:00"}, End: &gcal.EventDateTime{DateTime: "2025-03-10T09:15:00-03:00"}},
			{Id: "b", Summary: "Holiday", Start: &gcal.EventDateTime{Date: "2025-03-10"}, End: &gcal.EventDateTime{Date: "2025-03-11"}},
		}})
	})

	loc, _ := time.LoadLocation("America/Sao_Paulo")
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)
	events, err := cal.ListEvents(context.Background(), start, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "Standup", events[0].Title)
	assert.Equal(t, 9, events[0].Start.Hour())
	assert.False(t, events[0].AllDay)
	assert.Equal(t, 15*time.Minute, events[0].End.Sub(events[0].Start))
	assert.True(t, events[1].AllDay)
}

func TestListEvents_APIError(t *testing.T) {
	cal := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	})
	_, err := cal.ListEvents(context.Background(), time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list events")
}
