package actions

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/icaroo-oliveira/HermesAI/internal/calendar"
	"github.com/icaroo-oliveira/HermesAI/internal/llm"
	"github.com/icaroo-oliveira/HermesAI/internal/mail"
	"github.com/icaroo-oliveira/HermesAI/internal/websearch"
)

type scriptedReasoner struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (r *scriptedReasoner) Ask(_ context.Context, prompt string, _ []llm.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	return r.reply, r.err
}

type fakeCalendar struct {
	events  []calendar.Event
	listErr error
	created []calendar.Event
	queries [][2]time.Time
}

func (c *fakeCalendar) CreateEvent(_ context.Context, title string, start time.Time, duration time.Duration) (string, error) {
	ev := calendar.Event{ID: title, Title: title, Start: start, End: start.Add(duration)}
	c.created = append(c.created, ev)
	c.events = append(c.events, ev)
	return "https://calendar.example/" + strings.ReplaceAll(title, " ", "-"), nil
}

// ListEvents returns events overlapping [start, end).
func (c *fakeCalendar) ListEvents(_ context.Context, start, end time.Time) ([]calendar.Event, error) {
	c.queries = append(c.queries, [2]time.Time{start, end})
	if c.listErr != nil {
		return nil, c.listErr
	}
	var out []calendar.Event
	for _, ev := range c.events {
		if ev.Start.Before(end) && ev.End.After(start) {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakeMailer struct {
	inbox []mail.Message
	err   error
	sent  []mail.Draft
}

func (m *fakeMailer) ListInbox(_ context.Context, max int) ([]mail.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.inbox) > max {
		return m.inbox[:max], nil
	}
	return m.inbox, nil
}

func (m *fakeMailer) Send(_ context.Context, d mail.Draft) (mail.SendResult, error) {
	if m.err != nil {
		return mail.SendResult{}, m.err
	}
	m.sent = append(m.sent, d)
	return mail.SendResult{ID: "sent-1"}, nil
}

type fakeSearcher struct {
	results []websearch.Result
	err     error
	queries []string
}

func (s *fakeSearcher) Search(_ context.Context, query string) ([]websearch.Result, error) {
	s.queries = append(s.queries, query)
	return s.results, s.err
}

type storedTurn struct {
	user, assistant, context string
	extra                    map[string]string
}

type fakeMemory struct {
	context  string
	storeErr error
	stored   []storedTurn
	queries  []string
}

func (m *fakeMemory) GetContext(_ context.Context, query string, _ int) string {
	m.queries = append(m.queries, query)
	return m.context
}

func (m *fakeMemory) Store(_ context.Context, u, a, c string, extra map[string]string) (string, error) {
	if m.storeErr != nil {
		return "", m.storeErr
	}
	m.stored = append(m.stored, storedTurn{u, a, c, extra})
	return "id", nil
}
