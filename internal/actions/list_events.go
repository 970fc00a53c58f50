package actions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/icaroo-oliveira/HermesAI/internal/calendar"
	"github.com/icaroo-oliveira/HermesAI/internal/llm"
	"github.com/icaroo-oliveira/HermesAI/internal/session"
)

// ListEvents reports the commitments in a requested period.
type ListEvents struct {
	deps Deps
}

type periodFields struct {
	DataInicial string `json:"data_inicial"`
	DataFinal   string `json:"data_final"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

func (a *ListEvents) Run(ctx context.Context, st *session.State) string {
	d := a.deps
	if d.Calendar == nil {
		return msgCalendarOff
	}

	start, end, ok := a.period(ctx, st)
	if !ok {
		return msgPeriodClarify
	}

	if st.Scratch.Agenda == nil {
		st.Scratch.Agenda = &session.AgendaScratch{}
	}
	st.Scratch.Agenda.PeriodStart = start
	st.Scratch.Agenda.PeriodEnd = end

	events, err := d.Calendar.ListEvents(ctx, start, end)
	if err != nil {
		d.Logger.Warn("list events failed", zap.Error(err))
		return fmt.Sprintf("Failed to fetch your commitments: %v", err)
	}
	return FormatEvents(events, start, end)
}

// period resolves the requested interval. A missing start defaults to now
// and a missing end to start plus one day. Extraction failures fall back to
// the defaults; an unparseable date is reported back to the user.
func (a *ListEvents) period(ctx context.Context, st *session.State) (time.Time, time.Time, bool) {
	d := a.deps
	now := d.now()

	var fields periodFields
	if d.Reasoner != nil {
		text := SubstituteDates(st.Input, now)
		raw, err := d.Reasoner.Ask(ctx, periodPrompt(text, now), st.History)
		if err != nil {
			d.Logger.Warn("period extraction failed", zap.Error(err))
		} else if err := llm.ExtractJSON(raw, &fields); err != nil {
			d.Logger.Debug("no period in model output", zap.Error(err))
		}
	}

	start := now
	if s := firstNonEmpty(fields.DataInicial, fields.Start); s != "" {
		t, err := ParseTime(s, d.Location)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		start = t
	}
	end := start.Add(24 * time.Hour)
	if s := firstNonEmpty(fields.DataFinal, fields.End); s != "" {
		t, err := ParseTime(s, d.Location)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		end = t
	}
	return start, end, true
}

// FormatEvents renders the commitments reply for [start, end).
func FormatEvents(events []calendar.Event, start, end time.Time) string {
	if len(events) == 0 {
		return msgNoCommitments
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your commitments from %s to %s:", start.Format("02/01/2006"), end.Format("02/01/2006"))
	for _, ev := range events {
		title := ev.Title
		if strings.TrimSpace(title) == "" {
			title = untitled
		}
		fmt.Fprintf(&sb, "\n- %s at %s", title, eventTime(ev))
	}
	return sb.String()
}

func eventTime(ev calendar.Event) string {
	if ev.AllDay {
		return ev.Start.Format("02/01/2006") + " (all day)"
	}
	return ev.Start.Format("02/01/2006 15:04")
}
