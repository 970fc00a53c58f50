package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/icaroo-oliveira/HermesAI/internal/llm"
	"github.com/icaroo-oliveira/HermesAI/internal/session"
)

// Schedule creates a calendar event unless the slot is already taken.
type Schedule struct {
	deps Deps
}

// eventFields accepts both current and legacy extraction keys.
type eventFields struct {
	Title             string      `json:"title"`
	Titulo            string      `json:"titulo"`
	Start             string      `json:"start"`
	DataHoraInicioStr string      `json:"data_hora_inicio_str"`
	DataInicial       string      `json:"data_inicial"`
	DurationMinutes   flexMinutes `json:"duration_minutes"`
	DuracaoMinutos    flexMinutes `json:"duracao_minutos"`
}

func (f eventFields) title() string {
	return firstNonEmpty(f.Title, f.Titulo, defaultTitle)
}

func (f eventFields) start() string {
	return firstNonEmpty(f.Start, f.DataHoraInicioStr, f.DataInicial)
}

func (f eventFields) duration() time.Duration {
	minutes := f.DurationMinutes.value
	if minutes <= 0 {
		minutes = f.DuracaoMinutos.value
	}
	if minutes <= 0 {
		minutes = defaultDurationMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// flexMinutes decodes a number or a numeric string.
type flexMinutes struct {
	value int
}

func (m *flexMinutes) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		m.value = int(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		m.value = n
	}
	return nil
}

func (a *Schedule) Run(ctx context.Context, st *session.State) string {
	d := a.deps
	if d.Calendar == nil {
		return msgCalendarOff
	}
	if d.Reasoner == nil {
		return msgReasonerOff
	}

	now := d.now()
	text := SubstituteDates(st.Input, now)
	raw, err := d.Reasoner.Ask(ctx, schedulePrompt(text, now), st.History)
	if err != nil {
		d.Logger.Warn("schedule extraction failed", zap.Error(err))
		return fmt.Sprintf("%s (%v)", msgScheduleClarify, err)
	}

	var fields eventFields
	if err := llm.ExtractJSON(raw, &fields); err != nil || fields.start() == "" {
		return msgScheduleClarify
	}
	start, err := ParseTime(fields.start(), d.Location)
	if err != nil {
		return fmt.Sprintf("%s (%v)", msgScheduleClarify, err)
	}

	agenda := &session.AgendaScratch{
		Title:    fields.title(),
		Start:    start,
		Duration: fields.duration(),
	}
	st.Scratch.Agenda = agenda

	existing, err := d.Calendar.ListEvents(ctx, start, start.Add(agenda.Duration))
	if err != nil {
		d.Logger.Warn("conflict check failed", zap.Error(err))
		return fmt.Sprintf("I couldn't check your calendar for conflicts: %v", err)
	}
	if len(existing) > 0 {
		return msgConflict
	}

	link, err := d.Calendar.CreateEvent(ctx, agenda.Title, start, agenda.Duration)
	if err != nil {
		d.Logger.Warn("create event failed", zap.Error(err))
		return fmt.Sprintf("Failed to create the event: %v", err)
	}
	agenda.Link = link
	return fmt.Sprintf("Event '%s' created successfully! Link: %s", agenda.Title, link)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
