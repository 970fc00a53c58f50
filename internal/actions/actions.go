// Package actions implements the per-intent steps run by the workflow engine.
// Every action reports exactly one user-facing string and records structured
// results in the session scratch.
package actions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/icaroo-oliveira/HermesAI/internal/calendar"
	"github.com/icaroo-oliveira/HermesAI/internal/intent"
	"github.com/icaroo-oliveira/HermesAI/internal/llm"
	"github.com/icaroo-oliveira/HermesAI/internal/mail"
	"github.com/icaroo-oliveira/HermesAI/internal/session"
	"github.com/icaroo-oliveira/HermesAI/internal/websearch"
)

// Action runs one intent against the session state.
type Action interface {
	Run(ctx context.Context, st *session.State) string
}

// Func adapts a function to Action.
type Func func(ctx context.Context, st *session.State) string

func (f Func) Run(ctx context.Context, st *session.State) string { return f(ctx, st) }

// Memory is the slice of the semantic store the converse action needs.
type Memory interface {
	GetContext(ctx context.Context, query string, maxLength int) string
	Store(ctx context.Context, userInput, assistantResponse, contextText string, extra map[string]string) (string, error)
}

// Deps are the collaborators shared by all actions. Nil collaborators make
// the matching actions report that the feature is unavailable.
type Deps struct {
	Reasoner   llm.Reasoner
	Calendar   calendar.Calendar
	Mailer     mail.Mailer
	Searcher   websearch.Searcher
	Memory     Memory
	Location   *time.Location
	MaxContext int
	Now        func() time.Time
	NewID      func() string
	Logger     *zap.Logger
}

func (d *Deps) normalize() {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.MaxContext <= 0 {
		d.MaxContext = 2000
	}
}

func (d *Deps) now() time.Time { return d.Now().In(d.Location) }

// Registry maps every intent in the vocabulary to its action.
func Registry(d Deps) map[intent.Intent]Action {
	d.normalize()
	return map[intent.Intent]Action{
		intent.Schedule:   &Schedule{deps: d},
		intent.ListEvents: &ListEvents{deps: d},
		intent.ReadMail:   &ReadMail{deps: d},
		intent.SendMail:   &SendMail{deps: d},
		intent.WebSearch:  &WebSearch{deps: d},
		intent.Converse:   &Converse{deps: d},
	}
}
