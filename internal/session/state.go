// Package session holds per-conversation workflow state and the store that
// serializes turns on it.
package session

import (
	"time"

	"github.com/icaroo-oliveira/HermesAI/internal/intent"
	"github.com/icaroo-oliveira/HermesAI/internal/llm"
)

// State is the mutable record shared by every action of a session. Only the
// workflow engine touches Pending and Current.
type State struct {
	ID          string
	History     []llm.Message
	Pending     []intent.Intent
	Current     intent.Intent
	Input       string
	Scratch     Scratch
	TurnOutputs []string
	LastOutput  string
	UpdatedAt   time.Time
}

// Scratch carries structured data produced by one action for later ones.
type Scratch struct {
	Agenda    *AgendaScratch
	Email     *EmailScratch
	WebSearch *WebSearchScratch
}

type AgendaScratch struct {
	Title       string
	Start       time.Time
	Duration    time.Duration
	Link        string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

type EmailScratch struct {
	Emails  []EmailSummary
	Pending *Draft
}

type EmailSummary struct {
	Subject string
	Sender  string
	ID      string
}

// Draft is an outgoing mail awaiting explicit confirmation.
type Draft struct {
	ID        string
	To        string
	Subject   string
	Body      string
	Cc        []string
	Bcc       []string
	CreatedAt time.Time
}

type WebSearchScratch struct {
	Query   string
	Results string
}

// NewState returns the default state for a fresh session.
func NewState(id string) *State {
	return &State{ID: id, Current: intent.None}
}

// BeginTurn resets the per-turn fields and records the new input.
func (s *State) BeginTurn(input string) {
	s.Input = input
	s.Pending = nil
	s.Current = intent.None
	s.TurnOutputs = nil
}

// EndTurn clears the queue and turn outputs once the reply is assembled.
func (s *State) EndTurn() {
	s.Pending = nil
	s.Current = intent.None
	s.TurnOutputs = nil
}

func (s *State) AppendHistory(role, content string) {
	s.History = append(s.History, llm.Message{Role: role, Content: content})
}

// PendingDraft returns the draft awaiting confirmation, if any.
func (s *State) PendingDraft() *Draft {
	if s.Scratch.Email == nil {
		return nil
	}
	return s.Scratch.Email.Pending
}

// ClearDraft drops the pending draft.
func (s *State) ClearDraft() {
	if s.Scratch.Email != nil {
		s.Scratch.Email.Pending = nil
	}
}
