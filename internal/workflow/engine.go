// Package workflow drives a turn: classify the message, run each queued
// intent in order against the session state and assemble the reply.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/icaroo-oliveira/HermesAI/internal/actions"
	"github.com/icaroo-oliveira/HermesAI/internal/intent"
	"github.com/icaroo-oliveira/HermesAI/internal/llm"
	"github.com/icaroo-oliveira/HermesAI/internal/mail"
	"github.com/icaroo-oliveira/HermesAI/internal/session"
)

var (
	ErrNoDraft       = errors.New("no pending draft")
	ErrDraftMismatch = errors.New("draft id does not match the pending draft")
)

const (
	msgEmptyTurn      = "I'm not sure what you'd like me to do. Could you rephrase?"
	msgClassifyFailed = "Sorry, I couldn't understand your message right now. Please try again."
	msgNoDraft        = "There is no email waiting for confirmation."
	msgDraftMismatch  = "That email draft is no longer pending."
	msgDraftCancelled = "Email draft discarded."
	msgMailOff        = "Email is not configured."
)

// State is a step of the turn state machine.
type State int

const (
	AwaitingClassification State = iota
	Dispatching
	Executing
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingClassification:
		return "awaiting_classification"
	case Dispatching:
		return "dispatching"
	case Executing:
		return "executing"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Classifier turns a message into an ordered intent queue.
type Classifier interface {
	Classify(ctx context.Context, text string, history []llm.Message) ([]intent.Intent, error)
}

// Reply is the outcome of a turn or a draft decision.
type Reply struct {
	Text    string
	DraftID string
	Intents []intent.Intent
}

// TransitionFunc observes state machine steps. in is set while executing.
type TransitionFunc func(sessionID string, from, to State, in intent.Intent)

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithActionTimeout bounds each action. Zero disables the bound.
func WithActionTimeout(d time.Duration) Option {
	return func(e *Engine) { e.actionTimeout = d }
}

// WithMailTimeout bounds delivery of confirmed drafts.
func WithMailTimeout(d time.Duration) Option {
	return func(e *Engine) { e.mailTimeout = d }
}

func WithTransitionHook(fn TransitionFunc) Option {
	return func(e *Engine) { e.onTransition = fn }
}

// Engine runs turns. It is safe for concurrent use across sessions; turns of
// the same session are serialized by the session store.
type Engine struct {
	sessions      session.Store
	classifier    Classifier
	actions       map[intent.Intent]actions.Action
	mailer        mail.Mailer
	actionTimeout time.Duration
	mailTimeout   time.Duration
	onTransition  TransitionFunc
	logger        *zap.Logger
}

func New(sessions session.Store, classifier Classifier, acts map[intent.Intent]actions.Action, mailer mail.Mailer, opts ...Option) *Engine {
	e := &Engine{
		sessions:   sessions,
		classifier: classifier,
		actions:    acts,
		mailer:     mailer,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sessions exposes the store, e.g. for periodic sweeping.
func (e *Engine) Sessions() session.Store { return e.sessions }

func (e *Engine) transition(sessionID string, from, to State, in intent.Intent) State {
	if e.onTransition != nil {
		e.onTransition(sessionID, from, to, in)
	}
	return to
}

// HandleMessage runs one turn for sessionID.
func (e *Engine) HandleMessage(ctx context.Context, sessionID, text string) (Reply, error) {
	unlock := e.sessions.Lock(sessionID)
	defer unlock()

	st := e.sessions.Get(sessionID)
	st.BeginTurn(text)
	st.AppendHistory(llm.RoleUser, text)
	defer func() {
		st.EndTurn()
		e.sessions.Put(st)
	}()

	log := e.logger.With(zap.String("session", sessionID))
	state := AwaitingClassification

	intents, err := e.classifier.Classify(ctx, text, st.History)
	if err != nil {
		log.Warn("classification failed", zap.Error(err))
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		st.TurnOutputs = append(st.TurnOutputs, msgClassifyFailed)
		st.LastOutput = msgClassifyFailed
		st.AppendHistory(llm.RoleAssistant, msgClassifyFailed)
		intents = nil
	}
	st.Pending = append(st.Pending[:0], intents...)
	log.Debug("classified", zap.Stringers("intents", intents))

	for state != Done {
		switch state {
		case AwaitingClassification, Executing:
			state = e.transition(sessionID, state, Dispatching, intent.None)
		case Dispatching:
			if err := ctx.Err(); err != nil {
				return Reply{}, err
			}
			if len(st.Pending) == 0 {
				state = e.transition(sessionID, state, Done, intent.None)
				continue
			}
			st.Current, st.Pending = st.Pending[0], st.Pending[1:]
			state = e.transition(sessionID, state, Executing, st.Current)

			out := e.execute(ctx, st.Current, st)
			st.TurnOutputs = append(st.TurnOutputs, out)
			st.LastOutput = out
			st.AppendHistory(llm.RoleAssistant, out)
		}
	}

	reply := Reply{Text: Aggregate(st.TurnOutputs, st.LastOutput), Intents: intents}
	if reply.Text == "" {
		reply.Text = msgEmptyTurn
	}
	if d := st.PendingDraft(); d != nil {
		reply.DraftID = d.ID
	}
	return reply, nil
}

func (e *Engine) execute(ctx context.Context, in intent.Intent, st *session.State) (out string) {
	act, ok := e.actions[in]
	if !ok {
		return fmt.Sprintf("I can't handle %s requests yet.", in)
	}
	if e.actionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.actionTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("action panicked",
				zap.String("session", st.ID),
				zap.Stringer("intent", in),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			out = fmt.Sprintf("Something went wrong while handling %s. Please try again.", in)
		}
	}()

	start := time.Now()
	out = act.Run(ctx, st)
	e.logger.Debug("action finished",
		zap.String("session", st.ID),
		zap.Stringer("intent", in),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out
}

// ConfirmDraft sends the pending draft of sessionID. An empty draftID
// confirms whatever draft is pending.
func (e *Engine) ConfirmDraft(ctx context.Context, sessionID, draftID string) (Reply, error) {
	unlock := e.sessions.Lock(sessionID)
	defer unlock()

	st := e.sessions.Get(sessionID)
	draft, reply, err := pendingDraft(st, draftID)
	if err != nil {
		return reply, err
	}
	if e.mailer == nil {
		return Reply{Text: msgMailOff, DraftID: draft.ID}, nil
	}

	sendCtx := ctx
	if e.mailTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, e.mailTimeout)
		defer cancel()
	}
	res, err := e.mailer.Send(sendCtx, actions.ToMail(draft))
	if err != nil {
		e.logger.Warn("send draft failed", zap.String("session", sessionID), zap.Error(err))
		return Reply{Text: fmt.Sprintf("Failed to send the email: %v", err), DraftID: draft.ID}, nil
	}
	e.logger.Info("draft sent", zap.String("session", sessionID), zap.String("message_id", res.ID))

	text := fmt.Sprintf("Email sent to %s.", draft.To)
	e.finishDraft(st, text)
	return Reply{Text: text}, nil
}

// CancelDraft discards the pending draft of sessionID.
func (e *Engine) CancelDraft(_ context.Context, sessionID, draftID string) (Reply, error) {
	unlock := e.sessions.Lock(sessionID)
	defer unlock()

	st := e.sessions.Get(sessionID)
	if _, reply, err := pendingDraft(st, draftID); err != nil {
		return reply, err
	}
	e.finishDraft(st, msgDraftCancelled)
	return Reply{Text: msgDraftCancelled}, nil
}

func (e *Engine) finishDraft(st *session.State, text string) {
	st.ClearDraft()
	st.LastOutput = text
	st.AppendHistory(llm.RoleAssistant, text)
	e.sessions.Put(st)
}

func pendingDraft(st *session.State, draftID string) (*session.Draft, Reply, error) {
	draft := st.PendingDraft()
	if draft == nil {
		return nil, Reply{Text: msgNoDraft}, ErrNoDraft
	}
	if draftID != "" && draft.ID != draftID {
		return nil, Reply{Text: msgDraftMismatch, DraftID: draft.ID}, ErrDraftMismatch
	}
	return draft, Reply{}, nil
}
