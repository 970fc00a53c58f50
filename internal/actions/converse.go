package actions

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/icaroo-oliveira/HermesAI/internal/session"
)

// Converse answers free-form messages with memory context and records the
// exchange in long-term memory.
type Converse struct {
	deps Deps
}

func (a *Converse) Run(ctx context.Context, st *session.State) string {
	d := a.deps
	if d.Reasoner == nil {
		return msgReasonerOff
	}

	var memoryContext string
	if d.Memory != nil {
		memoryContext = d.Memory.GetContext(ctx, st.Input, d.MaxContext)
	}
	var webResults string
	if ws := st.Scratch.WebSearch; ws != nil {
		webResults = ws.Results
	}

	reply, err := d.Reasoner.Ask(ctx, conversePrompt(st.Input, memoryContext, webResults), st.History)
	if err != nil {
		d.Logger.Warn("converse failed", zap.Error(err))
		return fmt.Sprintf("Sorry, I couldn't come up with an answer right now: %v", err)
	}

	if d.Memory != nil {
		extra := map[string]string{"session": st.ID}
		if _, err := d.Memory.Store(ctx, st.Input, reply, webResults, extra); err != nil {
			d.Logger.Error("store memory failed", zap.String("session", st.ID), zap.Error(err))
		}
	}
	return reply
}
