// Package llm wraps chat-model providers behind the Reasoner port and holds
// the lenient parsing helpers used on model output.
package llm

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation history.
type Message struct {
	Role    string
	Content string
}

// Reasoner answers a prompt given the prior conversation.
type Reasoner interface {
	Ask(ctx context.Context, prompt string, history []Message) (string, error)
}

// ReasonerFunc adapts a function to the Reasoner interface.
type ReasonerFunc func(ctx context.Context, prompt string, history []Message) (string, error)

func (f ReasonerFunc) Ask(ctx context.Context, prompt string, history []Message) (string, error) {
	return f(ctx, prompt, history)
}
