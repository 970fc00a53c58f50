package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cexll/agentsdk-go/pkg/model"
)

// ModelReasoner answers prompts through an agentsdk-go model provider.
type ModelReasoner struct {
	Provider    model.Provider
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

func (r *ModelReasoner) Ask(ctx context.Context, prompt string, history []Message) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	mdl, err := r.Provider.Model(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve model: %w", err)
	}

	resp, err := mdl.Complete(ctx, model.Request{
		Messages: []model.Message{
			{Role: "user", Content: WithHistory(prompt, history)},
		},
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	if resp == nil {
		return "", errors.New("complete: empty response")
	}
	return strings.TrimSpace(resp.Message.TextContent()), nil
}
