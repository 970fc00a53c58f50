package llm

import (
	"context"
	"fmt"

	"github.com/cexll/agentsdk-go/pkg/model"

	"github.com/icaroo-oliveira/HermesAI/internal/config"
)

// NewReasoner builds the reasoner selected by cfg.Provider.Type.
func NewReasoner(ctx context.Context, cfg *config.Config) (Reasoner, error) {
	temperature := cfg.Agent.Temperature

	switch cfg.Provider.Type {
	case "gemini":
		return NewGeminiReasoner(ctx, cfg.Provider.APIKey, cfg.Agent.Model, cfg.ProviderTimeout())
	case "openai":
		return &ModelReasoner{
			Provider: &model.OpenAIProvider{
				APIKey:    cfg.Provider.APIKey,
				BaseURL:   cfg.Provider.BaseURL,
				ModelName: cfg.Agent.Model,
				MaxTokens: cfg.Agent.MaxTokens,
			},
			MaxTokens:   cfg.Agent.MaxTokens,
			Temperature: &temperature,
			Timeout:     cfg.ProviderTimeout(),
		}, nil
	case "", "anthropic":
		return &ModelReasoner{
			Provider: &model.AnthropicProvider{
				APIKey:    cfg.Provider.APIKey,
				BaseURL:   cfg.Provider.BaseURL,
				ModelName: cfg.Agent.Model,
				MaxTokens: cfg.Agent.MaxTokens,
			},
			MaxTokens:   cfg.Agent.MaxTokens,
			Temperature: &temperature,
			Timeout:     cfg.ProviderTimeout(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Provider.Type)
	}
}
