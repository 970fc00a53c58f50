package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGenAIEmbeddingModel = "gemini-embedding-001"

// GenAIEmbedder embeds text through the Google GenAI API.
type GenAIEmbedder struct {
	client      *genai.Client
	model       string
	expectedDim int
	timeout     time.Duration
}

func NewGenAIEmbedder(ctx context.Context, apiKey, model string, dim int, timeout time.Duration) (*GenAIEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("genai embedder: API key is required")
	}
	if strings.TrimSpace(model) == "" || strings.HasPrefix(model, "text-embedding-") {
		model = defaultGenAIEmbeddingModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAIEmbedder{client: client, model: model, expectedDim: dim, timeout: timeout}, nil
}

func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *GenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("genai embed: empty texts")
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil, fmt.Errorf("genai embed: %w at index %d", ErrEmptyText, i)
		}
		contents[i] = genai.NewContentFromText(trimmed, genai.RoleUser)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai embed: got %d embeddings want %d", len(result.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("genai embed: empty vector at index %d", i)
		}
		if e.expectedDim > 0 && len(emb.Values) != e.expectedDim {
			return nil, fmt.Errorf("genai embed: %w at index %d: got %d want %d", ErrDimensionMismatch, i, len(emb.Values), e.expectedDim)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}
