package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/icaroo-oliveira/HermesAI/internal/config"
)

type eventFields struct {
	Title    string `json:"title"`
	Start    string `json:"start"`
	Duration int    `json:"duration_minutes"`
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    eventFields
		wantErr bool
	}{
		{
			name: "json fence",
			raw:  "Sure!\n```json\n{\"title\": \"Dentist\", \"duration_minutes\": 30}\n```\nDone.",
			want: eventFields{Title: "Dentist", Duration: 30},
		},
		{
			name: "plain fence",
			raw:  "```\n{\"title\": \"Gym\"}\n```",
			want: eventFields{Title: "Gym"},
		},
		{
			name: "bare braces with prose",
			raw:  `Here it is: {"title": "Call", "start": "2025-07-11T15:00:00"} hope it helps`,
			want: eventFields{Title: "Call", Start: "2025-07-11T15:00:00"},
		},
		{
			name: "braces inside strings",
			raw:  `{"title": "a } tricky { title"}`,
			want: eventFields{Title: "a } tricky { title"},
		},
		{
			name: "nested object",
			raw:  `{"title": "x", "meta": {"k": 1}} trailing }`,
			want: eventFields{Title: "x"},
		},
		{
			name:    "no json",
			raw:     "I could not understand the request.",
			wantErr: true,
		},
		{
			name:    "broken json",
			raw:     `{"title": }`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got eventFields
			err := ExtractJSON(tt.raw, &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoJSONSentinel(t *testing.T) {
	var v map[string]any
	assert.ErrorIs(t, ExtractJSON("nothing here", &v), ErrNoJSON)
}

func TestWithHistory(t *testing.T) {
	assert.Equal(t, "prompt", WithHistory("prompt", nil))
	got := WithHistory("prompt", []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})
	assert.Equal(t, "User: hi\nAssistant: hello\n\nprompt", got)
}

type fakeModel struct {
	reply string
	err   error
	got   model.Request
}

func (m *fakeModel) Complete(_ context.Context, req model.Request) (*model.Response, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return &model.Response{Message: model.Message{Role: "assistant", Content: m.reply}}, nil
}

func (m *fakeModel) CompleteStream(ctx context.Context, req model.Request, cb model.StreamHandler) error {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return err
	}
	if cb != nil {
		return cb(model.StreamResult{Final: true, Response: resp})
	}
	return nil
}

func TestModelReasoner_Ask(t *testing.T) {
	fm := &fakeModel{reply: "  SCHEDULE \n"}
	r := &ModelReasoner{
		Provider:  model.ProviderFunc(func(context.Context) (model.Model, error) { return fm, nil }),
		MaxTokens: 128,
	}

	got, err := r.Ask(context.Background(), "classify", []Message{{Role: RoleUser, Content: "book it"}})
	require.NoError(t, err)
	assert.Equal(t, "SCHEDULE", got)
	require.Len(t, fm.got.Messages, 1)
	assert.Equal(t, "user", fm.got.Messages[0].Role)
	assert.Equal(t, "User: book it\n\nclassify", fm.got.Messages[0].Content)
	assert.Equal(t, 128, fm.got.MaxTokens)
}

func TestModelReasoner_Errors(t *testing.T) {
	r := &ModelReasoner{
		Provider: model.ProviderFunc(func(context.Context) (model.Model, error) { return nil, errors.New("no key") }),
	}
	_, err := r.Ask(context.Background(), "p", nil)
	require.Error(t, err)

	fm := &fakeModel{err: errors.New("rate limited")}
	r.Provider = model.ProviderFunc(func(context.Context) (model.Model, error) { return fm, nil })
	_, err = r.Ask(context.Background(), "p", nil)
	require.Error(t, err)
}

func TestCandidateText(t *testing.T) {
	assert.Equal(t, "", candidateText(nil))
	assert.Equal(t, "", candidateText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "Hello "}, {Text: "there "}}},
		}},
	}
	assert.Equal(t, "Hello there", candidateText(resp))
}

func TestNewReasoner(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "k"

	r, err := NewReasoner(context.Background(), cfg)
	require.NoError(t, err)
	mr, ok := r.(*ModelReasoner)
	require.True(t, ok)
	_, ok = mr.Provider.(*model.AnthropicProvider)
	assert.True(t, ok)

	cfg.Provider.Type = "openai"
	r, err = NewReasoner(context.Background(), cfg)
	require.NoError(t, err)
	_, ok = r.(*ModelReasoner).Provider.(*model.OpenAIProvider)
	assert.True(t, ok)

	cfg.Provider.Type = "bogus"
	_, err = NewReasoner(context.Background(), cfg)
	require.Error(t, err)

	cfg.Provider.Type = "gemini"
	cfg.Provider.APIKey = ""
	_, err = NewReasoner(context.Background(), cfg)
	require.Error(t, err)
}
