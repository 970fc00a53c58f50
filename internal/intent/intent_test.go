package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icaroo-oliveira/HermesAI/internal/llm"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []Intent
	}{
		{"single", "SCHEDULE", []Intent{Schedule}},
		{"comma list keeps order", "WEB_SEARCH, SCHEDULE", []Intent{WebSearch, Schedule}},
		{"aliases and noise", "agendar, EMAIL\nblah", []Intent{Schedule, ReadMail}},
		{"lowercase and spaces", "  list_events ,\n\n converse  ", []Intent{ListEvents, Converse}},
		{"unknown only", "I think you want to dance", nil},
		{"empty", "", nil},
		{"duplicates kept", "CONVERSE,CONVERSE", []Intent{Converse, Converse}},
		{"all portuguese", "ENVIAR_EMAIL,LISTAR_EVENTOS,BUSCAR_WEB,CONVERSAR", []Intent{SendMail, ListEvents, WebSearch, Converse}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.raw))
		})
	}
}

func TestParse_OutputAlwaysInVocabulary(t *testing.T) {
	inputs := []string{"SCHEDULE, nope, READ_MAIL", "x\ny\nz", "EMAIL,,,", ",\n,"}
	for _, raw := range inputs {
		for _, in := range Parse(raw) {
			assert.True(t, in.Valid(), "intent %q from %q", in, raw)
		}
	}
}

func TestLookup(t *testing.T) {
	in, ok := Lookup(" buscar_web ")
	require.True(t, ok)
	assert.Equal(t, WebSearch, in)

	_, ok = Lookup("")
	assert.False(t, ok)
	assert.False(t, None.Valid())
	assert.Equal(t, "NONE", None.String())
}

func TestClassifier_Classify(t *testing.T) {
	var gotPrompt string
	var gotHistory []llm.Message
	c := NewClassifier(llm.ReasonerFunc(func(_ context.Context, prompt string, history []llm.Message) (string, error) {
		gotPrompt = prompt
		gotHistory = history
		return "SCHEDULE, WEB_SEARCH", nil
	}))

	history := []llm.Message{{Role: llm.RoleUser, Content: "hi"}}
	got, err := c.Classify(context.Background(), "book a meeting and search news", history)
	require.NoError(t, err)
	assert.Equal(t, []Intent{Schedule, WebSearch}, got)
	assert.True(t, strings.HasSuffix(gotPrompt, "book a meeting and search news\n"))
	assert.Equal(t, history, gotHistory)
}

func TestClassifier_ReasonerError(t *testing.T) {
	c := NewClassifier(llm.ReasonerFunc(func(context.Context, string, []llm.Message) (string, error) {
		return "", errors.New("boom")
	}))
	got, err := c.Classify(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.Nil(t, got)
}
