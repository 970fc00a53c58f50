package actions

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/icaroo-oliveira/HermesAI/internal/session"
)

// WebSearch looks the user's message up on the web.
type WebSearch struct {
	deps Deps
}

func (a *WebSearch) Run(ctx context.Context, st *session.State) string {
	d := a.deps
	if d.Searcher == nil {
		return msgSearchOff
	}

	query := st.Input
	results, err := d.Searcher.Search(ctx, query)
	var out string
	switch {
	case err != nil:
		d.Logger.Warn("web search failed", zap.Error(err))
		out = fmt.Sprintf("Search failed: %v", err)
	case len(results) == 0:
		out = msgNoResults
	default:
		if len(results) > searchResultLimit {
			results = results[:searchResultLimit]
		}
		parts := make([]string, len(results))
		for i, r := range results {
			parts[i] = r.Title + "\n" + r.URL
		}
		out = strings.Join(parts, "\n\n")
	}

	st.Scratch.WebSearch = &session.WebSearchScratch{Query: query, Results: out}
	return out
}
