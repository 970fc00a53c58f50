package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/icaroo-oliveira/HermesAI/internal/actions"
	"github.com/icaroo-oliveira/HermesAI/internal/calendar"
	"github.com/icaroo-oliveira/HermesAI/internal/config"
	"github.com/icaroo-oliveira/HermesAI/internal/google"
	"github.com/icaroo-oliveira/HermesAI/internal/intent"
	"github.com/icaroo-oliveira/HermesAI/internal/llm"
	"github.com/icaroo-oliveira/HermesAI/internal/mail"
	"github.com/icaroo-oliveira/HermesAI/internal/memory"
	"github.com/icaroo-oliveira/HermesAI/internal/session"
	"github.com/icaroo-oliveira/HermesAI/internal/websearch"
	"github.com/icaroo-oliveira/HermesAI/internal/workflow"
)

// Options overrides collaborators that would otherwise be built from config.
// Tests use it to run the gateway without network access.
type Options struct {
	Reasoner llm.Reasoner
	Embedder memory.Embedder
	Calendar calendar.Calendar
	Mailer   mail.Mailer
	Searcher websearch.Searcher
	Logger   *zap.Logger

	// SkipGoogle leaves calendar and mail unset unless given above.
	SkipGoogle bool

	SignalChan chan os.Signal // for testing signal handling
}

// Assistant is the wired workflow engine with the stores it owns.
type Assistant struct {
	Engine   *workflow.Engine
	Memory   *memory.Store
	Sessions *session.InMemoryStore
	Mailer   mail.Mailer
	Calendar calendar.Calendar
}

// NewAssistant builds every collaborator named by cfg and wires them into a
// workflow engine. Google services are optional: without credentials the
// matching actions answer that the feature is not configured.
func NewAssistant(ctx context.Context, cfg *config.Config, opts Options) (*Assistant, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reasoner := opts.Reasoner
	if reasoner == nil {
		if cfg.Provider.APIKey == "" {
			return nil, errors.New("API key not set. Run 'hermes onboard' or set HERMES_API_KEY / ANTHROPIC_API_KEY")
		}
		r, err := llm.NewReasoner(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create reasoner: %w", err)
		}
		reasoner = r
	}

	embedder := opts.Embedder
	if embedder == nil {
		e, err := memory.NewEmbedder(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		embedder = e
	}

	mem, err := memory.Open(ctx, cfg.Memory.Dir, embedder,
		memory.WithLogger(logger.Named("memory")),
		memory.WithDimension(cfg.Memory.Embedding.Dimension))
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}

	cal, mailer := opts.Calendar, opts.Mailer
	if !opts.SkipGoogle && (cal == nil || mailer == nil) {
		gcal, gmail, err := newGoogleServices(ctx, cfg)
		switch {
		case errors.Is(err, google.ErrNoToken), errors.Is(err, os.ErrNotExist):
			logger.Info("google services disabled; run 'hermes auth google' to enable them")
		case err != nil:
			logger.Warn("google services unavailable", zap.Error(err))
		default:
			if cal == nil {
				cal = gcal
			}
			if mailer == nil {
				mailer = gmail
			}
		}
	}

	searcher := opts.Searcher
	if searcher == nil {
		searcher = websearch.NewDuckDuckGo(cfg.Tools.SearchEndpoint, cfg.ToolsTimeout())
	}

	sessOpts := []session.Option{session.WithMaxHistory(cfg.Sessions.MaxHistory)}
	if ttl := cfg.SessionIdleTTL(); ttl > 0 {
		sessOpts = append(sessOpts, session.WithIdleTTL(ttl))
	}
	sessions := session.NewInMemoryStore(sessOpts...)

	acts := actions.Registry(actions.Deps{
		Reasoner:   reasoner,
		Calendar:   cal,
		Mailer:     mailer,
		Searcher:   searcher,
		Memory:     mem,
		Location:   cfg.Location(),
		MaxContext: cfg.Memory.MaxContext,
		Logger:     logger.Named("actions"),
	})

	engine := workflow.New(sessions, intent.NewClassifier(reasoner), acts, mailer,
		workflow.WithLogger(logger.Named("workflow")),
		workflow.WithActionTimeout(cfg.ActionTimeout()),
		workflow.WithMailTimeout(cfg.ToolsTimeout()),
		workflow.WithTransitionHook(func(sessionID string, from, to workflow.State, in intent.Intent) {
			logger.Debug("transition", zap.String("session", sessionID),
				zap.Stringer("from", from), zap.Stringer("to", to), zap.Stringer("intent", in))
		}),
	)

	return &Assistant{
		Engine:   engine,
		Memory:   mem,
		Sessions: sessions,
		Mailer:   mailer,
		Calendar: cal,
	}, nil
}

func newGoogleServices(ctx context.Context, cfg *config.Config) (calendar.Calendar, mail.Mailer, error) {
	client, err := google.NewHTTPClient(ctx, cfg.Google.CredentialsFile, cfg.Google.TokenFile)
	if err != nil {
		return nil, nil, err
	}
	cal, err := calendar.NewGoogleCalendar(ctx, cfg.Google.CalendarID, cfg.Location(), cfg.ToolsTimeout(), option.WithHTTPClient(client))
	if err != nil {
		return nil, nil, err
	}
	gm, err := mail.NewGmail(ctx, cfg.Google.From, cfg.ToolsTimeout(), option.WithHTTPClient(client))
	if err != nil {
		return nil, nil, err
	}
	return cal, gm, nil
}

func (a *Assistant) Close() error {
	if a.Memory == nil {
		return nil
	}
	return a.Memory.Close()
}
