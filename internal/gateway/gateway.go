package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/icaroo-oliveira/HermesAI/internal/bus"
	"github.com/icaroo-oliveira/HermesAI/internal/channel"
	"github.com/icaroo-oliveira/HermesAI/internal/config"
	"github.com/icaroo-oliveira/HermesAI/internal/cron"
	"github.com/icaroo-oliveira/HermesAI/internal/workflow"
)

const (
	msgTurnFailed = "Sorry, I encountered an error processing your message."

	sweepJobName = "__internal_sessions_sweep"
	sweepJobMsg  = "__internal:sessions:sweep"
)

// TurnHandler is the part of the workflow engine the gateway drives.
type TurnHandler interface {
	HandleMessage(ctx context.Context, sessionID, text string) (workflow.Reply, error)
	ConfirmDraft(ctx context.Context, sessionID, draftID string) (workflow.Reply, error)
	CancelDraft(ctx context.Context, sessionID, draftID string) (workflow.Reply, error)
}

type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	assistant  *Assistant
	engine     TurnHandler
	channels   *channel.ChannelManager
	cron       *cron.Service
	logger     *zap.Logger
	signalChan chan os.Signal // for testing
	loopDone   chan struct{}
	jobCtx     context.Context
}

// New creates a Gateway with default options
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Gateway, error) {
	return NewWithOptions(ctx, cfg, Options{Logger: logger})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(ctx context.Context, cfg *config.Config, opts Options) (*Gateway, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		cfg:        cfg,
		logger:     logger.Named("gateway"),
		signalChan: opts.SignalChan,
	}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	assistant, err := NewAssistant(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	g.assistant = assistant
	g.engine = assistant.Engine

	cronStorePath := filepath.Join(config.ConfigDir(), "data", "cron", "jobs.json")
	g.cron = cron.NewService(cronStorePath, logger.Named("cron"))
	g.cron.OnJob = g.runJob

	chMgr, err := channel.NewChannelManager(cfg.Channels, cfg.Gateway, g.bus, logger)
	if err != nil {
		_ = assistant.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	return g, nil
}

// runJob executes a scheduled job. Internal jobs maintain the gateway;
// anything else is a prompt run as its own session.
func (g *Gateway) runJob(job cron.CronJob) (string, error) {
	if job.Payload.Message == sweepJobMsg {
		n := g.assistant.Sessions.Sweep(time.Now())
		return fmt.Sprintf("evicted %d sessions", n), nil
	}

	// Each action is bounded by the engine; the turn ends with the gateway.
	ctx := g.jobCtx
	if ctx == nil {
		ctx = context.Background()
	}

	reply, err := g.engine.HandleMessage(ctx, "cron:"+job.ID, job.Payload.Message)
	if err != nil {
		return "", err
	}
	if job.Payload.Deliver && job.Payload.Channel != "" {
		g.bus.Outbound <- bus.OutboundMessage{
			Channel: job.Payload.Channel,
			ChatID:  job.Payload.To,
			Content: reply.Text,
			DraftID: reply.DraftID,
		}
	}
	return reply.Text, nil
}

func (g *Gateway) ensureInternalJobs() error {
	if g.cfg.SessionIdleTTL() <= 0 {
		return nil
	}
	expr := strings.TrimSpace(g.cfg.Sessions.SweepEvery)
	if expr == "" {
		expr = config.DefaultSessionSweep
	}
	_, err := g.cron.EnsureJob(sweepJobName, cron.Schedule{Kind: cron.KindCron, Expr: expr}, cron.Payload{Message: sweepJobMsg})
	return err
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	g.logger.Info("channels started", zap.Strings("channels", g.channels.EnabledChannels()))

	g.jobCtx = ctx
	if err := g.cron.Start(ctx); err != nil {
		g.logger.Warn("cron start failed", zap.Error(err))
	}
	if err := g.ensureInternalJobs(); err != nil {
		g.logger.Warn("ensure internal jobs failed", zap.Error(err))
	}

	g.loopDone = make(chan struct{})
	go func() {
		defer close(g.loopDone)
		g.processLoop(ctx)
	}()

	g.logger.Info("running", zap.String("host", g.cfg.Gateway.Host), zap.Int("port", g.cfg.Gateway.Port))

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	g.logger.Info("shutting down")
	cancel()
	<-g.loopDone
	return g.Shutdown()
}

// processLoop hands each inbound message to a bounded pool of turn workers.
// Turns of one session still run one at a time under the session lock.
func (g *Gateway) processLoop(ctx context.Context) {
	var turns errgroup.Group
	turns.SetLimit(max(g.cfg.Gateway.MaxConcurrentTurns, 1))
	defer func() { _ = turns.Wait() }()

	for {
		select {
		case msg := <-g.bus.Inbound:
			turns.Go(func() error {
				g.handleInbound(ctx, msg)
				return nil
			})
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	key := msg.SessionKey()
	log := g.logger.With(zap.String("session", key), zap.String("kind", string(msg.Kind)))
	log.Debug("inbound", zap.String("sender", msg.SenderID), zap.String("content", truncate(msg.Content, 80)))

	var (
		reply workflow.Reply
		err   error
	)
	switch msg.Kind {
	case bus.KindConfirm:
		reply, err = g.engine.ConfirmDraft(ctx, key, msg.DraftID)
	case bus.KindCancel:
		reply, err = g.engine.CancelDraft(ctx, key, msg.DraftID)
	default:
		reply, err = g.engine.HandleMessage(ctx, key, msg.Content)
	}

	switch {
	case err == nil:
	case errors.Is(err, workflow.ErrNoDraft), errors.Is(err, workflow.ErrDraftMismatch):
		log.Debug("draft signal rejected", zap.Error(err))
	case ctx.Err() != nil:
		return
	default:
		log.Error("turn failed", zap.Error(err))
		reply = workflow.Reply{Text: msgTurnFailed}
	}

	if reply.Text == "" {
		return
	}
	out := bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply.Text,
		DraftID: reply.DraftID,
	}
	select {
	case g.bus.Outbound <- out:
	case <-ctx.Done():
	}
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	if err := g.channels.StopAll(); err != nil {
		g.logger.Warn("stop channels failed", zap.Error(err))
	}
	if err := g.assistant.Close(); err != nil {
		g.logger.Warn("close memory failed", zap.Error(err))
	}
	g.logger.Info("shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
