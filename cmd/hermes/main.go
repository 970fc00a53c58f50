package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/icaroo-oliveira/HermesAI/internal/config"
	"github.com/icaroo-oliveira/HermesAI/internal/gateway"
	"github.com/icaroo-oliveira/HermesAI/internal/logging"
	"github.com/icaroo-oliveira/HermesAI/internal/workflow"
)

// AssistantFactory builds the wired engine (allows injection in tests)
type AssistantFactory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gateway.Assistant, error)

// DefaultAssistantFactory builds every collaborator from config
func DefaultAssistantFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gateway.Assistant, error) {
	return gateway.NewAssistant(ctx, cfg, gateway.Options{Logger: logger})
}

// ChatOptions for running chat with custom dependencies
type ChatOptions struct {
	AssistantFactory AssistantFactory
	Message          string
	SessionID        string
	Stdin            io.Reader
	Stdout           io.Writer
	Stderr           io.Writer
}

var rootCmd = &cobra.Command{
	Use:           "hermes",
	Short:         "hermes - personal assistant with calendar, mail, search and long-term memory",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in single message or REPL mode",
	RunE:  runChat,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the gateway (channels + cron + turn workers)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show hermes status",
	RunE:  runStatus,
}

var (
	messageFlag string
	sessionFlag string
)

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	chatCmd.Flags().StringVar(&sessionFlag, "session", "cli", "Session id to continue")
	rootCmd.AddCommand(chatCmd, gatewayCmd, onboardCmd, statusCmd, memoryCmd, authCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v; falling back to defaults\n", err)
		logger, _ = logging.New(config.DefaultLogLevel, config.DefaultLogFormat)
	}
	return logging.OrNop(logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runChat(cmd *cobra.Command, args []string) error {
	return runChatWithOptions(cmd.Context(), ChatOptions{
		Message:   messageFlag,
		SessionID: sessionFlag,
		Stdin:     cmd.InOrStdin(),
		Stdout:    cmd.OutOrStdout(),
		Stderr:    cmd.ErrOrStderr(),
	})
}

// runChatWithOptions runs the chat loop with injectable dependencies for testing
func runChatWithOptions(ctx context.Context, opts ChatOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	factory := opts.AssistantFactory
	if factory == nil {
		factory = DefaultAssistantFactory
	}
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	assistant, err := factory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer assistant.Close()

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = "cli"
	}

	// Single message mode
	if opts.Message != "" {
		reply, err := chatTurn(ctx, assistant.Engine, sessionID, opts.Message)
		if err != nil {
			return fmt.Errorf("chat error: %w", err)
		}
		printReply(stdout, reply)
		return nil
	}

	// REPL mode
	fmt.Fprintln(stdout, "hermes chat (type 'exit' to quit, /confirm or /cancel to answer an email draft)")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		reply, err := chatTurn(ctx, assistant.Engine, sessionID, input)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			continue
		}
		printReply(stdout, reply)
	}
	return nil
}

// chatTurn routes the draft commands to the engine and everything else to a
// normal turn. Draft errors still carry a readable reply.
func chatTurn(ctx context.Context, engine *workflow.Engine, sessionID, input string) (workflow.Reply, error) {
	var (
		reply workflow.Reply
		err   error
	)
	switch input {
	case "/confirm":
		reply, err = engine.ConfirmDraft(ctx, sessionID, "")
	case "/cancel":
		reply, err = engine.CancelDraft(ctx, sessionID, "")
	default:
		return engine.HandleMessage(ctx, sessionID, input)
	}
	if errors.Is(err, workflow.ErrNoDraft) || errors.Is(err, workflow.ErrDraftMismatch) {
		return reply, nil
	}
	return reply, err
}

func printReply(w io.Writer, reply workflow.Reply) {
	fmt.Fprintln(w, reply.Text)
	if reply.DraftID != "" {
		fmt.Fprintln(w, "\nType /confirm to send this email or /cancel to discard it.")
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'hermes onboard' or set HERMES_API_KEY / ANTHROPIC_API_KEY")
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signalContext()
	defer stop()

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runOnboard(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "Created config: %s\n", cfgPath)
	} else {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.Memory.Dir, 0755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	fmt.Fprintf(out, "Memory dir: %s\n", cfg.Memory.Dir)

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Edit %s to set your API key\n", cfgPath)
	fmt.Fprintln(out, "  2. Or set HERMES_API_KEY environment variable")
	fmt.Fprintf(out, "  3. Put your Google OAuth client at %s and run 'hermes auth google'\n", cfg.Google.CredentialsFile)
	fmt.Fprintln(out, "  4. Run 'hermes chat -m \"Hello\"' to test")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Model: %s\n", cfg.Agent.Model)
	fmt.Fprintf(out, "Provider: %s\n", providerDisplay(cfg.Provider.Type))
	fmt.Fprintf(out, "API Key: %s\n", maskKey(cfg.Provider.APIKey))
	fmt.Fprintf(out, "Timezone: %s\n", cfg.Location())
	fmt.Fprintf(out, "Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Fprintf(out, "WebUI: enabled=%v\n", cfg.Channels.WebUI.Enabled)

	if _, err := os.Stat(cfg.Google.TokenFile); err != nil {
		fmt.Fprintln(out, "Google: not authorized (run 'hermes auth google')")
	} else {
		fmt.Fprintln(out, "Google: authorized")
	}

	if _, err := os.Stat(cfg.Memory.Dir); err != nil {
		fmt.Fprintln(out, "Memory: not found (run 'hermes onboard')")
	} else {
		fmt.Fprintf(out, "Memory: %s\n", cfg.Memory.Dir)
	}

	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}
