package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultModel              = "claude-sonnet-4-5-20250929"
	DefaultGeminiModel        = "gemini-2.0-flash"
	DefaultMaxTokens          = 4096
	DefaultTemperature        = 0.7
	DefaultTimezone           = "America/Sao_Paulo"
	DefaultProviderTimeout    = "60s"
	DefaultMaxContext         = 2000
	DefaultEmbeddingProvider  = "api"
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultEmbeddingTimeout   = "30s"
	DefaultEmbeddingBatchSize = 32
	DefaultSessionIdleTTL     = "24h"
	DefaultSessionMaxHistory  = 200
	DefaultSessionSweep       = "0 */10 * * * *"
	DefaultActionTimeout      = "90s"
	DefaultToolsTimeout       = "20s"
	DefaultCalendarID         = "primary"
	DefaultHost               = "0.0.0.0"
	DefaultPort               = 18790
	DefaultBufSize            = 100
	DefaultMaxConcurrentTurns = 8
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "console"
)

type Config struct {
	Agent    AgentConfig    `json:"agent" mapstructure:"agent"`
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`
	Memory   MemoryConfig   `json:"memory" mapstructure:"memory"`
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`
	Workflow WorkflowConfig `json:"workflow" mapstructure:"workflow"`
	Google   GoogleConfig   `json:"google" mapstructure:"google"`
	Tools    ToolsConfig    `json:"tools" mapstructure:"tools"`
	Channels ChannelsConfig `json:"channels" mapstructure:"channels"`
	Gateway  GatewayConfig  `json:"gateway" mapstructure:"gateway"`
	Log      LogConfig      `json:"log" mapstructure:"log"`
}

type AgentConfig struct {
	Model       string  `json:"model" mapstructure:"model"`
	MaxTokens   int     `json:"maxTokens" mapstructure:"maxTokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	Timezone    string  `json:"timezone" mapstructure:"timezone"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty" mapstructure:"type"` // "anthropic" (default), "openai" or "gemini"
	APIKey  string `json:"apiKey" mapstructure:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty" mapstructure:"baseUrl"`
	Timeout string `json:"timeout,omitempty" mapstructure:"timeout"`
}

type MemoryConfig struct {
	Dir        string          `json:"dir,omitempty" mapstructure:"dir"`
	MaxContext int             `json:"maxContext" mapstructure:"maxContext"`
	Embedding  EmbeddingConfig `json:"embedding" mapstructure:"embedding"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // "api", "ollama" or "genai"
	BaseURL   string `json:"baseUrl,omitempty" mapstructure:"baseUrl"`
	APIKey    string `json:"apiKey,omitempty" mapstructure:"apiKey"`
	Model     string `json:"model" mapstructure:"model"`
	Dimension int    `json:"dimension,omitempty" mapstructure:"dimension"`
	Timeout   string `json:"timeout,omitempty" mapstructure:"timeout"`
	BatchSize int    `json:"batchSize,omitempty" mapstructure:"batchSize"`
}

type SessionsConfig struct {
	IdleTTL    string `json:"idleTTL" mapstructure:"idleTTL"`
	MaxHistory int    `json:"maxHistory" mapstructure:"maxHistory"`
	SweepEvery string `json:"sweepEvery" mapstructure:"sweepEvery"`
}

type WorkflowConfig struct {
	ActionTimeout string `json:"actionTimeout" mapstructure:"actionTimeout"`
}

type GoogleConfig struct {
	CredentialsFile string `json:"credentialsFile,omitempty" mapstructure:"credentialsFile"`
	TokenFile       string `json:"tokenFile,omitempty" mapstructure:"tokenFile"`
	CalendarID      string `json:"calendarId" mapstructure:"calendarId"`
	From            string `json:"from,omitempty" mapstructure:"from"`
}

type ToolsConfig struct {
	Timeout        string `json:"timeout" mapstructure:"timeout"`
	SearchEndpoint string `json:"searchEndpoint,omitempty" mapstructure:"searchEndpoint"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`
	WebUI    WebUIConfig    `json:"webui" mapstructure:"webui"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled" mapstructure:"enabled"`
	Token     string   `json:"token" mapstructure:"token"`
	AllowFrom []string `json:"allowFrom" mapstructure:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty" mapstructure:"proxy"`
}

type WebUIConfig struct {
	Enabled   bool     `json:"enabled" mapstructure:"enabled"`
	AllowFrom []string `json:"allowFrom" mapstructure:"allowFrom"`
}

type GatewayConfig struct {
	Host               string `json:"host" mapstructure:"host"`
	Port               int    `json:"port" mapstructure:"port"`
	MaxConcurrentTurns int    `json:"maxConcurrentTurns" mapstructure:"maxConcurrentTurns"`
}

type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"` // "console" or "json"
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:       DefaultModel,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
			Timezone:    DefaultTimezone,
		},
		Provider: ProviderConfig{
			Timeout: DefaultProviderTimeout,
		},
		Memory: MemoryConfig{
			Dir:        filepath.Join(ConfigDir(), "memory"),
			MaxContext: DefaultMaxContext,
			Embedding: EmbeddingConfig{
				Provider:  DefaultEmbeddingProvider,
				Model:     DefaultEmbeddingModel,
				Timeout:   DefaultEmbeddingTimeout,
				BatchSize: DefaultEmbeddingBatchSize,
			},
		},
		Sessions: SessionsConfig{
			IdleTTL:    DefaultSessionIdleTTL,
			MaxHistory: DefaultSessionMaxHistory,
			SweepEvery: DefaultSessionSweep,
		},
		Workflow: WorkflowConfig{
			ActionTimeout: DefaultActionTimeout,
		},
		Google: GoogleConfig{
			CredentialsFile: filepath.Join(ConfigDir(), "credentials.json"),
			TokenFile:       filepath.Join(ConfigDir(), "token.json"),
			CalendarID:      DefaultCalendarID,
		},
		Tools: ToolsConfig{
			Timeout: DefaultToolsTimeout,
		},
		Gateway: GatewayConfig{
			Host:               DefaultHost,
			Port:               DefaultPort,
			MaxConcurrentTurns: DefaultMaxConcurrentTurns,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".hermes")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"provider.apiKey":           "HERMES_API_KEY",
	"provider.baseUrl":          "HERMES_BASE_URL",
	"provider.type":             "HERMES_PROVIDER",
	"agent.model":               "HERMES_MODEL",
	"agent.timezone":            "HERMES_TIMEZONE",
	"channels.telegram.token":   "HERMES_TELEGRAM_TOKEN",
	"memory.dir":                "HERMES_MEMORY_DIR",
	"memory.embedding.apiKey":   "HERMES_EMBEDDING_API_KEY",
	"memory.embedding.baseUrl":  "HERMES_EMBEDDING_BASE_URL",
	"memory.embedding.provider": "HERMES_EMBEDDING_PROVIDER",
	"log.level":                 "HERMES_LOG_LEVEL",
}

func LoadConfig() (*Config, error) {
	return loadFrom(viper.New(), ConfigPath())
}

func loadFrom(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	v.SetConfigFile(path)
	v.SetConfigType("json")
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "gemini"
		}
	}
	if cfg.Memory.Embedding.APIKey == "" {
		cfg.Memory.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Provider.Type == "gemini" && cfg.Agent.Model == DefaultModel {
		cfg.Agent.Model = DefaultGeminiModel
	}
	if strings.TrimSpace(cfg.Agent.Timezone) == "" {
		cfg.Agent.Timezone = DefaultTimezone
	}
	if cfg.Memory.Dir == "" {
		cfg.Memory.Dir = def.Memory.Dir
	}
	if cfg.Memory.MaxContext <= 0 {
		cfg.Memory.MaxContext = DefaultMaxContext
	}
	if cfg.Memory.Embedding.BatchSize <= 0 {
		cfg.Memory.Embedding.BatchSize = DefaultEmbeddingBatchSize
	}
	if cfg.Gateway.MaxConcurrentTurns <= 0 {
		cfg.Gateway.MaxConcurrentTurns = DefaultMaxConcurrentTurns
	}
	if cfg.Google.CalendarID == "" {
		cfg.Google.CalendarID = DefaultCalendarID
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0600)
}

// Location resolves the configured time zone, falling back to UTC when the
// tz database does not know it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Agent.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseDuration parses s, returning fallback when s is empty or invalid.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func (c *Config) ProviderTimeout() time.Duration {
	return ParseDuration(c.Provider.Timeout, 60*time.Second)
}

func (c *Config) EmbeddingTimeout() time.Duration {
	return ParseDuration(c.Memory.Embedding.Timeout, 30*time.Second)
}

func (c *Config) ToolsTimeout() time.Duration {
	return ParseDuration(c.Tools.Timeout, 20*time.Second)
}

func (c *Config) ActionTimeout() time.Duration {
	return ParseDuration(c.Workflow.ActionTimeout, 90*time.Second)
}

// SessionIdleTTL returns zero when eviction is disabled.
func (c *Config) SessionIdleTTL() time.Duration {
	if strings.TrimSpace(c.Sessions.IdleTTL) == "0" {
		return 0
	}
	return ParseDuration(c.Sessions.IdleTTL, 0)
}
