// Package config loads agentd configuration from a YAML file with environment
// variable substitution, secret overrides and defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"agentrunner/pkg/conversation/resilience/circuit"
	"agentrunner/pkg/conversation/resilience/retry"
	"agentrunner/pkg/limiter"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// Default values applied by Load.
const (
	DefaultAgentName      = "Weather Assistant"
	DefaultInstructions   = "You are a helpful weather assistant. When users ask for weather in a city, first call getGeoCoordinates with the city name to get coordinates, then use those coordinates with getWeather to get the weather data."
	DefaultServerAddr     = ":8080"
	DefaultMetricsPath    = "/metrics"
	DefaultRequestTimeout = 30 * time.Second
	DefaultHTTPTimeout    = 10 * time.Second
	DefaultSessionTTL     = 24 * time.Hour
	DefaultSessionMaxSize = 10000
	DefaultConcurrency    = 4
	DefaultMaxPolls       = 30
	DefaultPollInterval   = time.Second
	DefaultSettleDelay    = 500 * time.Millisecond
	DefaultMaxInterval    = 5 * time.Second
	DefaultLogLevel       = "info"
)

// Validation errors.
var (
	ErrMissingModel    = errors.New("agent model (or Azure deployment) is required")
	ErrMissingName     = errors.New("agent name is required")
	ErrMissingAPIKey   = errors.New("conversation API key is required")
	ErrMissingEndpoint = errors.New("azure endpoint is required")
	ErrUnknownProvider = errors.New("unknown conversation provider")
)

// Config is the complete agentd configuration.
type Config struct {
	Conversation ConversationConfig `yaml:"conversation"`
	Agent        AgentConfig        `yaml:"agent"`
	Polling      PollingConfig      `yaml:"polling"`
	Sessions     SessionsConfig     `yaml:"sessions"`
	Tools        ToolsConfig        `yaml:"tools"`
	Resilience   ResilienceConfig   `yaml:"resilience"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Journal      JournalConfig      `yaml:"journal"`
}

// ConversationConfig selects and authenticates the remote thread/run service.
type ConversationConfig struct {
	Provider       string        `yaml:"provider"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Endpoint       string        `yaml:"endpoint"`
	APIVersion     string        `yaml:"api_version"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AgentConfig describes the registered agent. With ID set the existing agent is updated.
type AgentConfig struct {
	ID           string `yaml:"id"`
	Model        string `yaml:"model"`
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions"`
}

// PollingConfig bounds the run polling loop.
type PollingConfig struct {
	MaxPolls      int           `yaml:"max_polls"`
	Interval      time.Duration `yaml:"interval"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
	MaxInterval   time.Duration `yaml:"max_interval"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

// SessionsConfig bounds the session to thread map.
type SessionsConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	MaxSize int           `yaml:"max_size"`
}

// ToolsConfig configures the weather provider and dispatch.
type ToolsConfig struct {
	OpenWeatherAPIKey string        `yaml:"openweather_api_key"`
	GeoBaseURL        string        `yaml:"geo_base_url"`
	DataBaseURL       string        `yaml:"data_base_url"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	Concurrency       int           `yaml:"concurrency"`
}

// ResilienceConfig wraps the conversation service interceptors.
type ResilienceConfig struct {
	Retry     retry.Config   `yaml:"retry"`
	Circuit   circuit.Config `yaml:"circuit"`
	RateLimit limiter.Config `yaml:"rate_limit"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig sets the log threshold.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// JournalConfig enables the per-turn JSONL journal. An empty Dir disables it.
type JournalConfig struct {
	Dir string `yaml:"dir"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero values. Booleans are left alone.
func applyDefaults(cfg *Config) {
	if cfg.Conversation.Provider == "" {
		cfg.Conversation.Provider = ProviderOpenAI
	}
	if cfg.Conversation.RequestTimeout <= 0 {
		cfg.Conversation.RequestTimeout = DefaultRequestTimeout
	}

	if cfg.Agent.Name == "" {
		cfg.Agent.Name = DefaultAgentName
	}
	if cfg.Agent.Instructions == "" {
		cfg.Agent.Instructions = DefaultInstructions
	}

	if cfg.Polling.MaxPolls <= 0 {
		cfg.Polling.MaxPolls = DefaultMaxPolls
	}
	if cfg.Polling.Interval <= 0 {
		cfg.Polling.Interval = DefaultPollInterval
	}
	if cfg.Polling.SettleDelay <= 0 {
		cfg.Polling.SettleDelay = DefaultSettleDelay
	}
	if cfg.Polling.MaxInterval <= 0 {
		cfg.Polling.MaxInterval = DefaultMaxInterval
	}
	if cfg.Polling.BackoffFactor <= 0 {
		cfg.Polling.BackoffFactor = 1
	}

	if cfg.Sessions.TTL == 0 {
		cfg.Sessions.TTL = DefaultSessionTTL
	}
	if cfg.Sessions.MaxSize == 0 {
		cfg.Sessions.MaxSize = DefaultSessionMaxSize
	}

	if cfg.Tools.HTTPTimeout <= 0 {
		cfg.Tools.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.Tools.Concurrency <= 0 {
		cfg.Tools.Concurrency = DefaultConcurrency
	}

	if cfg.Resilience.Retry.MaxAttempts <= 0 {
		cfg.Resilience.Retry = retry.DefaultConfig
	}
	if cfg.Resilience.Circuit.FailureThreshold <= 0 {
		cfg.Resilience.Circuit = circuit.DefaultConfig
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	switch c.Conversation.Provider {
	case ProviderOpenAI:
	case ProviderAzure:
		if c.Conversation.Endpoint == "" {
			return ErrMissingEndpoint
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Conversation.Provider)
	}
	if c.Conversation.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Agent.Model == "" {
		return ErrMissingModel
	}
	if c.Agent.Name == "" {
		return ErrMissingName
	}
	if c.Polling.BackoffFactor < 1 {
		return fmt.Errorf("polling.backoff_factor must be >= 1, got %v", c.Polling.BackoffFactor)
	}
	return nil
}
