package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets and deployment settings.
const (
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvAzureAPIKey       = "AZURE_OPENAI_API_KEY"
	EnvAzureEndpoint     = "AZURE_OPENAI_ENDPOINT"
	EnvAzureDeployment   = "AZURE_OPENAI_DEPLOYMENT"
	EnvOpenWeatherAPIKey = "OPEN_WEATHER_API_KEY"
	EnvAgentID           = "AGENT_ID"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path, expands ${VAR} placeholders, applies environment overrides and
// defaults, then validates. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	if path == "" {
		return finish(newBase())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse is Load for an already opened document.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := newBase()
	dec := yaml.NewDecoder(bytes.NewReader(expandEnv(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return finish(cfg)
}

func newBase() *Config {
	return &Config{Metrics: MetricsConfig{Enabled: true}}
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg, os.Getenv)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// expandEnv replaces ${VAR} with its value. Unset variables are left as written.
func expandEnv(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		name := string(match[2 : len(match)-1])
		if value := os.Getenv(name); value != "" {
			return []byte(value)
		}
		return match
	})
}

// applyEnvOverrides lets the environment win over the file for secrets and
// deployment identity. The provider decides which API key variable applies.
func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvAzureEndpoint); v != "" {
		cfg.Conversation.Endpoint = v
		if cfg.Conversation.Provider == "" {
			cfg.Conversation.Provider = ProviderAzure
		}
	}

	keyVar := EnvOpenAIAPIKey
	if cfg.Conversation.Provider == ProviderAzure {
		keyVar = EnvAzureAPIKey
		if v := getenv(EnvAzureDeployment); v != "" {
			cfg.Agent.Model = v
		}
	}
	if v := getenv(keyVar); v != "" {
		cfg.Conversation.APIKey = v
	}

	if v := getenv(EnvOpenWeatherAPIKey); v != "" {
		cfg.Tools.OpenWeatherAPIKey = v
	}
	if v := getenv(EnvAgentID); v != "" {
		cfg.Agent.ID = v
	}
}
