package agent

import (
	"fmt"

	"agentrunner/pkg/config"
	"agentrunner/pkg/conversation"
	"agentrunner/pkg/conversation/assistants"
	"agentrunner/pkg/conversation/resilience/circuit"
	"agentrunner/pkg/conversation/resilience/retry"
	"agentrunner/pkg/conversation/resilience/timeout"
	"agentrunner/pkg/dispatch"
	"agentrunner/pkg/eventlog"
	"agentrunner/pkg/limiter"
	"agentrunner/pkg/logx"
	"agentrunner/pkg/metrics"
	"agentrunner/pkg/run"
	"agentrunner/pkg/sessions"
	"agentrunner/pkg/tools"
	"agentrunner/pkg/weather"
)

// NewConversationService builds the remote adapter and wraps it with the middleware
// chain, metrics outermost and the per-call timeout innermost.
func NewConversationService(cfg *config.Config, recorder metrics.Recorder) (conversation.Service, error) {
	adapter, err := assistants.New(assistants.Config{
		Provider:   cfg.Conversation.Provider,
		APIKey:     cfg.Conversation.APIKey,
		BaseURL:    cfg.Conversation.BaseURL,
		Endpoint:   cfg.Conversation.Endpoint,
		APIVersion: cfg.Conversation.APIVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation client: %w", err)
	}
	return Middleware(adapter, cfg, recorder), nil
}

// Middleware wraps base with the configured interceptors. The rate limiter sits
// inside the breaker so an open circuit costs no tokens.
func Middleware(base conversation.Service, cfg *config.Config, recorder metrics.Recorder) conversation.Service {
	logger := logx.NewLogger("conversation")
	chain := []conversation.Interceptor{
		metrics.Interceptor(recorder, logger),
		retry.Interceptor(retry.NewPolicy(cfg.Resilience.Retry, nil), logger),
		circuit.Interceptor(circuit.New(cfg.Resilience.Circuit, circuit.WithStateHook(func(from, to circuit.State) {
			logger.Warn("Conversation circuit %s -> %s", from, to)
		}))),
	}
	if rl := cfg.Resilience.RateLimit; rl.RequestsPerMinute > 0 || rl.MaxConcurrency > 0 {
		chain = append(chain, limiter.Interceptor(limiter.New(rl)))
	}
	chain = append(chain, timeout.Interceptor(cfg.Conversation.RequestTimeout))
	return conversation.Intercept(base, chain...)
}

// NewRegistry builds the weather tool registry from the tools section.
func NewRegistry(cfg *config.Config) *tools.Registry {
	client := weather.NewClient(weather.Config{
		APIKey:      cfg.Tools.OpenWeatherAPIKey,
		GeoBaseURL:  cfg.Tools.GeoBaseURL,
		DataBaseURL: cfg.Tools.DataBaseURL,
		Timeout:     cfg.Tools.HTTPTimeout,
	})
	return tools.DefaultRegistry(client)
}

// Build wires a Service over svc from a loaded configuration.
func Build(cfg *config.Config, svc conversation.Service, recorder metrics.Recorder) (*Service, error) {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if cfg.Tools.OpenWeatherAPIKey == "" {
		logx.Warnf("%s is not set, weather tools will report errors", config.EnvOpenWeatherAPIKey)
	}

	registry := NewRegistry(cfg)
	dispatcher := dispatch.New(registry,
		dispatch.WithRecorder(recorder),
		dispatch.WithConcurrency(cfg.Tools.Concurrency),
	)
	sessionMap := sessions.New(sessions.Config{
		TTL:          cfg.Sessions.TTL,
		MaxSize:      cfg.Sessions.MaxSize,
		OnSizeChange: recorder.SetSessions,
	})

	opts := []Option{
		WithRecorder(recorder),
		WithSessions(sessionMap),
		WithRunConfig(run.Config{
			MaxPolls:        cfg.Polling.MaxPolls,
			PollInterval:    cfg.Polling.Interval,
			SettleDelay:     cfg.Polling.SettleDelay,
			BackoffFactor:   cfg.Polling.BackoffFactor,
			MaxPollInterval: cfg.Polling.MaxInterval,
		}),
	}
	var journal *eventlog.Writer
	if cfg.Journal.Dir != "" {
		w, err := eventlog.NewWriter(cfg.Journal.Dir)
		if err != nil {
			sessionMap.Close()
			return nil, fmt.Errorf("failed to open turn journal: %w", err)
		}
		journal = w
		opts = append(opts, WithJournal(w))
	}

	s, err := New(Config{
		ID:           cfg.Agent.ID,
		Model:        cfg.Agent.Model,
		Name:         cfg.Agent.Name,
		Instructions: cfg.Agent.Instructions,
	}, svc, registry, dispatcher, opts...)
	if err != nil {
		sessionMap.Close()
		if journal != nil {
			_ = journal.Close()
		}
		return nil, err
	}
	s.ownSessions = true
	s.ownJournal = journal
	return s, nil
}
