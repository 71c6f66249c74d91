// Package agent is the entry point for chat turns: it registers the agent with the
// Conversation Service, maps sessions to threads and runs each message through the
// run orchestrator.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"agentrunner/pkg/conversation"
	"agentrunner/pkg/dispatch"
	"agentrunner/pkg/eventlog"
	"agentrunner/pkg/logx"
	"agentrunner/pkg/metrics"
	"agentrunner/pkg/run"
	"agentrunner/pkg/sessions"
	"agentrunner/pkg/tools"
)

// User-facing replies produced here rather than by the agent.
const (
	ReplyEmptyMessage = "Please enter a message."
	ReplyError        = "Sorry, I encountered an error processing your request. Please try again."
)

// Configuration errors returned by New.
var (
	ErrMissingModel = errors.New("agent model (deployment name) is required")
	ErrMissingName  = errors.New("agent name is required")
)

// Config describes the agent to register.
type Config struct {
	// ID, when set, names an existing agent to update instead of creating one.
	ID           string
	Model        string
	Name         string
	Instructions string
}

// Reply is the answer to one message.
type Reply struct {
	Reply string `json:"reply"`
}

// Journal receives one record per finished turn.
type Journal interface {
	Write(rec eventlog.Record) error
}

// Service serves chat messages. It is safe for concurrent use.
//
//nolint:govet // fieldalignment: logical grouping preferred
type Service struct {
	cfg          Config
	svc          conversation.Service
	registry     *tools.Registry
	orchestrator *run.Orchestrator
	sessions     *sessions.Map
	ownSessions  bool
	recorder     metrics.Recorder
	journal      Journal
	ownJournal   *eventlog.Writer
	logger       *logx.Logger

	runOpts []run.Option

	mu      sync.RWMutex
	agentID string
	init    singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithRunConfig sets the polling bounds.
func WithRunConfig(cfg run.Config) Option {
	return func(s *Service) { s.runOpts = append(s.runOpts, run.WithConfig(cfg)) }
}

// WithSessions uses m for session lookups. The caller keeps ownership of m.
func WithSessions(m *sessions.Map) Option {
	return func(s *Service) {
		if m != nil {
			s.sessions = m
		}
	}
}

// WithRecorder sets the metrics recorder shared with the orchestrator.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithJournal records every turn that reaches the engine to j.
func WithJournal(j Journal) Option {
	return func(s *Service) { s.journal = j }
}

// WithLogger replaces the component logger.
func WithLogger(l *logx.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New validates cfg and wires the orchestrator. Nothing remote is called until Start
// or the first message.
func New(cfg Config, svc conversation.Service, registry *tools.Registry, dispatcher *dispatch.Dispatcher, opts ...Option) (*Service, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, ErrMissingModel
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, ErrMissingName
	}
	if svc == nil || registry == nil || dispatcher == nil {
		return nil, fmt.Errorf("agent: service, registry and dispatcher are required")
	}

	s := &Service{
		cfg:      cfg,
		svc:      svc,
		registry: registry,
		recorder: metrics.Nop(),
		logger:   logx.NewLogger("agent"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = sessions.New(sessions.Config{OnSizeChange: s.recorder.SetSessions})
		s.ownSessions = true
	}

	runOpts := append([]run.Option{run.WithRecorder(s.recorder)}, s.runOpts...)
	s.orchestrator = run.New(svc, dispatcher, runOpts...)
	return s, nil
}

// Start registers the agent in the background. ProcessMessage waits for it.
func (s *Service) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if _, err := s.ensureAgent(ctx); err != nil {
			s.logger.Error("Agent registration failed, will retry on next message: %v", err)
		}
	}()
}

// AgentID returns the registered agent id, empty before registration succeeds.
func (s *Service) AgentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agentID
}

// ensureAgent registers the agent once. Concurrent callers share one attempt; a failed
// attempt is not memoized.
func (s *Service) ensureAgent(ctx context.Context) (string, error) {
	if id := s.AgentID(); id != "" {
		return id, nil
	}

	ch := s.init.DoChan("agent", func() (any, error) {
		if id := s.AgentID(); id != "" {
			return id, nil
		}
		// Detached so one caller giving up does not fail the others.
		agent, err := s.svc.CreateOrUpdateAgent(context.WithoutCancel(ctx), conversation.AgentSpec{
			ID:           s.cfg.ID,
			Model:        s.cfg.Model,
			Name:         s.cfg.Name,
			Instructions: s.cfg.Instructions,
			Tools:        s.registry.ListDefinitions(),
		})
		if err != nil {
			return "", fmt.Errorf("register agent: %w", err)
		}
		s.mu.Lock()
		s.agentID = agent.ID
		s.mu.Unlock()
		s.logger.Info("Agent %s ready (model %s, %d tools)", agent.ID, s.cfg.Model, s.registry.Len())
		return agent.ID, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		id, _ := res.Val.(string)
		return id, nil
	}
}

// GetOrCreateThread returns the thread bound to sessionID, creating it on first use.
func (s *Service) GetOrCreateThread(ctx context.Context, sessionID string) (string, error) {
	threadID, created, err := s.sessions.GetOrCreate(ctx, sessionID, func(ctx context.Context) (string, error) {
		thread, err := s.svc.CreateThread(ctx)
		if err != nil {
			return "", err //nolint:wrapcheck // sessions adds the session id
		}
		return thread.ID, nil
	})
	if err != nil {
		return "", err //nolint:wrapcheck // already carries the session id
	}
	if created {
		s.logger.Info("Created thread %s for session %s", threadID, sessionID)
	}
	return threadID, nil
}

// ProcessMessage runs one turn for sessionID. Failures are logged and answered with a
// generic reply; the caller always gets something to show.
func (s *Service) ProcessMessage(ctx context.Context, sessionID, text string) Reply {
	if strings.TrimSpace(text) == "" {
		return Reply{Reply: ReplyEmptyMessage}
	}

	turnID := uuid.NewString()
	ctx = logx.WithTurnID(ctx, turnID)
	logx.Debug(ctx, "agent", "session=%s message=%q", sessionID, text)

	start := time.Now()
	threadID, out, err := s.process(ctx, sessionID, text)
	s.record(eventlog.Record{
		TurnID:     turnID,
		SessionID:  sessionID,
		ThreadID:   threadID,
		RunID:      out.RunID,
		Outcome:    outcomeName(out, err),
		Status:     string(out.Status),
		Polls:      out.Polls,
		ToolCalls:  out.ToolCalls,
		DurationMS: time.Since(start).Milliseconds(),
		Error:      errorText(err),
	})
	if err != nil {
		s.logger.Error("Turn %s for session %s failed: %v", turnID, sessionID, err)
		return Reply{Reply: ReplyError}
	}
	if out.Kind != run.KindCompleted {
		s.logger.Warn("Turn %s for session %s ended %s (run %s, status %s, %d polls)",
			turnID, sessionID, out.Kind, out.RunID, out.Status, out.Polls)
	}
	return Reply{Reply: out.Reply}
}

func (s *Service) process(ctx context.Context, sessionID, text string) (string, run.Outcome, error) {
	agentID, err := s.ensureAgent(ctx)
	if err != nil {
		return "", run.Outcome{}, err
	}
	threadID, err := s.GetOrCreateThread(ctx, sessionID)
	if err != nil {
		return "", run.Outcome{}, err
	}
	out, err := s.orchestrator.ProcessTurn(ctx, threadID, agentID, text)
	if err != nil {
		return threadID, out, fmt.Errorf("thread %s: %w", threadID, err)
	}
	return threadID, out, nil
}

func (s *Service) record(rec eventlog.Record) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Write(rec); err != nil {
		s.logger.Warn("Failed to journal turn %s: %v", rec.TurnID, err)
	}
}

func outcomeName(out run.Outcome, err error) string {
	if err != nil {
		return "error"
	}
	return string(out.Kind)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Close releases the session map and journal if the service created them.
func (s *Service) Close() {
	if s.ownSessions {
		s.sessions.Close()
	}
	if s.ownJournal != nil {
		if err := s.ownJournal.Close(); err != nil {
			s.logger.Warn("Failed to close journal: %v", err)
		}
	}
}
