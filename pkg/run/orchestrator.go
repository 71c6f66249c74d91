// Package run drives one user turn through the remote thread/run lifecycle:
// stale-run pre-emption, submission, polling with tool dispatch, and reply extraction.
package run

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"agentrunner/pkg/conversation"
	"agentrunner/pkg/dispatch"
	"agentrunner/pkg/logx"
	"agentrunner/pkg/metrics"
)

// Defaults for Config.
const (
	DefaultMaxPolls        = 30
	DefaultPollInterval    = time.Second
	DefaultSettleDelay     = 500 * time.Millisecond
	DefaultMaxPollInterval = 5 * time.Second
)

// Config bounds the polling loop.
type Config struct {
	// MaxPolls is the number of GetRun calls before a turn times out.
	MaxPolls int
	// PollInterval is the wait before each poll.
	PollInterval time.Duration
	// SettleDelay is the extra wait after submitting tool outputs.
	SettleDelay time.Duration
	// BackoffFactor > 1 grows the poll interval geometrically up to MaxPollInterval.
	BackoffFactor   float64
	MaxPollInterval time.Duration
}

// DefaultConfig returns the standard polling bounds.
func DefaultConfig() Config {
	return Config{
		MaxPolls:        DefaultMaxPolls,
		PollInterval:    DefaultPollInterval,
		SettleDelay:     DefaultSettleDelay,
		BackoffFactor:   1,
		MaxPollInterval: DefaultMaxPollInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxPolls <= 0 {
		c.MaxPolls = DefaultMaxPolls
	}
	if c.PollInterval < 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	return c
}

// Orchestrator runs turns against a Conversation Service.
type Orchestrator struct {
	svc        conversation.Service
	dispatcher *dispatch.Dispatcher
	active     *ActiveRuns
	cfg        Config
	recorder   metrics.Recorder
	logger     *logx.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig sets the polling bounds.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg.withDefaults() }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithActiveRuns shares an active-run set between orchestrators.
func WithActiveRuns(a *ActiveRuns) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.active = a
		}
	}
}

// New creates an orchestrator.
func New(svc conversation.Service, dispatcher *dispatch.Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		svc:        svc,
		dispatcher: dispatcher,
		cfg:        DefaultConfig(),
		recorder:   metrics.Nop(),
		logger:     logx.NewLogger("run"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.active == nil {
		o.active = NewActiveRuns(o.recorder.SetActiveRuns)
	}
	return o
}

// Active exposes the active-run set.
func (o *Orchestrator) Active() *ActiveRuns {
	return o.active
}

// turn carries per-turn state. seen is fresh for every turn.
type turn struct {
	threadID string
	agentID  string
	seen     *dispatch.CallSet
	state    State
	outcome  Outcome
}

func (t *turn) transition(ctx context.Context, to State) {
	logx.DebugState(ctx, "run", t.state.String(), to.String())
	t.state = to
	t.outcome.State = to
}

// ProcessTurn posts text to the thread, runs the agent to a terminal state and
// returns the reply. Remote-service faults are returned as errors; timeouts and
// non-completed runs are outcomes.
func (o *Orchestrator) ProcessTurn(ctx context.Context, threadID, agentID, text string) (Outcome, error) {
	start := time.Now()
	t := &turn{threadID: threadID, agentID: agentID, seen: dispatch.NewCallSet()}

	out, err := o.processTurn(ctx, t, text)
	kind := string(out.Kind)
	if err != nil {
		kind = "error"
	}
	o.recorder.ObserveTurn(kind, out.Polls, time.Since(start))
	return out, err
}

func (o *Orchestrator) processTurn(ctx context.Context, t *turn, text string) (Outcome, error) {
	if err := o.preemptStaleRun(ctx, t); err != nil {
		return t.outcome, err
	}

	if _, err := o.svc.CreateMessage(ctx, t.threadID, conversation.NewMessage{Role: conversation.RoleUser, Content: text}); err != nil {
		return t.outcome, fmt.Errorf("create message: %w", err)
	}
	current, err := o.svc.CreateRun(ctx, t.threadID, t.agentID)
	if err != nil {
		return t.outcome, fmt.Errorf("create run: %w", err)
	}
	t.outcome.RunID = current.ID
	t.outcome.Status = current.Status
	t.transition(ctx, StateSubmitted)

	if !o.active.TryAcquire(t.threadID, current.ID) {
		o.logger.Warn("Run %s on thread %s is already being processed", current.ID, t.threadID)
		t.outcome.Kind = KindAlreadyProcessing
		t.outcome.Reply = ReplyAlreadyProcessing
		return t.outcome, nil
	}
	defer o.active.Release(t.threadID, current.ID)

	current, err = o.poll(ctx, t, current)
	if err != nil {
		return t.outcome, err
	}
	if t.state == StateTimedOut {
		return t.outcome, nil
	}

	t.outcome.Status = current.Status
	t.outcome.LastError = current.LastError
	t.transition(ctx, stateForTerminal(current.Status))
	if current.Status != conversation.StatusCompleted {
		if current.LastError != nil {
			o.logger.Warn("Run %s ended %s: %s %s", current.ID, current.Status, current.LastError.Code, current.LastError.Message)
		}
		t.outcome.Kind = KindRunFailed
		t.outcome.Reply = RunFailedReply(current.Status)
		return t.outcome, nil
	}

	return o.resolveReply(ctx, t)
}

// preemptStaleRun settles the newest unresolved run on the thread so the new message can be posted.
func (o *Orchestrator) preemptStaleRun(ctx context.Context, t *turn) error {
	runs, err := o.svc.ListRuns(ctx, t.threadID)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	for i := range runs {
		stale := runs[i]
		if !stale.Status.Unresolved() {
			continue
		}
		if stale.Status == conversation.StatusRequiresAction {
			o.logger.Info("Resolving pending tool calls of stale run %s", stale.ID)
			if _, err := o.resolveToolCalls(ctx, t, stale); err != nil {
				return fmt.Errorf("resolve stale run %s: %w", stale.ID, err)
			}
			return nil
		}
		o.logger.Info("Cancelling stale run %s (%s)", stale.ID, stale.Status)
		if err := o.svc.CancelRun(ctx, t.threadID, stale.ID); err != nil {
			return fmt.Errorf("cancel stale run %s: %w", stale.ID, err)
		}
		return nil
	}
	return nil
}

// poll waits for current to reach a terminal status, answering tool calls on the way.
// On return either t.state is StateTimedOut or the returned run is terminal.
func (o *Orchestrator) poll(ctx context.Context, t *turn, current conversation.Run) (conversation.Run, error) {
	t.transition(ctx, StatePolling)

	for n := 1; n <= o.cfg.MaxPolls; n++ {
		if err := sleep(ctx, o.cfg.pollDelay(n)); err != nil {
			return current, fmt.Errorf("poll run %s: %w", current.ID, err)
		}

		next, err := o.svc.GetRun(ctx, t.threadID, current.ID)
		t.outcome.Polls = n
		if err != nil {
			return current, fmt.Errorf("get run %s: %w", current.ID, err)
		}
		current = next
		t.outcome.Status = current.Status
		logx.Debug(ctx, "run", "poll %d/%d run=%s status=%s", n, o.cfg.MaxPolls, current.ID, current.Status)

		if current.Status.Terminal() {
			return current, nil
		}
		if current.Status != conversation.StatusRequiresAction {
			continue
		}

		t.transition(ctx, StateRequiresAction)
		updated, err := o.resolveToolCalls(ctx, t, current)
		if err != nil {
			return current, fmt.Errorf("submit tool outputs for run %s: %w", current.ID, err)
		}
		if updated != nil {
			current = *updated
			if current.Status == conversation.StatusCompleted {
				return current, nil
			}
		}
		t.transition(ctx, StatePolling)
		if err := sleep(ctx, o.cfg.SettleDelay); err != nil {
			return current, fmt.Errorf("poll run %s: %w", current.ID, err)
		}
	}

	o.logger.Warn("Run %s on thread %s still %s after %d polls", current.ID, t.threadID, current.Status, o.cfg.MaxPolls)
	t.transition(ctx, StateTimedOut)
	t.outcome.Kind = KindTimedOut
	t.outcome.Reply = ReplyTimedOut
	return current, nil
}

// resolveToolCalls dispatches every pending call of r and submits all results at once.
// It returns nil when r carries no function calls to answer.
func (o *Orchestrator) resolveToolCalls(ctx context.Context, t *turn, r conversation.Run) (*conversation.Run, error) {
	calls := r.PendingToolCalls()
	if len(calls) == 0 {
		return nil, nil
	}
	results := o.dispatcher.InvokeAll(ctx, t.seen, calls)
	t.outcome.ToolCalls += len(results)
	if len(results) == 0 {
		return nil, nil
	}
	updated, err := o.svc.SubmitToolOutputs(ctx, t.threadID, r.ID, results)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers add the step
	}
	return &updated, nil
}

func (o *Orchestrator) resolveReply(ctx context.Context, t *turn) (Outcome, error) {
	msgs, err := o.svc.ListMessages(ctx, t.threadID, conversation.OrderDesc)
	if err != nil {
		return t.outcome, fmt.Errorf("list messages: %w", err)
	}
	reply, ok := LatestAssistantText(msgs)
	if !ok {
		t.outcome.Kind = KindNoReply
		t.outcome.Reply = ReplyNoReply
		return t.outcome, nil
	}
	t.outcome.Kind = KindCompleted
	t.outcome.Reply = reply
	return t.outcome, nil
}

// LatestAssistantText returns the concatenated text segments of the newest assistant message.
func LatestAssistantText(msgs []conversation.Message) (string, bool) {
	assistant := make([]conversation.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == conversation.RoleAssistant {
			assistant = append(assistant, m)
		}
	}
	if len(assistant) == 0 {
		return "", false
	}
	sort.SliceStable(assistant, func(i, j int) bool {
		return assistant[i].CreatedAt.After(assistant[j].CreatedAt)
	})

	var b strings.Builder
	for _, seg := range assistant[0].Content {
		if seg.Type == conversation.ContentTypeText {
			b.WriteString(seg.Text)
		}
	}
	return b.String(), true
}
