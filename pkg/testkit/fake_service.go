// Package testkit provides scripted test doubles for the Conversation Service and the tool providers.
package testkit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentrunner/pkg/conversation"
)

// Call is one recorded FakeService invocation.
type Call struct {
	Op       conversation.Op
	ThreadID string
	RunID    string
}

// FakeService is a scripted, in-memory conversation.Service that records every call.
// Configure the exported fields before handing it to the code under test.
//
//nolint:govet // Logical field grouping preferred over memory alignment
type FakeService struct {
	// ExistingRuns is what ListRuns returns.
	ExistingRuns []conversation.Run
	// RunScript holds successive GetRun responses; the last one repeats.
	// Empty means every GetRun reports completed.
	RunScript []conversation.Run
	// SubmitScript holds successive SubmitToolOutputs responses; the last one repeats.
	// Empty means in_progress.
	SubmitScript []conversation.Run
	// Messages is what ListMessages returns.
	Messages []conversation.Message
	// AgentID is assigned by CreateOrUpdateAgent when the spec carries none.
	AgentID string
	// OnGetRun, when set, replaces RunScript. n counts GetRun calls from 1.
	OnGetRun func(ctx context.Context, n int) (conversation.Run, error)

	mu         sync.Mutex
	errs       map[conversation.Op][]error
	calls      []Call
	threads    int
	runs       int
	getRuns    int
	submits    int
	submitted  [][]conversation.ToolResult
	created    []conversation.NewMessage
	agentSpecs []conversation.AgentSpec
}

// NewFakeService returns an empty fake whose runs complete on the first poll.
func NewFakeService() *FakeService {
	return &FakeService{AgentID: "asst_fake", errs: make(map[conversation.Op][]error)}
}

// FailNext queues err to be returned by the next call of op. Queued errors are consumed in order.
func (f *FakeService) FailNext(op conversation.Op, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[conversation.Op][]error)
	}
	f.errs[op] = append(f.errs[op], errs...)
}

func (f *FakeService) record(op conversation.Op, threadID, runID string) error {
	f.calls = append(f.calls, Call{Op: op, ThreadID: threadID, RunID: runID})
	queue := f.errs[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	f.errs[op] = queue[1:]
	return err
}

func (f *FakeService) CreateThread(_ context.Context) (conversation.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(conversation.OpCreateThread, "", ""); err != nil {
		return conversation.Thread{}, err
	}
	f.threads++
	return conversation.Thread{ID: fmt.Sprintf("thread_%d", f.threads)}, nil
}

func (f *FakeService) CreateMessage(_ context.Context, threadID string, msg conversation.NewMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(conversation.OpCreateMessage, threadID, ""); err != nil {
		return "", err
	}
	f.created = append(f.created, msg)
	return fmt.Sprintf("msg_%d", len(f.created)), nil
}

func (f *FakeService) CreateRun(_ context.Context, threadID, agentID string) (conversation.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(conversation.OpCreateRun, threadID, ""); err != nil {
		return conversation.Run{}, err
	}
	f.runs++
	return conversation.Run{
		ID:        fmt.Sprintf("run_%d", f.runs),
		ThreadID:  threadID,
		AgentID:   agentID,
		Status:    conversation.StatusQueued,
		CreatedAt: time.Now(),
	}, nil
}

func (f *FakeService) GetRun(ctx context.Context, threadID, runID string) (conversation.Run, error) {
	f.mu.Lock()
	if err := f.record(conversation.OpGetRun, threadID, runID); err != nil {
		f.mu.Unlock()
		return conversation.Run{}, err
	}
	f.getRuns++
	n := f.getRuns
	hook := f.OnGetRun
	var run conversation.Run
	if hook == nil {
		run = pick(f.RunScript, n, conversation.StatusCompleted)
	}
	f.mu.Unlock()

	if hook != nil {
		var err error
		if run, err = hook(ctx, n); err != nil {
			return conversation.Run{}, err
		}
	}
	return fill(run, threadID, runID), nil
}

func (f *FakeService) ListRuns(_ context.Context, threadID string) ([]conversation.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(conversation.OpListRuns, threadID, ""); err != nil {
		return nil, err
	}
	return append([]conversation.Run(nil), f.ExistingRuns...), nil
}

func (f *FakeService) CancelRun(_ context.Context, threadID, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(conversation.OpCancelRun, threadID, runID)
}

func (f *FakeService) SubmitToolOutputs(_ context.Context, threadID, runID string, results []conversation.ToolResult) (conversation.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(conversation.OpSubmitToolOutputs, threadID, runID); err != nil {
		return conversation.Run{}, err
	}
	f.submits++
	f.submitted = append(f.submitted, append([]conversation.ToolResult(nil), results...))
	return fill(pick(f.SubmitScript, f.submits, conversation.StatusInProgress), threadID, runID), nil
}

func (f *FakeService) ListMessages(_ context.Context, threadID string, _ conversation.Order) ([]conversation.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(conversation.OpListMessages, threadID, ""); err != nil {
		return nil, err
	}
	return append([]conversation.Message(nil), f.Messages...), nil
}

func (f *FakeService) CreateOrUpdateAgent(_ context.Context, spec conversation.AgentSpec) (conversation.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(conversation.OpCreateOrUpdate, "", ""); err != nil {
		return conversation.Agent{}, err
	}
	f.agentSpecs = append(f.agentSpecs, spec)
	id := spec.ID
	if id == "" {
		id = f.AgentID
	}
	return conversation.Agent{ID: id, Name: spec.Name, Model: spec.Model}, nil
}

// Calls returns every recorded call in order.
func (f *FakeService) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns the recorded operation names in order.
func (f *FakeService) Ops() []conversation.Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]conversation.Op, len(f.calls))
	for i, c := range f.calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many times op was called, failed calls included.
func (f *FakeService) Count(op conversation.Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Submitted returns every tool-output batch passed to SubmitToolOutputs.
func (f *FakeService) Submitted() [][]conversation.ToolResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]conversation.ToolResult(nil), f.submitted...)
}

// CreatedMessages returns the messages posted to threads.
func (f *FakeService) CreatedMessages() []conversation.NewMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]conversation.NewMessage(nil), f.created...)
}

// AgentSpecs returns every spec passed to CreateOrUpdateAgent.
func (f *FakeService) AgentSpecs() []conversation.AgentSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]conversation.AgentSpec(nil), f.agentSpecs...)
}

func pick(script []conversation.Run, n int, fallback conversation.RunStatus) conversation.Run {
	if len(script) == 0 {
		return conversation.Run{Status: fallback}
	}
	if n > len(script) {
		n = len(script)
	}
	return script[n-1]
}

func fill(run conversation.Run, threadID, runID string) conversation.Run {
	if run.ID == "" {
		run.ID = runID
	}
	if run.ThreadID == "" {
		run.ThreadID = threadID
	}
	return run
}

var _ conversation.Service = (*FakeService)(nil)
