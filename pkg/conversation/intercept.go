package conversation

import (
	"context"
)

// Op names a Conversation Service operation.
type Op string

const (
	OpCreateThread      Op = "create_thread"
	OpCreateMessage     Op = "create_message"
	OpCreateRun         Op = "create_run"
	OpGetRun            Op = "get_run"
	OpListRuns          Op = "list_runs"
	OpCancelRun         Op = "cancel_run"
	OpSubmitToolOutputs Op = "submit_tool_outputs"
	OpListMessages      Op = "list_messages"
	OpCreateOrUpdate    Op = "create_or_update_agent"
)

// Idempotent reports whether repeating the operation cannot duplicate remote state.
func (o Op) Idempotent() bool {
	switch o {
	case OpGetRun, OpListRuns, OpCancelRun, OpListMessages:
		return true
	default:
		return false
	}
}

// Call describes one intercepted operation.
type Call struct {
	Op       Op
	ThreadID string
	RunID    string
}

// Interceptor wraps one Service call. It must call next at most once per attempt
// and return next's error (or its own).
type Interceptor func(ctx context.Context, call Call, next func(context.Context) error) error

// Intercept wraps base so every call goes through interceptors.
// Interceptors are applied in order, the first one being outermost.
func Intercept(base Service, interceptors ...Interceptor) Service {
	if len(interceptors) == 0 {
		return base
	}
	return &intercepted{next: base, chain: chain(interceptors)}
}

func chain(interceptors []Interceptor) Interceptor {
	return func(ctx context.Context, call Call, next func(context.Context) error) error {
		handler := next
		for i := len(interceptors) - 1; i >= 0; i-- {
			ic, inner := interceptors[i], handler
			handler = func(ctx context.Context) error {
				return ic(ctx, call, inner)
			}
		}
		return handler(ctx)
	}
}

type intercepted struct {
	next  Service
	chain Interceptor
}

func (s *intercepted) CreateThread(ctx context.Context) (Thread, error) {
	var out Thread
	err := s.chain(ctx, Call{Op: OpCreateThread}, func(ctx context.Context) error {
		var err error
		out, err = s.next.CreateThread(ctx)
		return err
	})
	return out, err
}

func (s *intercepted) CreateMessage(ctx context.Context, threadID string, msg NewMessage) (string, error) {
	var out string
	err := s.chain(ctx, Call{Op: OpCreateMessage, ThreadID: threadID}, func(ctx context.Context) error {
		var err error
		out, err = s.next.CreateMessage(ctx, threadID, msg)
		return err
	})
	return out, err
}

func (s *intercepted) CreateRun(ctx context.Context, threadID, agentID string) (Run, error) {
	var out Run
	err := s.chain(ctx, Call{Op: OpCreateRun, ThreadID: threadID}, func(ctx context.Context) error {
		var err error
		out, err = s.next.CreateRun(ctx, threadID, agentID)
		return err
	})
	return out, err
}

func (s *intercepted) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	var out Run
	err := s.chain(ctx, Call{Op: OpGetRun, ThreadID: threadID, RunID: runID}, func(ctx context.Context) error {
		var err error
		out, err = s.next.GetRun(ctx, threadID, runID)
		return err
	})
	return out, err
}

func (s *intercepted) ListRuns(ctx context.Context, threadID string) ([]Run, error) {
	var out []Run
	err := s.chain(ctx, Call{Op: OpListRuns, ThreadID: threadID}, func(ctx context.Context) error {
		var err error
		out, err = s.next.ListRuns(ctx, threadID)
		return err
	})
	return out, err
}

func (s *intercepted) CancelRun(ctx context.Context, threadID, runID string) error {
	return s.chain(ctx, Call{Op: OpCancelRun, ThreadID: threadID, RunID: runID}, func(ctx context.Context) error {
		return s.next.CancelRun(ctx, threadID, runID)
	})
}

func (s *intercepted) SubmitToolOutputs(ctx context.Context, threadID, runID string, results []ToolResult) (Run, error) {
	var out Run
	err := s.chain(ctx, Call{Op: OpSubmitToolOutputs, ThreadID: threadID, RunID: runID}, func(ctx context.Context) error {
		var err error
		out, err = s.next.SubmitToolOutputs(ctx, threadID, runID, results)
		return err
	})
	return out, err
}

func (s *intercepted) ListMessages(ctx context.Context, threadID string, order Order) ([]Message, error) {
	var out []Message
	err := s.chain(ctx, Call{Op: OpListMessages, ThreadID: threadID}, func(ctx context.Context) error {
		var err error
		out, err = s.next.ListMessages(ctx, threadID, order)
		return err
	})
	return out, err
}

func (s *intercepted) CreateOrUpdateAgent(ctx context.Context, spec AgentSpec) (Agent, error) {
	var out Agent
	err := s.chain(ctx, Call{Op: OpCreateOrUpdate}, func(ctx context.Context) error {
		var err error
		out, err = s.next.CreateOrUpdateAgent(ctx, spec)
		return err
	})
	return out, err
}
