// Package conversation defines the contract of the remote "thread + run" Conversation Service
// that the run orchestrator drives, independent of any SDK.
package conversation

import (
	"context"
	"time"

	"agentrunner/pkg/tools"
)

// RunStatus is the remote lifecycle state of a run.
type RunStatus string

const (
	StatusQueued         RunStatus = "queued"
	StatusInProgress     RunStatus = "in_progress"
	StatusRequiresAction RunStatus = "requires_action"
	StatusCancelling     RunStatus = "cancelling"
	StatusCancelled      RunStatus = "cancelled"
	StatusFailed         RunStatus = "failed"
	StatusCompleted      RunStatus = "completed"
	StatusIncomplete     RunStatus = "incomplete"
	StatusExpired        RunStatus = "expired"
)

// Terminal reports whether the run can no longer change state.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusIncomplete, StatusExpired:
		return true
	default:
		return false
	}
}

// Unresolved reports whether a run still blocks new work on its thread.
func (s RunStatus) Unresolved() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusRequiresAction:
		return true
	default:
		return false
	}
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolCallTypeFunction is the only tool-call type the dispatcher answers.
const ToolCallTypeFunction = "function"

// Order selects message listing order by creation time.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Thread is a remote conversation context.
type Thread struct {
	ID string
}

// ToolCall is one pending function call inside a requires_action run.
//
// Arguments is either a decoded object (map[string]any) or its JSON text
// (string, []byte or json.RawMessage); nil means no arguments.
type ToolCall struct {
	ID        string
	Type      string
	Name      string
	Arguments any
}

// ToolResult answers one ToolCall. Output is serialized JSON.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Output     string `json:"output"`
}

// RequiredAction lists the tool calls a paused run waits on.
type RequiredAction struct {
	ToolCalls []ToolCall
}

// RunError is the remote service's explanation for a failed run.
type RunError struct {
	Code    string
	Message string
}

// Run is one attempt to produce an assistant turn on a thread.
type Run struct {
	ID             string
	ThreadID       string
	AgentID        string
	Status         RunStatus
	RequiredAction *RequiredAction
	LastError      *RunError
	CreatedAt      time.Time
}

// PendingToolCalls returns the calls awaiting output, or nil.
func (r *Run) PendingToolCalls() []ToolCall {
	if r == nil || r.RequiredAction == nil {
		return nil
	}
	return r.RequiredAction.ToolCalls
}

// ContentTypeText marks a text content segment.
const ContentTypeText = "text"

// ContentSegment is one typed piece of message content. Text is set for text segments.
type ContentSegment struct {
	Type string
	Text string
}

// Message is a thread message.
type Message struct {
	ID        string
	Role      string
	CreatedAt time.Time
	Content   []ContentSegment
}

// NewMessage is the payload for CreateMessage.
type NewMessage struct {
	Role    string
	Content string
}

// AgentSpec describes the remote agent (assistant) identity. A non-empty ID
// updates that agent in place instead of creating a new one.
type AgentSpec struct {
	ID           string
	Model        string
	Name         string
	Instructions string
	Tools        []tools.Definition
}

// Agent is the registered remote agent.
type Agent struct {
	ID    string
	Name  string
	Model string
}

// Service is the capability set the orchestrator needs from the remote API.
type Service interface {
	CreateThread(ctx context.Context) (Thread, error)
	CreateMessage(ctx context.Context, threadID string, msg NewMessage) (string, error)
	CreateRun(ctx context.Context, threadID, agentID string) (Run, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	ListRuns(ctx context.Context, threadID string) ([]Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	SubmitToolOutputs(ctx context.Context, threadID, runID string, results []ToolResult) (Run, error)
	ListMessages(ctx context.Context, threadID string, order Order) ([]Message, error)
	CreateOrUpdateAgent(ctx context.Context, spec AgentSpec) (Agent, error)
}
