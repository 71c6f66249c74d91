package run

import (
	"fmt"

	"agentrunner/pkg/conversation"
)

// Kind classifies how a turn ended.
type Kind string

const (
	KindCompleted         Kind = "completed"
	KindNoReply           Kind = "no_reply"
	KindTimedOut          Kind = "timed_out"
	KindRunFailed         Kind = "run_failed"
	KindAlreadyProcessing Kind = "already_processing"
)

// User-facing replies.
const (
	ReplyTimedOut          = "Request timed out. Please try again."
	ReplyNoReply           = "I don't have a response at this time. Please try again."
	ReplyAlreadyProcessing = "Request is already being processed. Please wait."
)

// RunFailedReply is the reply for a run that ended in a non-completed status.
func RunFailedReply(status conversation.RunStatus) string {
	return fmt.Sprintf("Sorry, I encountered an error (%s). Please try again.", status)
}

// Outcome is the result of one turn.
type Outcome struct {
	Kind      Kind
	State     State
	Reply     string
	RunID     string
	Status    conversation.RunStatus
	LastError *conversation.RunError
	// Polls counts GetRun calls.
	Polls int
	// ToolCalls counts dispatched tool calls, stale-run ones included.
	ToolCalls int
}
