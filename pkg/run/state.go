package run

import "agentrunner/pkg/conversation"

// State is the orchestrator's view of one turn.
type State int

// Turn states.
const (
	StateNotStarted State = iota
	StateSubmitted
	StatePolling
	StateRequiresAction
	StateCompleted
	StateFailed
	StateCancelled
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateSubmitted:
		return "SUBMITTED"
	case StatePolling:
		return "POLLING"
	case StateRequiresAction:
		return "REQUIRES_ACTION"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateCancelled:
		return "CANCELLED"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Final reports whether no further transition is possible.
func (s State) Final() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	default:
		return false
	}
}

// stateForTerminal maps a terminal run status onto a final turn state.
func stateForTerminal(status conversation.RunStatus) State {
	switch status {
	case conversation.StatusCompleted:
		return StateCompleted
	case conversation.StatusCancelled:
		return StateCancelled
	default:
		return StateFailed
	}
}
