// Package metrics records agent-run orchestration metrics.
package metrics

import (
	"time"
)

// Status label values.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusDuplicate = "duplicate"
)

// Recorder defines the interface for recording orchestration metrics.
type Recorder interface {
	// ObserveTurn records one finished user turn by outcome kind.
	ObserveTurn(outcome string, polls int, duration time.Duration)

	// ObserveToolCall records one dispatched tool call.
	ObserveToolCall(tool, status string, duration time.Duration)

	// ObserveServiceCall records one Conversation Service request.
	ObserveServiceCall(op, status, errorType string, duration time.Duration)

	// SetActiveRuns reports how many runs are currently being polled.
	SetActiveRuns(n int)

	// SetSessions reports how many sessions are currently mapped to threads.
	SetSessions(n int)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return NoopRecorder{}
}

func (NoopRecorder) ObserveTurn(string, int, time.Duration) {}

func (NoopRecorder) ObserveToolCall(string, string, time.Duration) {}

func (NoopRecorder) ObserveServiceCall(string, string, string, time.Duration) {}

func (NoopRecorder) SetActiveRuns(int) {}

func (NoopRecorder) SetSessions(int) {}
