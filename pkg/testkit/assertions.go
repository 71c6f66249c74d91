package testkit

import (
	"testing"

	"agentrunner/pkg/conversation"
)

// AssertToolOutput verifies a result answers callID with JSON equivalent to wantJSON.
func AssertToolOutput(t *testing.T, result conversation.ToolResult, callID, wantJSON string) {
	t.Helper()
	if result.ToolCallID != callID {
		t.Errorf("Expected tool call id %s, got %s", callID, result.ToolCallID)
	}
	var got, want any
	if err := json.Unmarshal([]byte(result.Output), &got); err != nil {
		t.Errorf("Tool output %q is not JSON: %v", result.Output, err)
		return
	}
	if err := json.Unmarshal([]byte(wantJSON), &want); err != nil {
		t.Fatalf("Expected output %q is not JSON: %v", wantJSON, err)
	}
	gotNorm, _ := json.Marshal(got)
	wantNorm, _ := json.Marshal(want)
	if string(gotNorm) != string(wantNorm) {
		t.Errorf("Expected tool output %s, got %s", wantNorm, gotNorm)
	}
}

// AssertOpBefore verifies the first call of first precedes the first call of second.
func AssertOpBefore(t *testing.T, svc *FakeService, first, second conversation.Op) {
	t.Helper()
	firstAt, secondAt := -1, -1
	for i, op := range svc.Ops() {
		if op == first && firstAt < 0 {
			firstAt = i
		}
		if op == second && secondAt < 0 {
			secondAt = i
		}
	}
	switch {
	case firstAt < 0:
		t.Errorf("Expected %s to be called, calls were %v", first, svc.Ops())
	case secondAt < 0:
		t.Errorf("Expected %s to be called, calls were %v", second, svc.Ops())
	case firstAt > secondAt:
		t.Errorf("Expected %s before %s, calls were %v", first, second, svc.Ops())
	}
}

// AssertOpCount verifies op was called exactly n times.
func AssertOpCount(t *testing.T, svc *FakeService, op conversation.Op, n int) {
	t.Helper()
	if got := svc.Count(op); got != n {
		t.Errorf("Expected %d %s calls, got %d (calls: %v)", n, op, got, svc.Ops())
	}
}
