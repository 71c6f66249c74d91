package logx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(nil)
		SetLevel(LevelInfo)
		SetDebugConfig(false, nil)
	})
	return &buf
}

func TestLogFormat(t *testing.T) {
	buf := captureOutput(t)

	NewLogger("run").Info("polling %s", "thread_1")

	output := buf.String()
	if !strings.Contains(output, "[run]") {
		t.Errorf("Expected component in output, got: %s", output)
	}
	if !strings.Contains(output, "INFO: polling thread_1") {
		t.Errorf("Expected formatted message in output, got: %s", output)
	}
	if !strings.Contains(output, "T") || !strings.Contains(output, "Z]") {
		t.Errorf("Expected ISO timestamp in output, got: %s", output)
	}
}

func TestLevelThreshold(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelWarn)

	logger := NewLogger("agent")
	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("INFO line should be filtered at WARN threshold")
	}
	if !strings.Contains(buf.String(), "WARN: shown") {
		t.Errorf("Expected WARN line, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"WARNING": LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestDebugDomains(t *testing.T) {
	buf := captureOutput(t)
	SetDebugConfig(true, []string{"run"})

	ctx := WithTurnID(context.Background(), "turn-42")
	Debug(ctx, "run", "poll %d", 3)
	Debug(ctx, "dispatch", "should not appear")

	output := buf.String()
	if !strings.Contains(output, "[turn-42] DEBUG: [run] poll 3") {
		t.Errorf("Expected run debug line, got: %s", output)
	}
	if strings.Contains(output, "should not appear") {
		t.Error("dispatch domain should be filtered")
	}
	if !IsDebugEnabledForDomain("run") || IsDebugEnabledForDomain("dispatch") {
		t.Error("domain filter not applied")
	}
}

func TestDebugDisabled(t *testing.T) {
	buf := captureOutput(t)

	NewLogger("agent").Debug("quiet")
	Debug(context.Background(), "run", "quiet")

	if buf.Len() != 0 {
		t.Errorf("Expected no output with debug disabled, got: %s", buf.String())
	}
}

func TestWrap(t *testing.T) {
	buf := captureOutput(t)

	if Wrap(nil, "noop") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	base := errors.New("boom")
	err := Wrap(base, "load config")
	if !errors.Is(err, base) {
		t.Error("Wrap should preserve the cause")
	}
	if err.Error() != "load config: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !strings.Contains(buf.String(), "ERROR: load config: boom") {
		t.Errorf("Expected error line, got: %s", buf.String())
	}
}

func TestWith(t *testing.T) {
	logger := NewLogger("agent").With("tools")
	if logger.Component() != "agent/tools" {
		t.Errorf("Component() = %q", logger.Component())
	}
	if TurnID(context.Background()) != "" {
		t.Error("empty context should carry no turn id")
	}
}
