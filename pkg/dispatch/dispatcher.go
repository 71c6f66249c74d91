// Package dispatch executes the tool calls a paused run asks for and turns every
// call into exactly one serialized result.
package dispatch

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"agentrunner/pkg/conversation"
	"agentrunner/pkg/logx"
	"agentrunner/pkg/metrics"
	"agentrunner/pkg/tools"
)

//nolint:gochecknoglobals // drop-in encoding/json replacement
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultConcurrency bounds how many calls of one batch execute at once.
const DefaultConcurrency = 4

// Fixed result messages.
const (
	MsgAlreadyProcessed = "Tool call already processed"
	MsgParseFailed      = "Failed to parse parameters"
)

var errUnparsable = errors.New("arguments are not a JSON object")

type messagePayload struct {
	Message string `json:"message"`
}

// Dispatcher resolves tool calls against a Registry.
type Dispatcher struct {
	registry    *tools.Registry
	recorder    metrics.Recorder
	logger      *logx.Logger
	concurrency int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// WithConcurrency bounds parallel execution inside InvokeAll. Values below 1 mean sequential.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n < 1 {
			n = 1
		}
		d.concurrency = n
	}
}

// WithLogger overrides the dispatcher logger.
func WithLogger(l *logx.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a dispatcher over registry.
func New(registry *tools.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		recorder:    metrics.Nop(),
		logger:      logx.NewLogger("dispatch"),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Invoke executes one tool call and always returns a result for it.
// An id already present in seen is answered without executing anything. A nil
// seen acts as a fresh set.
func (d *Dispatcher) Invoke(ctx context.Context, seen *CallSet, call conversation.ToolCall) conversation.ToolResult {
	start := time.Now()
	if seen == nil {
		seen = NewCallSet()
	}

	if seen.CheckAndMark(call.ID) {
		logx.Debug(ctx, "tools", "skipping duplicate tool call %s (%s)", call.ID, call.Name)
		d.recorder.ObserveToolCall(call.Name, metrics.StatusDuplicate, 0)
		return d.result(call.ID, messagePayload{Message: MsgAlreadyProcessed})
	}

	payload, failed := d.execute(ctx, call)

	status := metrics.StatusSuccess
	if failed {
		status = metrics.StatusError
	}
	d.recorder.ObserveToolCall(call.Name, status, time.Since(start))
	return d.result(call.ID, payload)
}

// InvokeAll executes every function call of one batch, in parallel up to the configured
// limit, and returns their results in request order. Non-function calls are skipped.
func (d *Dispatcher) InvokeAll(ctx context.Context, seen *CallSet, calls []conversation.ToolCall) []conversation.ToolResult {
	if seen == nil {
		seen = NewCallSet()
	}
	pending := make([]conversation.ToolCall, 0, len(calls))
	for _, call := range calls {
		if call.Type != "" && call.Type != conversation.ToolCallTypeFunction {
			d.logger.Warn("Skipping tool call %s with unsupported type %q", call.ID, call.Type)
			continue
		}
		pending = append(pending, call)
	}

	results := make([]conversation.ToolResult, len(pending))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i := range pending {
		g.Go(func() error {
			results[i] = d.Invoke(ctx, seen, pending[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// execute returns the payload for call and whether it represents a failure.
func (d *Dispatcher) execute(ctx context.Context, call conversation.ToolCall) (payload any, failed bool) {
	args, err := ParseArguments(call.Arguments)
	if err != nil {
		d.logger.Warn("Failed to parse arguments for %s (%s): %v", call.Name, call.ID, err)
		return tools.ErrorPayload{Error: MsgParseFailed}, true
	}

	tool, ok := d.registry.Find(call.Name)
	if !ok {
		d.logger.Warn("Tool not found: %s", call.Name)
		return tools.ErrorPayload{Error: "Tool not found: " + call.Name}, true
	}

	if err := validate(tool, args); err != nil {
		return tools.ErrorPayload{Error: err.Error()}, true
	}

	d.logger.Info("Executing tool: %s", call.Name)
	logx.Debug(ctx, "tools", "%s args=%v", call.Name, args)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Tool %s panicked: %v", call.Name, r)
			payload, failed = tools.ErrorPayload{Error: fmt.Sprintf("tool panicked: %v", r)}, true
		}
	}()

	out, err := tool.Exec(ctx, args)
	if err != nil {
		d.logger.Error("Tool %s failed: %v", call.Name, err)
		return tools.ErrorPayload{Error: err.Error()}, true
	}
	if ep, ok := out.(tools.ErrorPayload); ok && ep.Error != "" {
		return out, true
	}
	return out, false
}

func (d *Dispatcher) result(callID string, payload any) conversation.ToolResult {
	data, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("Failed to serialize result for tool call %s: %v", callID, err)
		data, _ = json.Marshal(tools.ErrorPayload{Error: "failed to serialize tool result"})
	}
	return conversation.ToolResult{ToolCallID: callID, Output: string(data)}
}

// ParseArguments normalizes tool-call arguments into an object.
// Nil yields an empty map; text must decode to a JSON object.
func ParseArguments(raw any) (map[string]any, error) {
	var text []byte
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		text = []byte(v)
	case []byte:
		text = v
	case stdjson.RawMessage:
		text = v
	case jsoniter.RawMessage:
		text = v
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", errUnparsable, raw)
	}

	var args map[string]any
	if err := json.Unmarshal(text, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if args == nil {
		return nil, errUnparsable
	}
	return args, nil
}

func validate(tool tools.Tool, args map[string]any) error {
	if v, ok := tool.(tools.ArgValidator); ok {
		return v.ValidateArgs(args)
	}
	for _, name := range tool.Definition().InputSchema.Required {
		value, ok := args[name]
		if !ok || value == nil || value == "" {
			return fmt.Errorf("Missing required parameter: %s", name) //nolint:stylecheck // user-facing message
		}
	}
	return nil
}
