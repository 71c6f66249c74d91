package conversation_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentrunner/pkg/conversation"
	"agentrunner/pkg/testkit"
)

func TestRunStatus_Classes(t *testing.T) {
	terminal := []conversation.RunStatus{
		conversation.StatusCompleted, conversation.StatusFailed, conversation.StatusCancelled,
		conversation.StatusIncomplete, conversation.StatusExpired,
	}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), s)
		assert.False(t, s.Unresolved(), s)
	}

	for _, s := range []conversation.RunStatus{conversation.StatusQueued, conversation.StatusInProgress, conversation.StatusRequiresAction} {
		assert.False(t, s.Terminal(), s)
		assert.True(t, s.Unresolved(), s)
	}

	assert.False(t, conversation.StatusCancelling.Terminal())
	assert.False(t, conversation.StatusCancelling.Unresolved())
}

func TestClassifyStatus(t *testing.T) {
	tests := map[int]conversation.ErrorType{
		429: conversation.ErrorTypeRateLimit,
		401: conversation.ErrorTypeAuth,
		403: conversation.ErrorTypeAuth,
		404: conversation.ErrorTypeNotFound,
		400: conversation.ErrorTypeBadRequest,
		409: conversation.ErrorTypeBadRequest,
		408: conversation.ErrorTypeTransient,
		500: conversation.ErrorTypeTransient,
		503: conversation.ErrorTypeTransient,
		200: conversation.ErrorTypeUnknown,
	}
	for status, want := range tests {
		assert.Equal(t, want, conversation.ClassifyStatus(status), "status %d", status)
	}
}

func TestError_IsAndTypeOf(t *testing.T) {
	base := &conversation.Error{Op: conversation.OpGetRun, Type: conversation.ErrorTypeRateLimit, StatusCode: 429}
	wrapped := fmt.Errorf("poll: %w", base)

	assert.True(t, conversation.Is(wrapped, conversation.ErrorTypeRateLimit))
	assert.False(t, conversation.Is(wrapped, conversation.ErrorTypeAuth))
	assert.Equal(t, conversation.ErrorTypeRateLimit, conversation.TypeOf(wrapped))
	assert.Equal(t, conversation.ErrorTypeUnknown, conversation.TypeOf(errors.New("plain")))
	assert.True(t, base.Retryable())
	assert.Contains(t, base.Error(), "get_run")
	assert.Contains(t, base.Error(), "rate_limit")

	cause := errors.New("dial tcp")
	unavailable := conversation.NewServiceUnavailableError(conversation.OpListRuns, cause, 3)
	assert.ErrorIs(t, unavailable, cause)
	assert.False(t, unavailable.Retryable())
	assert.Contains(t, unavailable.Error(), "after 3 attempts")
}

func TestOp_Idempotent(t *testing.T) {
	assert.True(t, conversation.OpGetRun.Idempotent())
	assert.True(t, conversation.OpListRuns.Idempotent())
	assert.True(t, conversation.OpCancelRun.Idempotent())
	assert.True(t, conversation.OpListMessages.Idempotent())

	assert.False(t, conversation.OpCreateMessage.Idempotent())
	assert.False(t, conversation.OpCreateRun.Idempotent())
	assert.False(t, conversation.OpSubmitToolOutputs.Idempotent())
	assert.False(t, conversation.OpCreateThread.Idempotent())
	assert.False(t, conversation.OpCreateOrUpdate.Idempotent())
}

func TestIntercept_OrderAndCallInfo(t *testing.T) {
	fake := testkit.NewFakeService()
	var trace []string
	var seen []conversation.Call

	tag := func(name string) conversation.Interceptor {
		return func(ctx context.Context, call conversation.Call, next func(context.Context) error) error {
			trace = append(trace, name+">")
			err := next(ctx)
			trace = append(trace, "<"+name)
			return err
		}
	}
	capture := func(ctx context.Context, call conversation.Call, next func(context.Context) error) error {
		seen = append(seen, call)
		return next(ctx)
	}

	svc := conversation.Intercept(fake, tag("outer"), tag("inner"), capture)

	run, err := svc.GetRun(context.Background(), "thread_1", "run_9")
	require.NoError(t, err)
	assert.Equal(t, "run_9", run.ID)

	assert.Equal(t, []string{"outer>", "inner>", "<inner", "<outer"}, trace)
	require.Len(t, seen, 1)
	assert.Equal(t, conversation.Call{Op: conversation.OpGetRun, ThreadID: "thread_1", RunID: "run_9"}, seen[0])
}

func TestIntercept_ShortCircuit(t *testing.T) {
	fake := testkit.NewFakeService()
	denied := errors.New("denied")
	deny := func(context.Context, conversation.Call, func(context.Context) error) error {
		return denied
	}

	svc := conversation.Intercept(fake, deny)

	_, err := svc.CreateThread(context.Background())
	assert.ErrorIs(t, err, denied)
	assert.ErrorIs(t, svc.CancelRun(context.Background(), "t", "r"), denied)
	assert.Empty(t, fake.Calls())
}

func TestIntercept_PassesResultsThrough(t *testing.T) {
	fake := testkit.NewFakeService()
	fake.Messages = []conversation.Message{{ID: "m1", Role: conversation.RoleAssistant}}
	fake.ExistingRuns = []conversation.Run{{ID: "r0", Status: conversation.StatusQueued}}
	passthrough := func(ctx context.Context, _ conversation.Call, next func(context.Context) error) error {
		return next(ctx)
	}
	svc := conversation.Intercept(fake, passthrough)
	ctx := context.Background()

	th, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	id, err := svc.CreateMessage(ctx, th.ID, conversation.NewMessage{Role: conversation.RoleUser, Content: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	runs, err := svc.ListRuns(ctx, th.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	msgs, err := svc.ListMessages(ctx, th.ID, conversation.OrderDesc)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	agent, err := svc.CreateOrUpdateAgent(ctx, conversation.AgentSpec{Name: "a", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "asst_fake", agent.ID)
	run, err := svc.CreateRun(ctx, th.ID, agent.ID)
	require.NoError(t, err)
	submitted, err := svc.SubmitToolOutputs(ctx, th.ID, run.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, run.ID, submitted.ID)
}

func TestIntercept_NoInterceptorsReturnsBase(t *testing.T) {
	fake := testkit.NewFakeService()
	assert.Same(t, fake, conversation.Intercept(fake))
}

func TestRun_PendingToolCalls(t *testing.T) {
	var nilRun *conversation.Run
	assert.Nil(t, nilRun.PendingToolCalls())

	run := testkit.RequiresAction("r", testkit.FunctionCall("c1", "getWeather", nil))
	assert.Len(t, run.PendingToolCalls(), 1)
}
