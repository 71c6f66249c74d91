package testkit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentrunner/pkg/conversation"
)

func TestFakeService_RunScriptRepeatsLast(t *testing.T) {
	svc := NewFakeService()
	svc.RunScript = []conversation.Run{
		RunWithStatus("", conversation.StatusInProgress),
		RunWithStatus("", conversation.StatusCompleted),
	}
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, "thread_1", "asst")
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusQueued, run.Status)

	statuses := make([]conversation.RunStatus, 0, 3)
	for i := 0; i < 3; i++ {
		got, err := svc.GetRun(ctx, "thread_1", run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, "thread_1", got.ThreadID)
		statuses = append(statuses, got.Status)
	}
	assert.Equal(t, []conversation.RunStatus{
		conversation.StatusInProgress, conversation.StatusCompleted, conversation.StatusCompleted,
	}, statuses)
	AssertOpCount(t, svc, conversation.OpGetRun, 3)
}

func TestFakeService_FailNext(t *testing.T) {
	svc := NewFakeService()
	boom := errors.New("boom")
	svc.FailNext(conversation.OpCreateThread, boom)

	_, err := svc.CreateThread(context.Background())
	assert.ErrorIs(t, err, boom)

	th, err := svc.CreateThread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "thread_1", th.ID)
	AssertOpCount(t, svc, conversation.OpCreateThread, 2)
}

func TestFakeService_RecordsSubmissions(t *testing.T) {
	svc := NewFakeService()
	results := []conversation.ToolResult{{ToolCallID: "c1", Output: `{}`}}

	run, err := svc.SubmitToolOutputs(context.Background(), "t", "r", results)
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusInProgress, run.Status)
	assert.Equal(t, [][]conversation.ToolResult{results}, svc.Submitted())
	AssertOpBefore(t, svc, conversation.OpSubmitToolOutputs, conversation.OpSubmitToolOutputs)
}

func TestMessageBuilder(t *testing.T) {
	now := time.Now()
	msg := NewAssistantMessage("m1", now).WithText("a").WithSegment("image_file", "").WithText("b").Build()

	assert.Equal(t, conversation.RoleAssistant, msg.Role)
	require.Len(t, msg.Content, 3)
	assert.Equal(t, "image_file", msg.Content[1].Type)
}

func TestMockWeatherServer(t *testing.T) {
	server := MockWeatherServer()
	defer server.Close()

	resp, err := http.Get(server.URL + "/geo/1.0/direct?q=Paris&limit=1&appid=k")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"Paris"`)

	resp2, err := http.Get(server.URL + "/data/2.5/weather?lat=1&lon=2")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestParisConditions(t *testing.T) {
	c := ParisConditions()
	assert.Equal(t, "Paris", c.Name)
	assert.Equal(t, "FR", c.Sys.Country)
	assert.Equal(t, "scattered clouds", c.Description())
}
